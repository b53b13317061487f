package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFrame(t *testing.T, event string, data any) []byte {
	t.Helper()
	frame, err := EncodeFrame(event, data)
	require.NoError(t, err)
	return frame
}

func TestRouter_PageChangeReachesPeersNotSender(t *testing.T) {
	b := newTestBroker(t, 16)
	a := openAs(t, b, "u-a")
	bob := openAs(t, b, "u-b")
	carol := openAs(t, b, "u-c")
	for _, c := range []*Connection{a, bob, carol} {
		joinRoom(t, b, c, "ABC123")
	}
	for _, c := range []*Connection{a, bob, carol} {
		drain(t, c)
	}

	require.NoError(t, b.Router().Route(a, PageChange{RoomCode: "ABC123", PageNumber: 5}))

	assert.Empty(t, drain(t, a))
	for _, peer := range []*Connection{bob, carol} {
		frames := drain(t, peer)
		require.Equal(t, []string{EventPageChanged}, eventsOf(frames))
		got := decode[PageChanged](t, frames[0])
		assert.Equal(t, 5, got.PageNumber)
		assert.Equal(t, "u-a", got.UserID)
		assert.NotZero(t, got.Timestamp)
	}
}

func TestRouter_NotInRoom(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, b *Broker, sender *Connection)
		room  string
	}{
		{
			name:  "not in any room",
			setup: func(t *testing.T, b *Broker, sender *Connection) {},
			room:  "ABC123",
		},
		{
			name: "member of another room",
			setup: func(t *testing.T, b *Broker, sender *Connection) {
				joinRoom(t, b, sender, "OTHER")
			},
			room: "ABC123",
		},
		{
			name: "left the room",
			setup: func(t *testing.T, b *Broker, sender *Connection) {
				joinRoom(t, b, sender, "ABC123")
				b.Registry().Leave(sender)
			},
			room: "ABC123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t, 16)
			sender := openAs(t, b, "u-a")
			peer := openAs(t, b, "u-b")
			joinRoom(t, b, peer, "ABC123")
			tt.setup(t, b, sender)
			drain(t, peer)

			err := b.Router().Route(sender, PageChange{RoomCode: tt.room, PageNumber: 2})
			require.ErrorIs(t, err, ErrNotInRoom)
			assert.Empty(t, drain(t, peer))
		})
	}
}

func TestRouter_RouteWithoutIdentity(t *testing.T) {
	b := newTestBroker(t, 16)
	anon := b.Open()
	peer := openAs(t, b, "u-b")
	joinRoom(t, b, peer, "ABC123")
	drain(t, peer)

	err := b.Router().Route(anon, CursorMove{RoomCode: "ABC123"})
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, drain(t, peer))
}

func TestRouter_RejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		ev   SyncEvent
	}{
		{name: "zero page", ev: PageChange{RoomCode: "R1", PageNumber: 0}},
		{name: "negative page", ev: PageChange{RoomCode: "R1", PageNumber: -3}},
		{name: "blank comment", ev: CommentAdd{RoomCode: "R1", Comment: Comment{Content: "  ", PageNumber: 1}}},
		{name: "comment without page", ev: CommentAdd{RoomCode: "R1", Comment: Comment{Content: "hi"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t, 16)
			a := openAs(t, b, "u-a")
			peer := openAs(t, b, "u-b")
			joinRoom(t, b, a, "R1")
			joinRoom(t, b, peer, "R1")
			drain(t, peer)

			require.ErrorIs(t, b.Router().Route(a, tt.ev), ErrMalformedEvent)
			assert.Empty(t, drain(t, peer))
		})
	}
}

func TestRouter_CursorAndCommentProvenance(t *testing.T) {
	b := newTestBroker(t, 16)
	a := b.Open()
	require.NoError(t, a.Authenticate(Identity{UserID: "u-a", Email: "ada@example.com"}))
	peer := openAs(t, b, "u-b")
	joinRoom(t, b, a, "R1")
	joinRoom(t, b, peer, "R1")
	drain(t, peer)

	require.NoError(t, b.Router().Route(a, CursorMove{RoomCode: "R1", Position: Position{X: 1.5, Y: -0.25}}))
	require.NoError(t, b.Router().Route(a, CommentAdd{RoomCode: "R1", Comment: Comment{
		Content:    "look here",
		PageNumber: 3,
		Position:   &Position{X: 0.5, Y: 0.5},
		UserID:     "spoofed",
		UserName:   "spoofed",
	}}))

	frames := drain(t, peer)
	require.Equal(t, []string{EventCursorMoved, EventCommentReceived}, eventsOf(frames))

	cursor := decode[CursorMoved](t, frames[0])
	assert.Equal(t, Position{X: 1.5, Y: -0.25}, cursor.Position)
	assert.Equal(t, "u-a", cursor.UserID)
	assert.Equal(t, a.ID(), cursor.ConnectionID)

	comment := decode[CommentReceived](t, frames[1])
	assert.NotEmpty(t, comment.Comment.ID)
	assert.Equal(t, "u-a", comment.Comment.UserID)
	assert.Equal(t, "ada", comment.Comment.UserName)
	assert.Equal(t, 3, comment.Comment.PageNumber)
	require.NotNil(t, comment.Comment.Position)
	assert.Equal(t, 0.5, comment.Comment.Position.X)
}

func TestRouter_PreservesSenderOrder(t *testing.T) {
	b := newTestBroker(t, 128)
	a := openAs(t, b, "u-a")
	peer := openAs(t, b, "u-b")
	joinRoom(t, b, a, "R1")
	joinRoom(t, b, peer, "R1")
	drain(t, peer)

	for page := 1; page <= 50; page++ {
		require.NoError(t, b.Router().Route(a, PageChange{RoomCode: "R1", PageNumber: page}))
	}

	frames := drain(t, peer)
	require.Len(t, frames, 50)
	for i, f := range frames {
		assert.Equal(t, i+1, decode[PageChanged](t, f).PageNumber)
	}
}

func TestRouter_SlowPeerIsDisconnected(t *testing.T) {
	b := newTestBroker(t, 4)
	a := openAs(t, b, "u-a")
	slow := openAs(t, b, "u-slow")
	joinRoom(t, b, slow, "R1")
	joinRoom(t, b, a, "R1")
	drain(t, a)

	// slow never drains its queue; a keeps draining its own
	var seen []Envelope
	for page := 1; page <= 20; page++ {
		require.NoError(t, b.Router().Route(a, PageChange{RoomCode: "R1", PageNumber: page}))
		seen = append(seen, drain(t, a)...)
	}

	require.Eventually(t, slow.Closed, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(b.Registry().MembersOf("R1")) == 1
	}, time.Second, 5*time.Millisecond)

	var left []PresenceNotice
	require.Eventually(t, func() bool {
		seen = append(seen, drain(t, a)...)
		left = left[:0]
		for _, f := range seen {
			if f.Event == EventUserLeft {
				left = append(left, decode[PresenceNotice](t, f))
			}
		}
		return len(left) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, slow.ID(), left[0].ConnectionID)
}

func TestRouter_Dispatch(t *testing.T) {
	b := newTestBroker(t, 16)
	a := openAs(t, b, "u-a")
	peer := openAs(t, b, "u-b")

	b.Router().Dispatch(a, mustFrame(t, EventJoinRoom, JoinRoomPayload{
		RoomCode: "ABC123",
		User:     Identity{UserID: "u-a", Email: "u-a@example.com"},
	}))
	b.Router().Dispatch(peer, mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomCode: "ABC123"}))
	assert.Equal(t, []string{EventRoomUsers, EventUserJoined}, eventsOf(drain(t, a)))
	assert.Equal(t, []string{EventRoomUsers}, eventsOf(drain(t, peer)))

	b.Router().Dispatch(a, mustFrame(t, EventPageChange, PageChangePayload{RoomCode: "ABC123", PageNumber: 5, UserID: "u-a"}))
	b.Router().Dispatch(a, mustFrame(t, EventCursorMove, CursorMovePayload{RoomCode: "ABC123", Position: Position{X: 0.1, Y: 0.2}}))
	b.Router().Dispatch(a, mustFrame(t, EventCommentAdded, CommentAddedPayload{RoomCode: "ABC123", Comment: Comment{ID: "c-1", Content: "hi", PageNumber: 5}}))
	assert.Empty(t, drain(t, a))

	frames := drain(t, peer)
	require.Equal(t, []string{EventPageChanged, EventCursorMoved, EventCommentReceived}, eventsOf(frames))
	assert.Equal(t, "c-1", decode[CommentReceived](t, frames[2]).Comment.ID)

	b.Router().Dispatch(a, mustFrame(t, EventLeaveRoom, LeaveRoomPayload{RoomCode: "ABC123"}))
	assert.Empty(t, a.RoomCode())
	assert.Equal(t, []string{EventUserLeft}, eventsOf(drain(t, peer)))

	// leaving again is a no-op
	b.Router().Dispatch(a, mustFrame(t, EventLeaveRoom, LeaveRoomPayload{RoomCode: "ABC123"}))
	assert.Empty(t, drain(t, a))
}

func TestRouter_DispatchErrors(t *testing.T) {
	tests := []struct {
		name     string
		identity *Identity
		frame    func(t *testing.T) []byte
		wantCode string
	}{
		{
			name:     "not json",
			identity: &Identity{UserID: "u-a"},
			frame:    func(t *testing.T) []byte { return []byte("{nope") },
			wantCode: CodeMalformedEvent,
		},
		{
			name:     "unknown event",
			identity: &Identity{UserID: "u-a"},
			frame:    func(t *testing.T) []byte { return mustFrame(t, "teleport", map[string]int{"x": 1}) },
			wantCode: CodeMalformedEvent,
		},
		{
			name:     "missing data",
			identity: &Identity{UserID: "u-a"},
			frame:    func(t *testing.T) []byte { return []byte(`{"event":"page-change"}`) },
			wantCode: CodeMalformedEvent,
		},
		{
			name:     "join without identity",
			identity: nil,
			frame: func(t *testing.T) []byte {
				return mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomCode: "R1", User: Identity{UserID: "u-a"}})
			},
			wantCode: CodeUnauthenticated,
		},
		{
			name:     "join as someone else",
			identity: &Identity{UserID: "u-a"},
			frame: func(t *testing.T) []byte {
				return mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomCode: "R1", User: Identity{UserID: "u-z"}})
			},
			wantCode: CodeUnauthenticated,
		},
		{
			name:     "join malformed room",
			identity: &Identity{UserID: "u-a"},
			frame: func(t *testing.T) []byte {
				return mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomCode: "no spaces"})
			},
			wantCode: CodeInvalidRoom,
		},
		{
			name:     "page change without identity",
			identity: nil,
			frame: func(t *testing.T) []byte {
				return mustFrame(t, EventPageChange, PageChangePayload{RoomCode: "R1", PageNumber: 1})
			},
			wantCode: CodeUnauthenticated,
		},
		{
			name:     "page change outside room",
			identity: &Identity{UserID: "u-a"},
			frame: func(t *testing.T) []byte {
				return mustFrame(t, EventPageChange, PageChangePayload{RoomCode: "R1", PageNumber: 1})
			},
			wantCode: CodeNotInRoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t, 16)
			c := b.Open()
			if tt.identity != nil {
				require.NoError(t, c.Authenticate(*tt.identity))
			}

			b.Router().Dispatch(c, tt.frame(t))

			frames := drain(t, c)
			require.Equal(t, []string{EventError}, eventsOf(frames))
			payload := decode[ErrorPayload](t, frames[0])
			assert.Equal(t, tt.wantCode, payload.Code)
			assert.NotEmpty(t, payload.Message)
			assert.Empty(t, c.RoomCode())
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(EventPageChanged, PageChanged{PageNumber: 2, UserID: "u", Timestamp: 10})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(frame, &raw))
	assert.Equal(t, EventPageChanged, raw["event"])
	data := raw["data"].(map[string]any)
	assert.Equal(t, float64(2), data["pageNumber"])
	assert.Equal(t, "u", data["userId"])
}

func TestRouter_JoinDuringFanoutSeesContiguousSuffix(t *testing.T) {
	const pages = 500
	const joiners = 8

	b := newTestBroker(t, 1<<14)
	sender := openAs(t, b, "u-sender")
	joinRoom(t, b, sender, "R1")

	conns := make([]*Connection, joiners)
	for i := range conns {
		conns[i] = openAs(t, b, fmt.Sprintf("u-%d", i))
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for p := 1; p <= pages; p++ {
			if err := b.Router().Route(sender, PageChange{RoomCode: "R1", PageNumber: p}); err != nil {
				t.Errorf("route page %d: %v", p, err)
				return
			}
		}
	}()
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c *Connection) {
			defer wg.Done()
			<-start
			time.Sleep(time.Duration(i) * 50 * time.Microsecond)
			id, _ := c.Identity()
			if _, err := b.Registry().Join(c, "R1", id); err != nil {
				t.Errorf("join: %v", err)
			}
		}(i, c)
	}
	close(start)
	wg.Wait()

	for _, c := range conns {
		frames := drain(t, c)
		require.NotEmpty(t, frames)
		require.Equal(t, EventRoomUsers, frames[0].Event, "first frame must be the roster")

		var got []int
		for _, f := range frames[1:] {
			require.NotEqual(t, EventRoomUsers, f.Event)
			if f.Event == EventPageChanged {
				got = append(got, decode[PageChanged](t, f).PageNumber)
			}
		}
		// every page routed after the join arrives exactly once, in order
		if len(got) > 0 {
			first := got[0]
			require.Len(t, got, pages-first+1, "connection %s", c.ID())
			for i, p := range got {
				require.Equal(t, first+i, p, "connection %s", c.ID())
			}
		}
	}
}
