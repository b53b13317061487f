// Package client is the client side of the collaboration protocol: it owns one
// connection to the broker, exposes typed emit and subscribe operations and
// keeps local room state (roster, cursors, current page, comments) in sync
// with inbound events.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docsync-api/internal/realtime"
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrClosed       = errors.New("client: session closed")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	InRoom
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case InRoom:
		return "in-room"
	default:
		return "disconnected"
	}
}

// ReconnectPolicy controls redialing after an unexpected drop. With zero
// MaxAttempts a drop leaves the session Disconnected.
type ReconnectPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Handler receives the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Session is a single client's view of the broker.
type Session struct {
	dialer Dialer
	policy ReconnectPolicy
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	conn     Conn
	closed   bool
	identity realtime.Identity
	roomCode string
	// pendingJoins holds the room of every join whose room-users reply has
	// not arrived yet, oldest first. syncedRoom is the room of the last
	// reply; room events are applied only while it equals roomCode.
	pendingJoins []string
	syncedRoom   string
	roster   []realtime.PresenceEntry
	cursors  map[string]realtime.CursorMoved
	page     int
	comments []realtime.Comment
	lastErr  error
	handlers map[string][]Handler
}

func New(dialer Dialer, policy ReconnectPolicy, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		dialer:   dialer,
		policy:   policy,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		cursors:  make(map[string]realtime.CursorMoved),
		handlers: make(map[string][]Handler),
	}
}

// On registers h for event. Handlers for one event run in registration order,
// on the read goroutine, once per inbound frame.
func (s *Session) On(event string, h Handler) {
	s.mu.Lock()
	s.handlers[event] = append(s.handlers[event], h)
	s.mu.Unlock()
}

// Connect dials the broker as identity. A failed dial leaves the session
// Disconnected and may be retried.
func (s *Session) Connect(ctx context.Context, identity realtime.Identity) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("client: connect while %s", state)
	}
	s.state = Connecting
	s.identity = identity
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Disconnected
		s.lastErr = fmt.Errorf("connect: %w", err)
		return s.lastErr
	}
	if s.closed {
		_ = conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.state = Connected
	s.lastErr = nil
	go s.readLoop(conn)
	return nil
}

// JoinRoom moves the session into code, leaving any previous room. The state
// becomes InRoom immediately; the roster follows from the broker's reply.
func (s *Session) JoinRoom(code string) error {
	if err := realtime.ValidateRoomCode(code); err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	if s.state != Connected && s.state != InRoom {
		s.mu.Unlock()
		s.setErr(ErrNotConnected)
		return ErrNotConnected
	}
	if s.roomCode != code {
		s.resetRoomLocked()
		s.syncedRoom = ""
	}
	s.roomCode = code
	s.state = InRoom
	s.pendingJoins = append(s.pendingJoins, code)
	conn, identity := s.conn, s.identity
	s.mu.Unlock()

	err := s.send(conn, realtime.EventJoinRoom, realtime.JoinRoomPayload{RoomCode: code, User: identity})
	if err != nil {
		s.mu.Lock()
		if n := len(s.pendingJoins); n > 0 {
			s.pendingJoins = s.pendingJoins[:n-1]
		}
		s.mu.Unlock()
	}
	return err
}

// LeaveRoom leaves the current room and clears roster and cursor state.
func (s *Session) LeaveRoom() error {
	s.mu.Lock()
	if s.state != InRoom {
		s.mu.Unlock()
		s.setErr(realtime.ErrNotInRoom)
		return realtime.ErrNotInRoom
	}
	code, conn := s.roomCode, s.conn
	s.resetRoomLocked()
	s.roomCode = ""
	s.syncedRoom = ""
	s.state = Connected
	s.mu.Unlock()

	return s.send(conn, realtime.EventLeaveRoom, realtime.LeaveRoomPayload{RoomCode: code})
}

func (s *Session) EmitPageChange(page int) error {
	if page < 1 {
		err := fmt.Errorf("%w: page number must be positive, got %d", realtime.ErrMalformedEvent, page)
		s.setErr(err)
		return err
	}
	conn, code, identity, err := s.inRoom()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return s.send(conn, realtime.EventPageChange, realtime.PageChangePayload{
		RoomCode:   code,
		PageNumber: page,
		UserID:     identity.UserID,
	})
}

func (s *Session) EmitCursorMove(pos realtime.Position) error {
	conn, code, identity, err := s.inRoom()
	if err != nil {
		return err
	}
	return s.send(conn, realtime.EventCursorMove, realtime.CursorMovePayload{
		RoomCode: code,
		Position: pos,
		UserID:   identity.UserID,
	})
}

// EmitComment shares comment with the room and records it locally. A missing
// ID is generated; author fields come from the session identity.
func (s *Session) EmitComment(comment realtime.Comment) (realtime.Comment, error) {
	conn, code, identity, err := s.inRoom()
	if err != nil {
		return comment, err
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.UserID = identity.UserID
	comment.UserName = identity.Name()

	if err := s.send(conn, realtime.EventCommentAdded, realtime.CommentAddedPayload{RoomCode: code, Comment: comment}); err != nil {
		return comment, err
	}
	s.mu.Lock()
	s.comments = append(s.comments, comment)
	s.mu.Unlock()
	return comment, nil
}

// Close tears the session down for good.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = Disconnected
	conn := s.conn
	s.conn = nil
	s.resetRoomLocked()
	s.roomCode = ""
	s.pendingJoins = nil
	s.syncedRoom = ""
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

// Roster returns the members of the current room, including this session.
func (s *Session) Roster() []realtime.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]realtime.PresenceEntry(nil), s.roster...)
}

// Cursors returns the last known cursor of each peer connection.
func (s *Session) Cursors() map[string]realtime.CursorMoved {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]realtime.CursorMoved, len(s.cursors))
	for k, v := range s.cursors {
		out[k] = v
	}
	return out
}

func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) Comments() []realtime.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]realtime.Comment(nil), s.comments...)
}

// LastError is the most recent connection or room error. It is cleared by the
// next successful operation.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) inRoom() (Conn, string, realtime.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InRoom {
		s.lastErr = realtime.ErrNotInRoom
		return nil, "", realtime.Identity{}, realtime.ErrNotInRoom
	}
	return s.conn, s.roomCode, s.identity, nil
}

func (s *Session) send(conn Conn, event string, data any) error {
	if conn == nil {
		s.setErr(ErrNotConnected)
		return ErrNotConnected
	}
	frame, err := realtime.EncodeFrame(event, data)
	if err == nil {
		err = conn.WriteMessage(frame)
	}
	if err != nil {
		err = fmt.Errorf("send %s: %w", event, err)
	}
	s.setErr(err)
	return err
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) resetRoomLocked() {
	s.roster = nil
	s.cursors = make(map[string]realtime.CursorMoved)
	s.page = 0
	s.comments = nil
}
