package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire event names.
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventPageChange   = "page-change"
	EventCursorMove   = "cursor-move"
	EventCommentAdded = "comment-added"

	EventRoomUsers       = "room-users"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventPageChanged     = "page-changed"
	EventCursorMoved     = "cursor-moved"
	EventCommentReceived = "comment-received"
	EventError           = "error"
)

const maxCommentLen = 5000

// Envelope is the frame exchanged on the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeFrame marshals an event and its payload into a wire frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event, Data: data})
}

// Position is a viewport-relative fractional coordinate. The range is not
// validated; consumers clamp for display.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Comment is attached to a page, optionally at a position.
type Comment struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	PageNumber int       `json:"pageNumber"`
	Position   *Position `json:"position,omitempty"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
}

// Client to server payloads.

type JoinRoomPayload struct {
	RoomCode string   `json:"roomCode"`
	User     Identity `json:"user"`
}

type LeaveRoomPayload struct {
	RoomCode string `json:"roomCode"`
}

type PageChangePayload struct {
	RoomCode   string `json:"roomCode"`
	PageNumber int    `json:"pageNumber"`
	UserID     string `json:"userId,omitempty"`
}

type CursorMovePayload struct {
	RoomCode string   `json:"roomCode"`
	Position Position `json:"position"`
	UserID   string   `json:"userId,omitempty"`
}

type CommentAddedPayload struct {
	RoomCode string  `json:"roomCode"`
	Comment  Comment `json:"comment"`
}

// Server to client payloads.

// PresenceEntry is one roster row. Presence is per connection, so the same
// user in two tabs appears twice.
type PresenceEntry struct {
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ConnectionID string `json:"connectionId"`
}

type PresenceNotice struct {
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

type PageChanged struct {
	PageNumber int    `json:"pageNumber"`
	UserID     string `json:"userId"`
	Timestamp  int64  `json:"timestamp"`
}

type CursorMoved struct {
	Position     Position `json:"position"`
	UserID       string   `json:"userId"`
	ConnectionID string   `json:"connectionId"`
	Timestamp    int64    `json:"timestamp"`
}

type CommentReceived struct {
	Comment   Comment `json:"comment"`
	Timestamp int64   `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SyncEvent is one of PageChange, CursorMove or CommentAdd: a room-scoped
// event fanned out to the sender's peers.
type SyncEvent interface {
	Room() string
	// Name is the inbound wire event name.
	Name() string
	validate() error
	stamp(origin *Connection, id Identity, ts int64) (event string, data any)
}

type PageChange struct {
	RoomCode   string
	PageNumber int
}

func (e PageChange) Room() string { return e.RoomCode }
func (e PageChange) Name() string { return EventPageChange }

func (e PageChange) validate() error {
	if e.PageNumber < 1 {
		return fmt.Errorf("%w: page number must be positive, got %d", ErrMalformedEvent, e.PageNumber)
	}
	return nil
}

func (e PageChange) stamp(_ *Connection, id Identity, ts int64) (string, any) {
	return EventPageChanged, PageChanged{PageNumber: e.PageNumber, UserID: id.UserID, Timestamp: ts}
}

type CursorMove struct {
	RoomCode string
	Position Position
}

func (e CursorMove) Room() string    { return e.RoomCode }
func (e CursorMove) Name() string    { return EventCursorMove }
func (e CursorMove) validate() error { return nil }

func (e CursorMove) stamp(origin *Connection, id Identity, ts int64) (string, any) {
	return EventCursorMoved, CursorMoved{
		Position:     e.Position,
		UserID:       id.UserID,
		ConnectionID: origin.ID(),
		Timestamp:    ts,
	}
}

type CommentAdd struct {
	RoomCode string
	Comment  Comment
}

func (e CommentAdd) Room() string { return e.RoomCode }
func (e CommentAdd) Name() string { return EventCommentAdded }

func (e CommentAdd) validate() error {
	content := strings.TrimSpace(e.Comment.Content)
	if content == "" {
		return fmt.Errorf("%w: comment content is empty", ErrMalformedEvent)
	}
	if len(e.Comment.Content) > maxCommentLen {
		return fmt.Errorf("%w: comment longer than %d bytes", ErrMalformedEvent, maxCommentLen)
	}
	if e.Comment.PageNumber < 1 {
		return fmt.Errorf("%w: page number must be positive, got %d", ErrMalformedEvent, e.Comment.PageNumber)
	}
	return nil
}

func (e CommentAdd) stamp(_ *Connection, id Identity, ts int64) (string, any) {
	c := e.Comment
	c.UserID = id.UserID
	c.UserName = id.Name()
	return EventCommentReceived, CommentReceived{Comment: c, Timestamp: ts}
}
