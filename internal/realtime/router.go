package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docsync-api/internal/metrics"
)

// Router validates inbound events, stamps them with provenance and fans them
// out through the registry.
type Router struct {
	registry *Registry
	log      *zap.Logger
	now      func() time.Time
}

// NewRouter creates a router over registry.
func NewRouter(registry *Registry, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{registry: registry, log: log, now: time.Now}
}

// Route delivers ev from sender to every other member of ev's room. Delivery
// problems with individual peers do not fail the call.
func (rt *Router) Route(sender *Connection, ev SyncEvent) error {
	id, ok := sender.Identity()
	if !ok {
		return fmt.Errorf("%w: connection has no verified identity", ErrUnauthenticated)
	}
	if err := ev.validate(); err != nil {
		return err
	}
	if c, ok := ev.(CommentAdd); ok && c.Comment.ID == "" {
		c.Comment.ID = uuid.NewString()
		ev = c
	}

	event, data := ev.stamp(sender, id, rt.now().UnixMilli())
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := rt.registry.Fanout(sender, ev.Room(), frame); err != nil {
		return err
	}
	metrics.EventsRouted.WithLabelValues(ev.Name()).Inc()
	return nil
}

// Dispatch handles one raw inbound frame from c. Any error is answered with
// an error frame to c only.
func (rt *Router) Dispatch(c *Connection, raw []byte) {
	if err := rt.dispatch(c, raw); err != nil {
		rt.replyError(c, err)
	}
}

func (rt *Router) dispatch(c *Connection, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return rt.join(c, p)

	case EventLeaveRoom:
		var p LeaveRoomPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return rt.leave(c, p)

	case EventPageChange:
		var p PageChangePayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return rt.Route(c, PageChange{RoomCode: p.RoomCode, PageNumber: p.PageNumber})

	case EventCursorMove:
		var p CursorMovePayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return rt.Route(c, CursorMove{RoomCode: p.RoomCode, Position: p.Position})

	case EventCommentAdded:
		var p CommentAddedPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return rt.Route(c, CommentAdd{RoomCode: p.RoomCode, Comment: p.Comment})

	default:
		return fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, env.Event)
	}
}

func (rt *Router) join(c *Connection, p JoinRoomPayload) error {
	id, ok := c.Identity()
	if !ok {
		return fmt.Errorf("%w: connection has no verified identity", ErrUnauthenticated)
	}
	if p.User.UserID != "" && p.User.UserID != id.UserID {
		return fmt.Errorf("%w: join as a different user", ErrUnauthenticated)
	}
	_, err := rt.registry.Join(c, p.RoomCode, id)
	return err
}

func (rt *Router) leave(c *Connection, p LeaveRoomPayload) error {
	current := c.RoomCode()
	if current == "" {
		return nil
	}
	if p.RoomCode != "" && p.RoomCode != current {
		return fmt.Errorf("%w: %s", ErrNotInRoom, p.RoomCode)
	}
	rt.registry.Leave(c)
	return nil
}

func (rt *Router) replyError(c *Connection, err error) {
	code := ErrorCode(err)
	metrics.EventsRejected.WithLabelValues(code).Inc()
	rt.log.Debug("rejecting inbound event",
		zap.String("connectionId", c.ID()),
		zap.String("code", code),
		zap.Error(err))

	frame, encErr := EncodeFrame(EventError, ErrorPayload{Message: err.Error(), Code: code})
	if encErr != nil {
		return
	}
	if sendErr := c.Send(frame); errors.Is(sendErr, ErrCapacityExceeded) {
		go c.Close()
	}
}

func decodePayload(env Envelope, out any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	return nil
}
