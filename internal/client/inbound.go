package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"docsync-api/internal/realtime"
)

func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.dropped(conn, err)
			return
		}
		s.handle(data)
	}
}

func (s *Session) handle(raw []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("discarding undecodable frame", zap.Error(err))
		return
	}

	s.mu.Lock()
	applied, err := s.applyLocked(env)
	if err != nil {
		s.log.Warn("discarding malformed event", zap.String("event", env.Event), zap.Error(err))
	}
	var handlers []Handler
	if applied {
		handlers = slices.Clone(s.handlers[env.Event])
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

// applyLocked folds one inbound event into the local room state. It reports
// false for events that belong to a room the session has already left.
func (s *Session) applyLocked(env realtime.Envelope) (bool, error) {
	switch env.Event {
	case realtime.EventRoomUsers:
		room := s.popJoinLocked()
		// only the reply to the latest join describes the current room
		if s.state != InRoom || room != s.roomCode || len(s.pendingJoins) > 0 {
			return false, nil
		}
		var roster []realtime.PresenceEntry
		if err := json.Unmarshal(env.Data, &roster); err != nil {
			return false, err
		}
		s.syncedRoom = room
		s.roster = roster
		s.lastErr = nil

	case realtime.EventUserJoined:
		if !s.syncedLocked() {
			return false, nil
		}
		var n realtime.PresenceNotice
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return false, err
		}
		if s.rosterIndex(n.ConnectionID) < 0 {
			s.roster = append(s.roster, realtime.PresenceEntry{
				UserID:       n.UserID,
				UserName:     n.UserName,
				ConnectionID: n.ConnectionID,
			})
		}

	case realtime.EventUserLeft:
		if !s.syncedLocked() {
			return false, nil
		}
		var n realtime.PresenceNotice
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return false, err
		}
		if i := s.rosterIndex(n.ConnectionID); i >= 0 {
			s.roster = slices.Delete(s.roster, i, i+1)
		}
		delete(s.cursors, n.ConnectionID)

	case realtime.EventPageChanged:
		if !s.syncedLocked() {
			return false, nil
		}
		var p realtime.PageChanged
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return false, err
		}
		s.page = p.PageNumber

	case realtime.EventCursorMoved:
		if !s.syncedLocked() {
			return false, nil
		}
		var m realtime.CursorMoved
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return false, err
		}
		s.cursors[m.ConnectionID] = m

	case realtime.EventCommentReceived:
		if !s.syncedLocked() {
			return false, nil
		}
		var c realtime.CommentReceived
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return false, err
		}
		s.comments = append(s.comments, c.Comment)

	case realtime.EventError:
		var p realtime.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return false, err
		}
		s.lastErr = remoteError(p)
		// only a join can be rejected with these; it gets no room-users reply
		if errors.Is(s.lastErr, realtime.ErrInvalidRoom) || errors.Is(s.lastErr, realtime.ErrUnauthenticated) {
			room := s.popJoinLocked()
			if s.state == InRoom && room == s.roomCode {
				s.resetRoomLocked()
				s.roomCode = ""
				s.syncedRoom = ""
				s.state = Connected
			}
		}
	}
	return true, nil
}

// syncedLocked reports whether room events apply: the session is in a room
// and the broker has answered the join that moved it there.
func (s *Session) syncedLocked() bool {
	return s.state == InRoom && s.syncedRoom == s.roomCode
}

func (s *Session) popJoinLocked() string {
	if len(s.pendingJoins) == 0 {
		return ""
	}
	room := s.pendingJoins[0]
	s.pendingJoins = s.pendingJoins[1:]
	return room
}

func (s *Session) rosterIndex(connectionID string) int {
	return slices.IndexFunc(s.roster, func(e realtime.PresenceEntry) bool {
		return e.ConnectionID == connectionID
	})
}

func remoteError(p realtime.ErrorPayload) error {
	if base := realtime.ErrorForCode(p.Code); base != nil {
		return fmt.Errorf("%w (%s)", base, p.Message)
	}
	return errors.New(p.Message)
}

// dropped handles the end of conn's read loop. A drop of the current
// connection falls back to Connecting when the policy allows redialing.
func (s *Session) dropped(conn Conn, cause error) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	_ = conn.Close()
	s.conn = nil
	room := s.roomCode
	s.roster = nil
	s.cursors = make(map[string]realtime.CursorMoved)
	s.pendingJoins = nil
	s.syncedRoom = ""
	s.lastErr = fmt.Errorf("%w: %v", realtime.ErrTransportClosed, cause)

	if s.policy.MaxAttempts <= 0 {
		s.state = Disconnected
		s.roomCode = ""
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	s.mu.Unlock()

	s.log.Info("connection lost, reconnecting", zap.String("roomCode", room), zap.Error(cause))
	go s.reconnect(room)
}

// reconnect redials and re-joins room. The broker treats it as a new
// connection, so the roster arrives fresh and missed events are not replayed.
func (s *Session) reconnect(room string) {
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.policy.Backoff * time.Duration(attempt)):
		}

		conn, err := s.dialer.Dial(s.ctx)
		if err != nil {
			s.setErr(fmt.Errorf("reconnect attempt %d: %w", attempt, err))
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.state = Connected
		s.lastErr = nil
		identity := s.identity
		if room != "" {
			s.roomCode = room
			s.state = InRoom
			s.pendingJoins = append(s.pendingJoins[:0], room)
		}
		s.mu.Unlock()

		go s.readLoop(conn)
		if room != "" {
			_ = s.send(conn, realtime.EventJoinRoom, realtime.JoinRoomPayload{RoomCode: room, User: identity})
		}
		return
	}

	s.mu.Lock()
	if !s.closed {
		s.state = Disconnected
		s.roomCode = ""
	}
	s.mu.Unlock()
}
