package realtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docsync-api/internal/metrics"
)

// room is guarded by its own mutex; join, leave, roster reads and fan-out for
// one room are serialized on it.
type room struct {
	code    string
	mu      sync.Mutex
	members []*Connection // join order
	deleted bool
}

func (r *room) indexOf(c *Connection) int {
	for i, m := range r.members {
		if m == c {
			return i
		}
	}
	return -1
}

func (r *room) remove(c *Connection) bool {
	i := r.indexOf(c)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return true
}

// Registry owns the room code to members mapping.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room
	presence presence
	log      *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		rooms:    make(map[string]*room),
		presence: presence{now: time.Now},
		log:      log,
	}
}

// lockRoom returns the room for code with its mutex held, creating it when
// create is set. A room deleted between lookup and lock is looked up again.
func (r *Registry) lockRoom(code string, create bool) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[code]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			rm = &room{code: code}
			r.rooms[code] = rm
			metrics.ActiveRooms.Inc()
			r.log.Debug("room created", zap.String("room", code))
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.deleted {
			return rm
		}
		rm.mu.Unlock()
	}
}

// dropRoom must be called with rm.mu held and rm empty.
func (r *Registry) dropRoom(rm *room) {
	rm.deleted = true
	r.mu.Lock()
	if r.rooms[rm.code] == rm {
		delete(r.rooms, rm.code)
		metrics.ActiveRooms.Dec()
	}
	r.mu.Unlock()
	r.log.Debug("room removed", zap.String("room", rm.code))
}

// Join binds id to c, leaves any other room c is in, and adds c to the room.
// The roster, which includes c, is sent to c alone; the other members get a
// user-joined notice. Joining the room c is already in only resends the roster.
func (r *Registry) Join(c *Connection, code string, id Identity) ([]PresenceEntry, error) {
	if err := ValidateRoomCode(code); err != nil {
		return nil, err
	}
	if err := c.Authenticate(id); err != nil {
		return nil, err
	}

	c.membership.Lock()
	defer c.membership.Unlock()
	if c.Closed() {
		return nil, ErrTransportClosed
	}

	if current := c.RoomCode(); current != "" && current != code {
		r.leaveLocked(c)
	}

	rm := r.lockRoom(code, true)
	defer rm.mu.Unlock()

	rejoin := rm.indexOf(c) >= 0
	if !rejoin {
		rm.members = append(rm.members, c)
		c.setRoom(code)
	}

	roster := r.presence.roster(rm.members)
	frame, err := r.presence.rosterFrame(roster)
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}
	r.deliver(c, frame)

	if !rejoin {
		if notice, err := r.presence.joinedFrame(c); err == nil {
			r.broadcastLocked(rm, c, notice)
		}
		r.log.Info("connection joined room",
			zap.String("room", code),
			zap.String("connectionId", c.ID()),
			zap.String("userId", id.UserID),
			zap.Int("members", len(rm.members)))
	}
	return roster, nil
}

// Leave removes c from its room. It reports whether c was in one.
func (r *Registry) Leave(c *Connection) bool {
	c.membership.Lock()
	defer c.membership.Unlock()
	return r.leaveLocked(c)
}

func (r *Registry) leaveLocked(c *Connection) bool {
	code := c.RoomCode()
	if code == "" {
		return false
	}
	c.setRoom("")

	rm := r.lockRoom(code, false)
	if rm == nil {
		return false
	}
	defer rm.mu.Unlock()

	if !rm.remove(c) {
		return false
	}
	if notice, err := r.presence.leftFrame(c); err == nil {
		r.broadcastLocked(rm, c, notice)
	}
	r.log.Info("connection left room",
		zap.String("room", code),
		zap.String("connectionId", c.ID()),
		zap.Int("members", len(rm.members)))

	if len(rm.members) == 0 {
		r.dropRoom(rm)
	}
	return true
}

// MembersOf returns a snapshot of the roster; empty when the room does not exist.
func (r *Registry) MembersOf(code string) []PresenceEntry {
	rm := r.lockRoom(code, false)
	if rm == nil {
		return []PresenceEntry{}
	}
	defer rm.mu.Unlock()
	return r.presence.roster(rm.members)
}

// Fanout delivers frame to every member of the room except sender. The
// sender must be a member.
func (r *Registry) Fanout(sender *Connection, code string, frame []byte) error {
	rm := r.lockRoom(code, false)
	if rm == nil {
		return fmt.Errorf("%w: %s", ErrNotInRoom, code)
	}
	defer rm.mu.Unlock()
	if rm.indexOf(sender) < 0 {
		return fmt.Errorf("%w: %s", ErrNotInRoom, code)
	}
	r.broadcastLocked(rm, sender, frame)
	return nil
}

// Stats returns the number of rooms and of room members.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.Lock()
	all := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		all = append(all, rm)
	}
	r.mu.Unlock()

	for _, rm := range all {
		rm.mu.Lock()
		if !rm.deleted {
			rooms++
			members += len(rm.members)
		}
		rm.mu.Unlock()
	}
	return rooms, members
}

func (r *Registry) broadcastLocked(rm *room, exclude *Connection, frame []byte) {
	for _, m := range rm.members {
		if m == exclude {
			continue
		}
		r.deliver(m, frame)
	}
}

// deliver enqueues one frame for one peer. Failures are logged and never
// returned: a closed peer is skipped and a full one is force-closed.
func (r *Registry) deliver(c *Connection, frame []byte) {
	err := c.Send(frame)
	switch {
	case err == nil:
	case errors.Is(err, ErrCapacityExceeded):
		metrics.DeliveriesDropped.WithLabelValues("capacity").Inc()
		r.log.Warn("outbound buffer full, closing connection", zap.String("connectionId", c.ID()))
		// Close re-enters the registry, so it cannot run under this room lock.
		go c.Close()
	default:
		metrics.DeliveriesDropped.WithLabelValues("closed").Inc()
		r.log.Debug("skipping closed connection", zap.String("connectionId", c.ID()), zap.Error(err))
	}
}
