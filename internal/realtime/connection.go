package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Connection is one client channel held by the broker. The transport drains
// Outbound and watches Done; everything else goes through the broker.
type Connection struct {
	id   string
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closing   atomic.Bool
	onClose   func(*Connection)

	// membership serializes join and leave for this connection
	membership sync.Mutex

	mu       sync.RWMutex
	identity *Identity
	roomCode string
}

func newConnection(sendBuffer int, onClose func(*Connection)) *Connection {
	return &Connection{
		id:      uuid.NewString(),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (c *Connection) ID() string { return c.id }

// Identity returns the bound identity, if any.
func (c *Connection) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// RoomCode is the room this connection is in, or "".
func (c *Connection) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

func (c *Connection) setRoom(code string) {
	c.mu.Lock()
	c.roomCode = code
	c.mu.Unlock()
}

// Authenticate binds a pre-verified identity. Binding the same user again is
// a no-op; binding a different user fails.
func (c *Connection) Authenticate(id Identity) error {
	if !id.Valid() {
		return fmt.Errorf("%w: identity has no user id", ErrUnauthenticated)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != nil {
		if c.identity.UserID != id.UserID {
			return fmt.Errorf("%w: connection already bound to another user", ErrUnauthenticated)
		}
		return nil
	}
	c.identity = &id
	return nil
}

// Send enqueues a frame without blocking.
func (c *Connection) Send(frame []byte) error {
	if c.closing.Load() {
		return ErrTransportClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrCapacityExceeded
	}
}

// Outbound is the ordered queue of frames for this connection.
func (c *Connection) Outbound() <-chan []byte { return c.send }

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has started.
func (c *Connection) Closed() bool { return c.closing.Load() }

// Close removes the connection from its room and releases it. Safe to call
// from any goroutine any number of times; the work runs once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		if c.onClose != nil {
			c.onClose(c)
		}
		close(c.done)
	})
}
