package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docsync-api/internal/realtime"
)

var errDropped = errors.New("connection reset")

// fakeConn is an in-memory transport. Frames pushed with deliver are read by
// the session; frames the session writes are collected in sent.
type fakeConn struct {
	inbound chan []byte
	done    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent []realtime.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 64), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.done:
		return nil, errDropped
	}
}

func (c *fakeConn) WriteMessage(frame []byte) error {
	select {
	case <-c.done:
		return errDropped
	default:
	}
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) deliver(t *testing.T, event string, data any) {
	t.Helper()
	frame, err := realtime.EncodeFrame(event, data)
	require.NoError(t, err)
	c.inbound <- frame
}

func (c *fakeConn) sentEvents() []realtime.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Envelope(nil), c.sent...)
}

// fakeDialer hands out queued connections, or err when the queue is empty.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
}

func (d *fakeDialer) queue(c *fakeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, errors.New("no connection queued")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
