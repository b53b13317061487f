package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBroker(t *testing.T, sendBuffer int) *Broker {
	t.Helper()
	return NewBroker(zap.NewNop(), sendBuffer)
}

func openAs(t *testing.T, b *Broker, userID string) *Connection {
	t.Helper()
	c := b.Open()
	require.NoError(t, c.Authenticate(Identity{UserID: userID, Email: userID + "@example.com"}))
	return c
}

func joinRoom(t *testing.T, b *Broker, c *Connection, code string) []PresenceEntry {
	t.Helper()
	id, ok := c.Identity()
	require.True(t, ok)
	roster, err := b.Registry().Join(c, code, id)
	require.NoError(t, err)
	return roster
}

// drain returns every frame queued for c so far.
func drain(t *testing.T, c *Connection) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-c.Outbound():
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventsOf(envs []Envelope) []string {
	names := make([]string, 0, len(envs))
	for _, e := range envs {
		names = append(names, e.Event)
	}
	return names
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func connectionIDs(entries []PresenceEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ConnectionID)
	}
	return ids
}
