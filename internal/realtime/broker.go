package realtime

import (
	"sync"

	"go.uber.org/zap"

	"docsync-api/internal/metrics"
)

const defaultSendBuffer = 256

// Broker ties connections, the room registry and the event router together.
// It is created at server start and torn down with Shutdown.
type Broker struct {
	registry   *Registry
	router     *Router
	log        *zap.Logger
	sendBuffer int

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewBroker creates a broker whose connections buffer up to sendBuffer
// outbound frames before being force-closed.
func NewBroker(log *zap.Logger, sendBuffer int) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	registry := NewRegistry(log.Named("registry"))
	return &Broker{
		registry:   registry,
		router:     NewRouter(registry, log.Named("router")),
		log:        log,
		sendBuffer: sendBuffer,
		conns:      make(map[string]*Connection),
	}
}

func (b *Broker) Registry() *Registry { return b.registry }
func (b *Broker) Router() *Router     { return b.router }

// Open allocates a new connection with no identity and no room.
func (b *Broker) Open() *Connection {
	c := newConnection(b.sendBuffer, b.release)
	b.mu.Lock()
	b.conns[c.ID()] = c
	b.mu.Unlock()
	metrics.ActiveConnections.Inc()
	b.log.Debug("connection opened", zap.String("connectionId", c.ID()))
	return c
}

func (b *Broker) release(c *Connection) {
	b.registry.Leave(c)
	b.mu.Lock()
	delete(b.conns, c.ID())
	b.mu.Unlock()
	metrics.ActiveConnections.Dec()
	b.log.Debug("connection closed", zap.String("connectionId", c.ID()))
}

// Stats returns the number of live rooms and open connections.
func (b *Broker) Stats() (rooms, connections int) {
	rooms, _ = b.registry.Stats()
	b.mu.Lock()
	connections = len(b.conns)
	b.mu.Unlock()
	return rooms, connections
}

// Shutdown closes every open connection.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	open := make([]*Connection, 0, len(b.conns))
	for _, c := range b.conns {
		open = append(open, c)
	}
	b.mu.Unlock()

	for _, c := range open {
		c.Close()
	}
	b.log.Info("broker shut down", zap.Int("closed", len(open)))
}
