package r3proxy

import (
	"go.uber.org/zap"
)

// EventLoop is the write-interest surface of the poller driving the proxy.
// The engine registers a client connection for write-readiness once a
// response is ready for it, and deregisters when it runs dry. Both calls must
// be idempotent.
type EventLoop interface {
	RegisterWrite(*Conn) error
	DeregisterWrite(*Conn) error
}

// Config configures an Engine.
type Config struct {
	// Loop receives write-interest changes for client connections. Required.
	Loop EventLoop

	// Arena supplies and recycles messages. Defaults to an unbounded arena.
	Arena *MessageArena

	// Logger receives engine debug and error logs. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// Engine is the response correlation and forwarding core. It pairs backend
// responses with their originating requests, folds fragment-group errors into
// single client answers, and preserves strict submission order on the client
// side regardless of backend completion order.
//
// The engine is driven by the event loop: all entry points touch only
// already-buffered data and report "not ready" instead of blocking. Each
// connection's queues are mutated solely by the call path that owns the
// connection within one event-loop turn, so the engine itself takes no locks.
type Engine struct {
	arena *MessageArena
	loop  EventLoop
	log   *zap.Logger
}

// NewEngine creates an engine from config.
func NewEngine(config Config) (*Engine, error) {
	if config.Loop == nil {
		return nil, ErrNoEventLoop
	}
	arena := config.Arena
	if arena == nil {
		arena = NewMessageArena(0)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		arena: arena,
		loop:  config.Loop,
		log:   logger,
	}, nil
}

// Arena returns the engine's message arena, shared with the request path.
func (e *Engine) Arena() *MessageArena { return e.arena }

func (e *Engine) clusterStats(c *Conn) *clusterStatsCollector {
	if c.cluster == nil {
		return nil
	}
	return &c.cluster.stats
}
