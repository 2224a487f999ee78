package r3proxy

import (
	"context"
	"net"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ClusterConfig configures a cluster of backend servers sharing one slow-log
// and latency-stat scope.
type ClusterConfig struct {
	// Name identifies the cluster in logs.
	Name string

	// SlowlogEnabled turns on latency stamping and the slow-log feed for
	// requests served by this cluster's backends.
	SlowlogEnabled bool

	// SlowThreshold is the minimum request cost that produces a structured
	// slow-log record. Costs below it still feed the latency buckets.
	SlowThreshold time.Duration

	// Logger receives the slow-log records. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// Cluster groups the backends one proxy listener forwards to. It carries the
// slow-log configuration and the cluster-scope counters the engine updates.
type Cluster struct {
	name            string
	slowlogEnabled  bool
	slowThresholdMs int64
	slowlog         *zap.Logger
	stats           clusterStatsCollector
	latency         latencyCollector
}

// NewCluster creates a cluster descriptor.
func NewCluster(config ClusterConfig) *Cluster {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cluster{
		name:            config.Name,
		slowlogEnabled:  config.SlowlogEnabled,
		slowThresholdMs: config.SlowThreshold.Milliseconds(),
		slowlog:         logger.Named("slowlog").With(zap.String("cluster", config.Name)),
	}
}

// Name returns the cluster name.
func (cl *Cluster) Name() string {
	if cl == nil {
		return ""
	}
	return cl.name
}

// Stats returns a snapshot of the cluster counters.
func (cl *Cluster) Stats() ClusterStats { return cl.stats.snapshot() }

// LatencyStats returns a snapshot of the cumulative latency buckets.
func (cl *Cluster) LatencyStats() LatencyStats { return cl.latency.snapshot() }

// BackendConfig configures one backend server of a cluster.
type BackendConfig struct {
	// Addr is the backend server address, host:port.
	Addr string

	// Local marks the backend as same-datacenter for latency accounting.
	Local bool

	// MaxConns is the maximum number of pooled connections to the backend.
	// Required: must be > 0 when the pool is used.
	MaxConns int32

	// Dialer is the net.Dialer used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// NewBreaker creates the health breaker for the backend.
	// If nil, DefaultBreakerConfig is used.
	NewBreaker func(addr string) *gobreaker.CircuitBreaker[bool]
}

// Backend is one server of a cluster: its address, locality class, health
// breaker, traffic counters and a pool of dialed connections.
type Backend struct {
	addr    string
	local   bool
	cluster *Cluster
	breaker *gobreaker.CircuitBreaker[bool]
	conns   *puddle.Pool[*Conn]
	stats   backendStatsCollector
}

// NewBackend creates a backend of cluster cl.
func NewBackend(cl *Cluster, config BackendConfig) (*Backend, error) {
	newBreaker := config.NewBreaker
	if newBreaker == nil {
		newBreaker = DefaultBreakerConfig()
	}

	b := &Backend{
		addr:    config.Addr,
		local:   config.Local,
		cluster: cl,
		breaker: newBreaker(config.Addr),
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	conns, err := puddle.NewPool(&puddle.Config[*Conn]{
		Constructor: func(ctx context.Context) (*Conn, error) {
			sock, err := dialer.DialContext(ctx, "tcp", config.Addr)
			if err != nil {
				return nil, err
			}
			return newDialedConn(sock, b), nil
		},
		Destructor: func(c *Conn) {
			_ = c.Close()
		},
		MaxSize: config.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	b.conns = conns
	return b, nil
}

// Addr returns the backend server address.
func (b *Backend) Addr() string { return b.addr }

// Local reports whether the backend is same-datacenter.
func (b *Backend) Local() bool { return b.local }

// Cluster returns the owning cluster.
func (b *Backend) Cluster() *Cluster { return b.cluster }

// Stats returns a snapshot of the backend traffic counters.
func (b *Backend) Stats() BackendStats { return b.stats.snapshot() }

// Acquire checks a dialed connection out of the pool, dialing if none is
// idle. The caller returns it with Release or Destroy on the resource.
func (b *Backend) Acquire(ctx context.Context) (*puddle.Resource[*Conn], error) {
	return b.conns.Acquire(ctx)
}

// Close tears down the connection pool.
func (b *Backend) Close() {
	b.conns.Close()
}

// MarkHealthy records a successful interaction with the backend. The
// forwarder calls it on every response, cancelling any pending failure state
// the breaker accumulated.
func (b *Backend) MarkHealthy() {
	_, _ = b.breaker.Execute(func() (bool, error) { return true, nil })
}

// MarkFailed records a failed interaction (connect failure, timeout).
func (b *Backend) MarkFailed(err error) {
	_, _ = b.breaker.Execute(func() (bool, error) { return false, err })
}

// Available reports whether the breaker currently admits traffic.
func (b *Backend) Available() bool {
	return b.breaker.State() != gobreaker.StateOpen
}

// DefaultBreakerConfig returns a breaker factory with the default trip rule:
// at least 3 requests in the window and a 60% failure ratio.
func DefaultBreakerConfig() func(addr string) *gobreaker.CircuitBreaker[bool] {
	return NewBreakerConfig(1, time.Minute, 30*time.Second)
}

// NewBreakerConfig returns a function that creates health breakers for
// backends. maxRequests bounds probes in the half-open state; interval is the
// cyclic period of the closed state; timeout is how long the open state lasts
// before probing again.
func NewBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) *gobreaker.CircuitBreaker[bool] {
	return func(addr string) *gobreaker.CircuitBreaker[bool] {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}
		return gobreaker.NewCircuitBreaker[bool](settings)
	}
}
