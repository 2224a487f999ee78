package r3proxy

import (
	"net"
)

// Role tells whether a connection faces a client or a backend server.
type Role uint8

const (
	RoleClient Role = iota + 1
	RoleBackend
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Conn is one transport endpoint, client- or backend-facing. The accept/dial
// layer constructs it around an established socket; the engine only touches
// its queues and in-flight message slots, never the socket itself.
//
// A client connection's queue holds requests in submission order until their
// responses have been written back (the pending queue). A backend
// connection's queue holds requests sent to that backend and not yet answered
// (the outstanding queue).
type Conn struct {
	// Role is fixed at construction.
	Role Role

	// RemoteAddr is the peer address, captured once at construction.
	RemoteAddr string

	// CurrentRecv is the at-most-one response partially read from a backend.
	CurrentRecv *Message

	// CurrentSend is the at-most-one response partially written to a client.
	CurrentSend *Message

	// EOF records a half-close observed from the peer.
	EOF bool

	// Done marks the connection for teardown once current obligations drain.
	Done bool

	// Err is the sticky connection-level error, set by the engine or by the
	// I/O layer.
	Err error

	// Backend is the backend descriptor this connection belongs to. Nil for
	// client connections.
	Backend *Backend

	cluster *Cluster
	queue   msgQueue
	sock    net.Conn
}

// NewClientConn creates a client-facing connection. remoteAddr is the already
// resolved peer address; cluster may be nil when the listener is not bound to
// a cluster (tests, probes).
func NewClientConn(remoteAddr string, cluster *Cluster) *Conn {
	return &Conn{
		Role:       RoleClient,
		RemoteAddr: remoteAddr,
		cluster:    cluster,
		queue:      msgQueue{slot: slotClient},
	}
}

// NewBackendConn creates a backend-facing connection owned by b.
func NewBackendConn(remoteAddr string, b *Backend) *Conn {
	c := &Conn{
		Role:       RoleBackend,
		RemoteAddr: remoteAddr,
		Backend:    b,
		queue:      msgQueue{slot: slotBackend},
	}
	if b != nil {
		c.cluster = b.cluster
	}
	return c
}

// newDialedConn wraps an established socket in a backend connection. Used by
// the Backend connection pool.
func newDialedConn(sock net.Conn, b *Backend) *Conn {
	c := NewBackendConn(sock.RemoteAddr().String(), b)
	c.sock = sock
	return c
}

// Sock returns the underlying socket, if the connection owns one.
func (c *Conn) Sock() net.Conn { return c.sock }

// Enqueue appends m to the connection's in-flight queue: the pending queue of
// a client connection, the outstanding queue of a backend one.
func (c *Conn) Enqueue(m *Message) {
	invariant(m.IsRequest, "enqueue of response %d on %s conn", m.ID, c.Role)
	c.queue.enqueue(m)
}

// Dequeue removes m from the connection's in-flight queue.
func (c *Conn) Dequeue(m *Message) {
	c.queue.dequeue(m)
}

// Head returns the oldest in-flight request, or nil.
func (c *Conn) Head() *Message { return c.queue.peekHead() }

// nextQueued returns the request enqueued after m, in submission order.
func (c *Conn) nextQueued(m *Message) *Message { return c.queue.next(m) }

// QueueLen returns the number of in-flight requests.
func (c *Conn) QueueLen() int { return c.queue.len() }

// Idle reports whether the connection has no queued work and no partial
// message in flight. The connection manager destroys a Done connection once
// it is idle.
func (c *Conn) Idle() bool {
	return c.queue.len() == 0 && c.CurrentRecv == nil && c.CurrentSend == nil
}

// Close closes the underlying socket, if any.
func (c *Conn) Close() error {
	if c.sock == nil {
		return nil
	}
	return c.sock.Close()
}
