package r3proxy

import (
	"sync"
	"sync/atomic"
)

// MessageArena allocates and recycles Messages. IDs are process-unique and
// monotonic. A limit > 0 bounds the number of live messages; exceeding it
// surfaces ErrMessageLimit, which callers treat as a connection-level error.
//
// A message may be released only once it is unpaired and in no queue.
type MessageArena struct {
	pool   sync.Pool
	nextID atomic.Uint64
	live   atomic.Int64
	limit  int64
}

// NewMessageArena creates an arena. limit <= 0 means unbounded.
func NewMessageArena(limit int64) *MessageArena {
	a := &MessageArena{limit: limit}
	a.pool.New = func() any { return new(Message) }
	return a
}

// Get allocates a message owned by conn. owner is the client connection for
// requests and the backend connection for responses; a synthesized response
// passes nil.
func (a *MessageArena) Get(owner *Conn, isRequest bool) (*Message, error) {
	if a.limit > 0 {
		if a.live.Add(1) > a.limit {
			a.live.Add(-1)
			return nil, ErrMessageLimit
		}
	} else {
		a.live.Add(1)
	}
	m := a.pool.Get().(*Message)
	m.ID = a.nextID.Add(1)
	m.IsRequest = isRequest
	m.Owner = owner
	return m, nil
}

// ReleaseResponse returns an unpaired response to the arena.
func (a *MessageArena) ReleaseResponse(m *Message) {
	invariant(!m.IsRequest, "ReleaseResponse on request %d", m.ID)
	invariant(m.peer == nil, "ReleaseResponse on paired response %d", m.ID)
	a.put(m)
}

// ReleaseRequest returns a request to the arena. A response still paired to
// it is unlinked and released first, so the peer link is torn down on both
// sides before either message is recycled.
func (a *MessageArena) ReleaseRequest(m *Message) {
	invariant(m.IsRequest, "ReleaseRequest on response %d", m.ID)
	if rsp := m.peer; rsp != nil {
		unpair(m, rsp)
		a.put(rsp)
	}
	a.put(m)
}

// Live returns the number of messages currently allocated.
func (a *MessageArena) Live() int64 { return a.live.Load() }

func (a *MessageArena) put(m *Message) {
	invariant(m.peer == nil, "release of paired message %d", m.ID)
	invariant(!m.queued(), "release of queued message %d", m.ID)
	*m = Message{}
	a.live.Add(-1)
	a.pool.Put(m)
}
