package r3proxy

// Queue link slots. A request sits in its client connection's pending queue
// for its whole lifetime and, while awaiting a backend response, also in one
// backend connection's outstanding queue. The two memberships use independent
// link slots so each queue keeps O(1) removal without the message ever having
// two owners for the same slot.
const (
	slotClient = iota
	slotBackend
	slotCount
)

type msgLinks struct {
	prev, next *Message
	queue      *msgQueue
}

// Message is one parsed protocol unit, request or response. The engine never
// looks inside the encoded body; parsing and serialization happen in the
// protocol layer, which fills in Length, Type and FirstKey.
type Message struct {
	// ID is a process-unique identifier assigned by the arena.
	ID uint64

	// IsRequest distinguishes requests from responses.
	IsRequest bool

	// FragmentID is zero for standalone requests. Sibling fragments spawned
	// from one multi-key client request share a non-zero FragmentID and are
	// enqueued contiguously on the client connection.
	FragmentID uint64

	// Owner is the client connection for requests and the backend connection
	// the response arrived on for responses. A synthesized error response has
	// no owner.
	Owner *Conn

	// Done is set once a response, real or synthesized, has been associated
	// and the request left the backend outstanding queue.
	Done bool

	// Swallow marks a request whose response must be read and discarded: a
	// sibling fragment already produced the client-visible error, so the
	// answer for this fragment no longer has anywhere to go.
	Swallow bool

	// Length is the byte length of the encoded message.
	Length uint32

	// Type is the protocol-level request type label, used by the slow log.
	Type string

	// FirstKey is the first key of the request, already truncated at its
	// recorded end offset by the protocol layer.
	FirstKey []byte

	// ArriveTime and DepartTime bracket a request's lifetime in wall-clock
	// milliseconds. ArriveTime is stamped by the request path when the
	// request is read from the client; DepartTime when its response is ready.
	ArriveTime int64
	DepartTime int64

	// PreForward, when set on a response, runs before the request is marked
	// done. A non-nil error aborts forwarding; the hook owns cleanup and
	// retry for that case.
	PreForward func(*Conn, *Message) error

	// PreCoalesce, when set on a response, performs protocol-specific body
	// transformation (fragment reassembly) after forwarding.
	PreCoalesce func(*Message)

	err   error
	peer  *Message
	links [slotCount]msgLinks
}

// Peer returns the message paired to this one: the response answering a
// request, or the request a response answers. Nil while unpaired.
func (m *Message) Peer() *Message { return m.peer }

// Err returns the sticky error recorded on the message, if any.
func (m *Message) Err() error { return m.err }

// Fail records err on a request and marks it done, so the egress path will
// synthesize an error response for it. The first error wins; later calls keep
// the original. The caller (timeout and backend-failure collaborators) must
// have removed the request from any backend outstanding queue first.
func (m *Message) Fail(err error) {
	invariant(m.IsRequest, "Fail on response %d", m.ID)
	invariant(m.links[slotBackend].queue == nil, "Fail on request %d still outstanding", m.ID)
	if m.err == nil {
		m.err = err
	}
	m.Done = true
}

// queued reports whether the message is present in any queue.
func (m *Message) queued() bool {
	for i := range m.links {
		if m.links[i].queue != nil {
			return true
		}
	}
	return false
}

// pair establishes the symmetric request/response link. It is the only place
// the link is written; both sides must be unpaired.
func pair(req, rsp *Message) {
	invariant(req.IsRequest && !rsp.IsRequest, "pair wants request+response, got %v/%v", req.IsRequest, rsp.IsRequest)
	invariant(req.peer == nil && rsp.peer == nil, "pair on already paired message %d/%d", req.ID, rsp.ID)
	req.peer = rsp
	rsp.peer = req
}

// unpair tears the link down on both sides atomically.
func unpair(req, rsp *Message) {
	invariant(req.peer == rsp && rsp.peer == req, "unpair on mismatched link %d/%d", req.ID, rsp.ID)
	req.peer = nil
	rsp.peer = nil
}

// requestReady reports whether req can be answered to its client: req itself
// is done and its fragment group is either fully done or contains a failed
// member. In the failed case the aggregator claims the still-pending siblings
// at send time, so there is no point waiting for their responses.
func requestReady(c *Conn, req *Message) bool {
	if req == nil || !req.Done {
		return false
	}
	if req.FragmentID == 0 {
		return true
	}
	failed := req.err != nil
	done := true
	for sib := c.nextQueued(req); sib != nil && sib.FragmentID == req.FragmentID; sib = c.nextQueued(sib) {
		if sib.err != nil {
			failed = true
		}
		if !sib.Done {
			done = false
		}
	}
	return done || failed
}

// requestFailed reports whether req or any queued sibling fragment carries an
// error, meaning the client must receive a synthesized error response.
func requestFailed(c *Conn, req *Message) bool {
	if req.err != nil {
		return true
	}
	if req.FragmentID == 0 {
		return false
	}
	for sib := c.nextQueued(req); sib != nil && sib.FragmentID == req.FragmentID; sib = c.nextQueued(sib) {
		if sib.err != nil {
			return true
		}
	}
	return false
}
