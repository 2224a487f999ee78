package r3proxy

import (
	"go.uber.org/zap"
)

// NextResponseToSend selects the response to write next on a client
// connection. Responses leave in strict request-submission order, never in
// backend-completion order: the walk always starts from the head of the
// pending queue and advances only past fully answered requests.
//
// For a request flagged failed, the error response is synthesized here,
// lazily at send time.
func (e *Engine) NextResponseToSend(conn *Conn) *Message {
	invariant(conn.Role == RoleClient, "NextResponseToSend on %s conn", conn.Role)

	req := conn.Head()
	if req == nil || !requestReady(conn, req) {
		// Nothing outstanding. A client half-close completes the connection
		// only once the pending queue has drained.
		if req == nil && conn.EOF {
			conn.Done = true
			e.log.Debug("client connection done", zap.String("client", conn.RemoteAddr))
		}
		if err := e.loop.DeregisterWrite(conn); err != nil {
			conn.Err = err
		}
		return nil
	}

	// Advance past the response already in flight, if any.
	msg := conn.CurrentSend
	if msg != nil {
		invariant(!msg.IsRequest && msg.peer != nil, "send slot holds unpaired or request message")
		invariant(requestReady(conn, msg.peer), "in-flight response for unready request %d", msg.peer.ID)
		req = conn.nextQueued(msg.peer)
	}

	if req == nil || !requestReady(conn, req) {
		conn.CurrentSend = nil
		return nil
	}
	invariant(req.IsRequest && !req.Swallow, "swallowed request %d reached egress", req.ID)

	if requestFailed(conn, req) {
		rsp, err := e.makeErrorResponse(conn, req)
		if err != nil {
			conn.Err = err
			return nil
		}
		pair(req, rsp)
		e.clusterStats(conn).incrForwardError()
		msg = rsp
	} else {
		msg = req.peer
	}
	invariant(msg != nil && !msg.IsRequest, "no response paired to ready request %d", req.ID)

	conn.CurrentSend = msg

	e.log.Debug("send next response",
		zap.String("client", conn.RemoteAddr),
		zap.Uint64("rsp_id", msg.ID))

	return msg
}

// makeErrorResponse folds a failed request's fragment group into one
// synthesized error response, the only message the client will see for the
// whole group. Sibling fragments are dequeued from the client's pending
// queue: already answered ones are released together with their responses,
// while fragments still awaiting a backend are marked swallow so the filter
// discards their late answers.
//
// The representative error is the first non-nil error in queue order,
// starting with req itself; sibling errors are not merged.
func (e *Engine) makeErrorResponse(conn *Conn, req *Message) (*Message, error) {
	invariant(conn.Role == RoleClient, "makeErrorResponse on %s conn", conn.Role)
	invariant(req.IsRequest && req.Owner == conn, "request %d not owned by conn", req.ID)
	invariant(requestFailed(conn, req), "makeErrorResponse on healthy request %d", req.ID)

	repr := req.err
	if req.FragmentID != 0 {
		for sib := conn.nextQueued(req); sib != nil && sib.FragmentID == req.FragmentID; {
			next := conn.nextQueued(sib)
			conn.Dequeue(sib)
			if repr == nil && sib.err != nil {
				repr = sib.err
			}
			if sib.Done {
				e.arena.ReleaseRequest(sib)
			} else {
				// Still outstanding on its backend; its response will be
				// read and discarded there.
				sib.Swallow = true
			}
			sib = next
		}
	}
	if repr == nil {
		repr = ErrBackendFailure
	}

	// A partial response paired earlier (pre-forward hook path) is superseded
	// by the synthesized error.
	if old := req.peer; old != nil {
		invariant(!old.IsRequest && old.peer == req, "request %d paired to bad peer", req.ID)
		unpair(req, old)
		e.arena.ReleaseResponse(old)
	}

	rsp, err := e.arena.Get(nil, false)
	if err != nil {
		return nil, err
	}
	rsp.err = repr
	rsp.Type = "error"
	return rsp, nil
}

// OnResponseSent is called by the writer once msg has been fully written to
// the client. It retires the answered request and recycles both messages.
func (e *Engine) OnResponseSent(conn *Conn, msg *Message) {
	invariant(conn.Role == RoleClient, "OnResponseSent on %s conn", conn.Role)

	if conn.CurrentSend == msg {
		conn.CurrentSend = nil
	}

	req := msg.peer
	invariant(!msg.IsRequest && req != nil && req.IsRequest, "sent message %d has no request peer", msg.ID)
	invariant(req.peer == msg, "asymmetric peer link on request %d", req.ID)
	invariant(req.Done && !req.Swallow, "sent response for unfinished request %d", req.ID)

	e.log.Debug("send done",
		zap.String("client", conn.RemoteAddr),
		zap.Uint64("rsp_id", msg.ID))

	conn.Dequeue(req)
	e.arena.ReleaseRequest(req)
}
