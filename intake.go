package r3proxy

import (
	"go.uber.org/zap"
)

// NextResponse returns the response message the reader should fill for a
// backend connection. A partially received response is returned as is; with
// alloc set, a fresh message is allocated and remembered as CurrentRecv.
// Without alloc, nil means nothing is buffered yet.
//
// A half-close from a backend is fatal for the connection: unlike a client
// half-close, it is not expected unless the server is misbehaving or crashed,
// so any partial response is discarded and the connection is marked done even
// with requests still outstanding.
func (e *Engine) NextResponse(conn *Conn, alloc bool) (*Message, error) {
	invariant(conn.Role == RoleBackend, "NextResponse on %s conn", conn.Role)

	if conn.EOF {
		if msg := conn.CurrentRecv; msg != nil {
			conn.CurrentRecv = nil
			invariant(msg.peer == nil && !msg.IsRequest, "partial recv %d in bad state", msg.ID)

			e.log.Error("discarding incomplete response on backend eof",
				zap.String("backend", conn.RemoteAddr),
				zap.Uint64("rsp_id", msg.ID),
				zap.Uint32("rsp_len", msg.Length),
				zap.Error(ErrTruncatedResponse))
			e.clusterStats(conn).incrTruncated()
			e.arena.ReleaseResponse(msg)
		}

		conn.Done = true
		e.log.Debug("backend connection done", zap.String("backend", conn.RemoteAddr))
		return nil, nil
	}

	if msg := conn.CurrentRecv; msg != nil {
		invariant(!msg.IsRequest, "request %d in recv slot", msg.ID)
		return msg, nil
	}

	if !alloc {
		return nil, nil
	}

	msg, err := e.arena.Get(conn, false)
	if err != nil {
		conn.Err = err
		return nil, err
	}
	conn.CurrentRecv = msg
	return msg, nil
}

// OnResponseComplete is called by the reader once msg is fully parsed on a
// backend connection. next is the already-buffered start of the following
// response, if the read pulled in more than one. Failures are connection
// scoped and recorded on the connections involved.
func (e *Engine) OnResponseComplete(conn *Conn, msg, next *Message) {
	invariant(conn.Role == RoleBackend, "OnResponseComplete on %s conn", conn.Role)
	invariant(msg != nil && conn.CurrentRecv == msg, "response %v not current on conn", msg)
	invariant(!msg.IsRequest && msg.Owner == conn, "response %d owner mismatch", msg.ID)
	invariant(next == nil || !next.IsRequest, "buffered request in response stream")

	conn.CurrentRecv = next

	if e.filterResponse(conn, msg) {
		return
	}
	e.forwardResponse(conn, msg)
}

// filterResponse discards responses that cannot or should not be forwarded.
// It reports true when msg was consumed.
func (e *Engine) filterResponse(conn *Conn, msg *Message) bool {
	// Zero-length responses carry no semantic content.
	if msg.Length == 0 {
		invariant(conn.CurrentRecv == nil, "empty response %d with buffered follow-up", msg.ID)
		e.log.Debug("filter empty response",
			zap.String("backend", conn.RemoteAddr),
			zap.Uint64("rsp_id", msg.ID))
		e.clusterStats(conn).incrEmpty()
		e.arena.ReleaseResponse(msg)
		return true
	}

	req := conn.Head()
	if req == nil {
		// A stray response means the backend's response stream no longer
		// lines up with its request stream. Sacrifice the connection: every
		// request still pending on it surfaces a backend error to its own
		// client, which beats silently mismatching future responses.
		e.log.Error("stray response, closing backend connection",
			zap.String("backend", conn.RemoteAddr),
			zap.Uint64("rsp_id", msg.ID),
			zap.Uint32("rsp_len", msg.Length))
		e.clusterStats(conn).incrStray()
		e.arena.ReleaseResponse(msg)
		conn.Err = ErrStrayResponse
		conn.Done = true
		return true
	}
	invariant(req.peer == nil, "outstanding request %d already paired", req.ID)
	invariant(req.IsRequest && !req.Done, "non-request or done message %d at queue head", req.ID)

	if req.Swallow {
		// A sibling fragment already produced the client-visible error; this
		// answer has nowhere to go.
		conn.Dequeue(req)
		req.Done = true

		e.log.Debug("swallow response",
			zap.String("backend", conn.RemoteAddr),
			zap.Uint64("rsp_id", msg.ID),
			zap.Uint64("req_id", req.ID),
			zap.Uint32("rsp_len", msg.Length))
		e.clusterStats(conn).incrSwallowed()

		e.arena.ReleaseResponse(msg)
		e.arena.ReleaseRequest(req)
		return true
	}

	return false
}
