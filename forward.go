package r3proxy

import (
	"go.uber.org/zap"

	"github.com/bearxwbyr/r3proxy/internal/coarsetime"
)

// forwardResponse pairs msg with the oldest outstanding request on its
// backend connection and hands the pair to the client send path. Dequeue from
// the outstanding queue and pairing happen in one step with no yield in
// between, which is what makes the ownership transfer atomic.
func (e *Engine) forwardResponse(conn *Conn, msg *Message) {
	size := msg.Length

	// A response implies the backend is alive and heartbeating.
	if b := conn.Backend; b != nil {
		b.MarkHealthy()
	}

	req := conn.Head()
	invariant(req != nil && req.peer == nil, "forward with no unpaired outstanding request")
	invariant(req.IsRequest && !req.Done, "forward against done request %d", req.ID)

	conn.Dequeue(req)
	pair(req, msg)

	if msg.PreForward != nil {
		if err := msg.PreForward(conn, msg); err != nil {
			// The hook owns cleanup and retry for this case.
			e.log.Debug("pre-forward hook rejected response",
				zap.Uint64("rsp_id", msg.ID),
				zap.Error(err))
			return
		}
	}

	req.Done = true

	if b := conn.Backend; b != nil && b.cluster != nil && b.cluster.slowlogEnabled {
		req.DepartTime = coarsetime.UnixMilli()
		e.recordLatency(b.cluster, req)
	}

	if msg.PreCoalesce != nil {
		msg.PreCoalesce(msg)
	}

	client := req.Owner
	invariant(client != nil && client.Role == RoleClient, "request %d owner is not a client conn", req.ID)

	if requestReady(client, client.Head()) {
		if err := e.loop.RegisterWrite(client); err != nil {
			client.Err = err
		}
	}

	if b := conn.Backend; b != nil {
		b.stats.recordResponse(size)
	}
}
