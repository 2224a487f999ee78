package r3proxy

import (
	"go.uber.org/zap"
)

// recordLatency feeds the latency buckets for a freshly answered request and
// emits a structured slow-log record when the cost crosses the cluster
// threshold. Called from the forwarder, once per forwarded request-response
// pair, with the depart stamp already set.
func (e *Engine) recordLatency(cl *Cluster, req *Message) {
	rsp := req.peer
	invariant(req.Done && req.IsRequest, "recordLatency on unanswered request %d", req.ID)
	invariant(rsp != nil && !rsp.IsRequest, "recordLatency on unpaired request %d", req.ID)

	cost := req.DepartTime - req.ArriveTime
	if cost < 0 {
		// The coarse clock moved backwards between stamps; a zero cost is
		// legitimate, a negative one is not.
		cost = 0
	}

	var backend *Backend
	if rsp.Owner != nil {
		backend = rsp.Owner.Backend
	}
	if backend != nil {
		cl.latency.observe(backend.local, cost)
	}

	if cost < cl.slowThresholdMs {
		return
	}

	clientAddr := ""
	if req.Owner != nil {
		clientAddr = req.Owner.RemoteAddr
	}
	serverAddr := ""
	if rsp.Owner != nil {
		serverAddr = rsp.Owner.RemoteAddr
	}

	cl.slowlog.Info("slow request",
		zap.Uint64("request_id", req.ID),
		zap.String("client_address", clientAddr),
		zap.String("server_address", serverAddr),
		zap.Int64("cost_ms", cost),
		zap.Uint64("fragment_id", req.FragmentID),
		zap.String("request_type", req.Type),
		zap.Uint32("request_len", req.Length),
		zap.Uint32("response_len", rsp.Length),
		zap.ByteString("key", req.FirstKey))
}
