package r3proxy

import (
	"sync/atomic"
)

// LatencyThresholdsMs are the cumulative latency bucket bounds. A completed
// request increments every bucket its cost exceeds, in its locality class, so
// the counters form a cumulative histogram rather than exclusive buckets.
var LatencyThresholdsMs = [6]int64{10, 20, 50, 100, 200, 500}

// ClusterStats counts cluster-scope filter and egress outcomes.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose all fields as counters.
type ClusterStats struct {
	ForwardErrors      uint64 // error responses synthesized at egress
	StrayResponses     uint64 // responses with no outstanding request
	SwallowedResponses uint64 // responses discarded for already-errored fragment groups
	EmptyResponses     uint64 // zero-length responses dropped at the filter
	TruncatedResponses uint64 // partial responses discarded on backend half-close
}

// BackendStats counts per-backend forwarded traffic.
type BackendStats struct {
	Responses     uint64 // responses forwarded from this backend
	ResponseBytes uint64 // bytes of those responses
}

// LatencyStats holds the cumulative threshold counters, segmented by backend
// locality. Index i corresponds to LatencyThresholdsMs[i].
type LatencyStats struct {
	LocalOver [6]uint64 // same-datacenter backends
	CrossOver [6]uint64 // remote backends
}

// clusterStatsCollector updates cluster stats. Methods tolerate a nil
// receiver so connections without a cluster (tests, probes) skip accounting.
type clusterStatsCollector struct {
	stats ClusterStats
}

func (c *clusterStatsCollector) incrForwardError() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.stats.ForwardErrors, 1)
}

func (c *clusterStatsCollector) incrStray() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.stats.StrayResponses, 1)
}

func (c *clusterStatsCollector) incrSwallowed() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.stats.SwallowedResponses, 1)
}

func (c *clusterStatsCollector) incrEmpty() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.stats.EmptyResponses, 1)
}

func (c *clusterStatsCollector) incrTruncated() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.stats.TruncatedResponses, 1)
}

func (c *clusterStatsCollector) snapshot() ClusterStats {
	return ClusterStats{
		ForwardErrors:      atomic.LoadUint64(&c.stats.ForwardErrors),
		StrayResponses:     atomic.LoadUint64(&c.stats.StrayResponses),
		SwallowedResponses: atomic.LoadUint64(&c.stats.SwallowedResponses),
		EmptyResponses:     atomic.LoadUint64(&c.stats.EmptyResponses),
		TruncatedResponses: atomic.LoadUint64(&c.stats.TruncatedResponses),
	}
}

type backendStatsCollector struct {
	stats BackendStats
}

func (c *backendStatsCollector) recordResponse(size uint32) {
	atomic.AddUint64(&c.stats.Responses, 1)
	atomic.AddUint64(&c.stats.ResponseBytes, uint64(size))
}

func (c *backendStatsCollector) snapshot() BackendStats {
	return BackendStats{
		Responses:     atomic.LoadUint64(&c.stats.Responses),
		ResponseBytes: atomic.LoadUint64(&c.stats.ResponseBytes),
	}
}

type latencyCollector struct {
	stats LatencyStats
}

// observe increments every threshold counter the cost exceeds, in the
// locality class of the serving backend.
func (c *latencyCollector) observe(local bool, costMs int64) {
	if c == nil {
		return
	}
	buckets := &c.stats.CrossOver
	if local {
		buckets = &c.stats.LocalOver
	}
	for i, threshold := range LatencyThresholdsMs {
		if costMs > threshold {
			atomic.AddUint64(&buckets[i], 1)
		}
	}
}

func (c *latencyCollector) snapshot() LatencyStats {
	var s LatencyStats
	for i := range LatencyThresholdsMs {
		s.LocalOver[i] = atomic.LoadUint64(&c.stats.LocalOver[i])
		s.CrossOver[i] = atomic.LoadUint64(&c.stats.CrossOver[i])
	}
	return s
}
