// coarsetime provides a coarse clock to reduce the overhead of frequent
// time.Now() calls on the per-message hot path. It updates the current time
// at a fixed interval (1ms) in a separate goroutine, which bounds the stamp
// error well below the smallest latency bucket (10ms).
package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = time.Millisecond

var (
	now    atomic.Value
	millis atomic.Int64
)

func init() {
	t := time.Now()
	now.Store(t)
	millis.Store(t.UnixMilli())

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			now.Store(t)
			millis.Store(t.UnixMilli())
		}
	}()
}

func Now() time.Time {
	return now.Load().(time.Time)
}

// UnixMilli returns the coarse current time in Unix milliseconds.
func UnixMilli() int64 {
	return millis.Load()
}
