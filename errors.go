package r3proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendFailure is the error set on a request when its backend
	// connection failed before a response arrived.
	ErrBackendFailure = errors.New("r3proxy: backend failure")

	// ErrTimeout is the error set on a request that exceeded its deadline
	// while waiting for a backend response.
	ErrTimeout = errors.New("r3proxy: request timed out")

	// ErrNoRoute is the error set on a request that could not be assigned
	// to any backend.
	ErrNoRoute = errors.New("r3proxy: no backend available for request")

	// ErrStrayResponse is recorded on a backend connection that produced a
	// response with no outstanding request. The response stream is
	// desynchronized from the request stream, so the connection is closed
	// rather than risk matching future responses to the wrong requests.
	ErrStrayResponse = errors.New("r3proxy: stray response")

	// ErrTruncatedResponse is recorded when a backend half-closes while a
	// response is partially received.
	ErrTruncatedResponse = errors.New("r3proxy: truncated response")

	// ErrMessageLimit is returned by a bounded arena when the live message
	// count would exceed its limit. Surfaces as a connection-level error.
	ErrMessageLimit = errors.New("r3proxy: message limit reached")

	// ErrNoEventLoop is returned by NewEngine when no event loop was given.
	ErrNoEventLoop = errors.New("r3proxy: event loop is required")
)

// invariant panics with a formatted message. It guards correlation-state
// invariants whose violation means an upstream caller broke the queueing
// contract; these are programming errors, never runtime conditions.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic("r3proxy: invariant violation: " + fmt.Sprintf(format, args...))
	}
}
