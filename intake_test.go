package r3proxy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNextResponseAllocation(t *testing.T) {
	engine, _ := newTestEngine(t)
	backend := NewBackendConn("10.0.0.2:11211", nil)

	t.Run("nothing buffered without alloc", func(t *testing.T) {
		rsp, err := engine.NextResponse(backend, false)
		require.NoError(t, err)
		require.Nil(t, rsp)
	})

	t.Run("allocates and remembers", func(t *testing.T) {
		rsp, err := engine.NextResponse(backend, true)
		require.NoError(t, err)
		require.NotNil(t, rsp)
		require.False(t, rsp.IsRequest)
		require.Same(t, backend, rsp.Owner)
		require.Same(t, rsp, backend.CurrentRecv)

		// Subsequent calls return the partial response without allocating.
		again, err := engine.NextResponse(backend, false)
		require.NoError(t, err)
		require.Same(t, rsp, again)
		require.EqualValues(t, 1, engine.Arena().Live())
	})
}

func TestNextResponseAllocationFailure(t *testing.T) {
	loop := newFakeLoop()
	engine, err := NewEngine(Config{
		Loop:   loop,
		Arena:  NewMessageArena(1),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	_, err = engine.Arena().Get(nil, true)
	require.NoError(t, err)

	backend := NewBackendConn("10.0.0.2:11211", nil)
	rsp, err := engine.NextResponse(backend, true)
	require.ErrorIs(t, err, ErrMessageLimit)
	require.Nil(t, rsp)
	require.ErrorIs(t, backend.Err, ErrMessageLimit)
}

func TestNextResponseBackendEOF(t *testing.T) {
	engine, _ := newTestEngine(t)
	cluster := NewCluster(ClusterConfig{Name: "test"})
	client := NewClientConn("10.0.0.1:1234", cluster)
	backend := NewBackendConn("10.0.0.2:11211", nil)
	backend.cluster = cluster
	submitRequest(t, engine, client, backend, 0)

	partial, err := engine.NextResponse(backend, true)
	require.NoError(t, err)
	partial.Length = 12

	backend.EOF = true
	rsp, err := engine.NextResponse(backend, true)
	require.NoError(t, err)
	require.Nil(t, rsp)
	require.True(t, backend.Done)
	require.Nil(t, backend.CurrentRecv)
	require.EqualValues(t, 1, cluster.Stats().TruncatedResponses)
	// The partial response was recycled; only the pending request is live.
	require.EqualValues(t, 1, engine.Arena().Live())
}

func TestFilterEmptyResponse(t *testing.T) {
	engine, _ := newTestEngine(t)
	cluster := NewCluster(ClusterConfig{Name: "test"})
	client := NewClientConn("10.0.0.1:1234", cluster)
	backend := NewBackendConn("10.0.0.2:11211", nil)
	backend.cluster = cluster
	req := submitRequest(t, engine, client, backend, 0)

	deliverResponse(t, engine, backend, 0)

	// The request stays outstanding and unpaired.
	require.Same(t, req, backend.Head())
	require.Nil(t, req.Peer())
	require.False(t, req.Done)
	require.EqualValues(t, 1, cluster.Stats().EmptyResponses)
	require.EqualValues(t, 1, engine.Arena().Live())
}

func TestFilterStrayResponse(t *testing.T) {
	engine, loop := newTestEngine(t)
	cluster := NewCluster(ClusterConfig{Name: "test"})
	backend := NewBackendConn("10.0.0.2:11211", nil)
	backend.cluster = cluster

	deliverResponse(t, engine, backend, 42)

	require.ErrorIs(t, backend.Err, ErrStrayResponse)
	require.True(t, backend.Done)
	require.EqualValues(t, 1, cluster.Stats().StrayResponses)
	require.EqualValues(t, 0, engine.Arena().Live())
	require.Zero(t, loop.registers)
}

func TestFilterSwallowedResponse(t *testing.T) {
	engine, loop := newTestEngine(t)
	cluster := NewCluster(ClusterConfig{Name: "test"})
	client := NewClientConn("10.0.0.1:1234", cluster)
	backend := NewBackendConn("10.0.0.2:11211", nil)
	backend.cluster = cluster

	req := submitRequest(t, engine, client, backend, 0)
	client.Dequeue(req) // the aggregator already claimed the slot
	req.Swallow = true

	deliverResponse(t, engine, backend, 42)

	require.Nil(t, backend.Head())
	require.EqualValues(t, 1, cluster.Stats().SwallowedResponses)
	require.EqualValues(t, 0, engine.Arena().Live())
	require.Zero(t, loop.registers)
}
