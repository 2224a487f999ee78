package r3proxy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEngineRequiresLoop(t *testing.T) {
	_, err := NewEngine(Config{})
	require.ErrorIs(t, err, ErrNoEventLoop)
}

func TestNewEngineDefaults(t *testing.T) {
	engine, err := NewEngine(Config{Loop: newFakeLoop()})
	require.NoError(t, err)
	require.NotNil(t, engine.Arena())
}

func TestRegisterWriteFailureIsConnectionScoped(t *testing.T) {
	engine, loop := newTestEngine(t)
	loop.registerErr = errors.New("epoll_ctl: bad file descriptor")

	client := NewClientConn("10.0.0.1:1234", nil)
	backend := NewBackendConn("10.0.0.2:11211", nil)
	submitRequest(t, engine, client, backend, 0)
	deliverResponse(t, engine, backend, 10)

	require.ErrorIs(t, client.Err, loop.registerErr)
	require.NoError(t, backend.Err, "the failure must not leak to the backend conn")
}

func TestConnIdle(t *testing.T) {
	engine, _ := newTestEngine(t)
	client := NewClientConn("10.0.0.1:1234", nil)
	backend := NewBackendConn("10.0.0.2:11211", nil)
	require.True(t, client.Idle())

	submitRequest(t, engine, client, backend, 0)
	require.False(t, client.Idle())

	deliverResponse(t, engine, backend, 10)
	rsp := engine.NextResponseToSend(client)
	require.NotNil(t, rsp)
	require.False(t, client.Idle())

	engine.OnResponseSent(client, rsp)
	require.True(t, client.Idle())
}
