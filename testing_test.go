package r3proxy

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeLoop records write-interest changes from the engine.
type fakeLoop struct {
	writable    map[*Conn]bool
	registers   int
	deregisters int
	registerErr error
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{writable: make(map[*Conn]bool)}
}

func (l *fakeLoop) RegisterWrite(c *Conn) error {
	l.registers++
	if l.registerErr != nil {
		return l.registerErr
	}
	l.writable[c] = true
	return nil
}

func (l *fakeLoop) DeregisterWrite(c *Conn) error {
	l.deregisters++
	delete(l.writable, c)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeLoop) {
	t.Helper()
	loop := newFakeLoop()
	engine, err := NewEngine(Config{Loop: loop, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return engine, loop
}

// submitRequest allocates a request owned by client and places it in the
// client pending queue and, when backend is non-nil, the backend outstanding
// queue, the way the request path does after routing.
func submitRequest(t *testing.T, engine *Engine, client, backend *Conn, fragID uint64) *Message {
	t.Helper()
	req, err := engine.Arena().Get(client, true)
	require.NoError(t, err)
	req.FragmentID = fragID
	client.Enqueue(req)
	if backend != nil {
		backend.Enqueue(req)
	}
	return req
}

// deliverResponse runs a fully parsed response of the given length through
// the intake path on backend.
func deliverResponse(t *testing.T, engine *Engine, backend *Conn, length uint32) *Message {
	t.Helper()
	rsp, err := engine.NextResponse(backend, true)
	require.NoError(t, err)
	require.NotNil(t, rsp)
	rsp.Length = length
	engine.OnResponseComplete(backend, rsp, nil)
	return rsp
}

// drainClient pumps the egress path until it runs dry, returning the IDs of
// the answered requests in the order their responses were written out.
func drainClient(t *testing.T, engine *Engine, client *Conn) []uint64 {
	t.Helper()
	var answered []uint64
	for {
		rsp := engine.NextResponseToSend(client)
		if rsp == nil {
			return answered
		}
		answered = append(answered, rsp.Peer().ID)
		engine.OnResponseSent(client, rsp)
	}
}

func acceptConnections(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			buf := make([]byte, 1024)
			for {
				if _, err := c.Read(buf); err != nil {
					c.Close()
					return
				}
			}
		}(conn)
	}
}
