// Package r3proxy implements the response half of a transparent cache proxy:
// the correlation engine that matches backend responses to the requests that
// caused them, reassembles fragmented multi-key operations, folds partial
// failures into single error answers, and writes responses back to each
// client in strict submission order.
//
// The engine operates on already-decoded Messages and established Conns.
// Wire-format parsing, the poller, and request routing live outside and talk
// to the engine through the EventLoop interface, the per-message protocol
// hooks, and the queue operations on Conn.
package r3proxy
