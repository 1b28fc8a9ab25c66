// File: engine/doc.go
// Package engine provides the Protocol Engine implementations consumed by
// the facade and produced by the server upgrade pipeline.
//
// Two engines exist:
//   - Dialer: the client side, built on gorilla/websocket. Open dials the
//     remote endpoint and an internal read loop pumps inbound messages.
//   - Peer: the server side, built on gobwas/ws framing over the raw
//     net.Conn a listener upgraded. It is born in the connected state.
//
// Both are thread-affine per the api.Engine contract: all method calls must
// come from the single goroutine that owns the instance. Event callbacks
// fire on engine-internal goroutines.
package engine
