// File: api/engine.go
// Protocol Engine contract.
//
// An Engine owns one WebSocket connection end to end: socket I/O and frame
// encode/decode. Engines are thread-affine by convention: every method must
// be invoked from the single goroutine that owns the instance (the facade's
// worker goroutine, or the goroutine that accepted a server connection).
// All cross-goroutine interaction goes through command and event queues
// built on top of this contract, never through the Engine directly.
package api

// Engine is the operational surface of one WebSocket connection.
type Engine interface {
	// Open establishes a connection to url. Completion is observed through
	// the StateChanged/Connected events, not a return value. Opening an
	// already-open engine closes the current connection first and redials.
	Open(url string)

	// Close initiates the closing handshake with the given code and reason.
	Close(code CloseCode, reason string)

	// SendText writes a text message and reports the payload length written,
	// or an error if the connection is not established.
	SendText(msg string) (int64, error)

	// SendBinary writes a binary message, same semantics as SendText.
	SendBinary(data []byte) (int64, error)

	// RequestURL returns the url passed to the most recent Open, or the
	// empty string for a server-accepted connection.
	RequestURL() string

	// State reports the engine-native socket state.
	State() SocketState
}

// EngineEvents carries the event callbacks an Engine invokes as the
// connection progresses. Any callback may be nil. Callbacks fire on
// engine-internal goroutines; receivers that need ordering or thread
// isolation must re-queue (the facade's event mailbox does exactly that).
type EngineEvents struct {
	Connected     func()
	Disconnected  func()
	StateChanged  func(SocketState)
	TextMessage   func(msg string)
	BinaryMessage func(data []byte)
	Error         func(code SocketError, desc string)
}

// EngineFactory constructs an Engine wired to the given event callbacks.
// The facade invokes the factory on its worker goroutine so that the
// engine is born on the goroutine that will own it.
type EngineFactory func(ev *EngineEvents) Engine
