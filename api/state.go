// File: api/state.go
// Package api holds the shared vocabulary of the threadws library:
// connection states, close codes, error codes and the Protocol Engine
// contract consumed by the facade and produced by the server pipeline.
package api

// SocketState is the engine-native state vocabulary. It tracks the
// underlying socket through the finer phases of connection establishment.
type SocketState int

const (
	SocketUnconnected SocketState = iota
	SocketHostLookup
	SocketDialing
	SocketConnected
	SocketClosing
)

func (s SocketState) String() string {
	switch s {
	case SocketUnconnected:
		return "unconnected"
	case SocketHostLookup:
		return "host-lookup"
	case SocketDialing:
		return "dialing"
	case SocketConnected:
		return "connected"
	case SocketClosing:
		return "closing"
	default:
		return "invalid"
	}
}

// ConnState is the caller-facing state vocabulary exposed by the facade.
// The pre-connection engine phases (host lookup, dialing) all collapse
// into Connecting at the boundary.
type ConnState int

const (
	Connecting ConnState = iota
	Open
	Closing
	Closed
	Error
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Error:
		return "error"
	default:
		return "invalid"
	}
}

// TranslateState maps an engine-native socket state onto the facade
// vocabulary. Closed and Error are never produced here: Closed comes from
// the engine's disconnect event and Error only from an explicit error event
// or a failed send precondition.
func TranslateState(s SocketState) ConnState {
	switch s {
	case SocketHostLookup, SocketDialing:
		return Connecting
	case SocketConnected:
		return Open
	case SocketClosing:
		return Closing
	default:
		return Closed
	}
}
