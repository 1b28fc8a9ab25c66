// File: api/errors.go
// Common error values and error codes shared across the library.
package api

import "fmt"

// Common errors used across the library.
var (
	ErrNotOpen         = fmt.Errorf("messages can only be sent when the socket is open")
	ErrFacadeClosed    = fmt.Errorf("facade has been shut down")
	ErrBadScheme       = fmt.Errorf("url scheme must be ws or wss")
	ErrServerClosed    = fmt.Errorf("server is closed")
	ErrNoPending       = fmt.Errorf("no pending connection available")
	ErrEngineClosed    = fmt.Errorf("engine connection is closed")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// SocketError classifies engine-level failures carried by error events.
type SocketError int

const (
	ErrCodeUnknown SocketError = iota
	ErrCodeConnectionRefused
	ErrCodeHostNotFound
	ErrCodeRemoteClosed
	ErrCodeNetwork
	ErrCodeInvalidState
	ErrCodeHandshake
)

func (e SocketError) String() string {
	switch e {
	case ErrCodeConnectionRefused:
		return "connection refused"
	case ErrCodeHostNotFound:
		return "host not found"
	case ErrCodeRemoteClosed:
		return "remote host closed"
	case ErrCodeNetwork:
		return "network error"
	case ErrCodeInvalidState:
		return "invalid state"
	case ErrCodeHandshake:
		return "handshake failed"
	default:
		return "unknown error"
	}
}
