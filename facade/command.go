// File: facade/command.go
// Command and event variants crossing the caller/worker boundary.
package facade

import "github.com/netgrove/threadws/api"

// commandKind tags the caller-to-worker command variants.
type commandKind int

const (
	cmdOpen commandKind = iota
	cmdClose
	cmdSendText
	cmdSendBinary
)

// command is one queued request for the worker goroutine. Commands are never
// dropped and execute strictly in submission order.
type command struct {
	kind   commandKind
	url    string
	code   api.CloseCode
	reason string
	text   string
	data   []byte
}

// eventKind tags the worker-to-caller event variants.
type eventKind int

const (
	evConnected eventKind = iota
	evDisconnected
	evStateChanged
	evTextReceived
	evBinaryReceived
	evError
	evSendRejected
)

// event is one queued notification for the dispatcher goroutine. Events are
// delivered in the order the engine raised them, with no coalescing.
type event struct {
	kind  eventKind
	state api.SocketState
	text  string
	data  []byte
	code  api.SocketError
	desc  string
}
