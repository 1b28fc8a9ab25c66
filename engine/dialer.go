// File: engine/dialer.go
// Client-side Protocol Engine on top of gorilla/websocket.
package engine

import (
	"errors"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netgrove/threadws/api"
)

const closeGrace = 5 * time.Second

// Dialer is the outbound Protocol Engine. It owns one WebSocket connection
// at a time; Open on an established connection tears the old one down and
// redials.
type Dialer struct {
	events *api.EngineEvents
	dialer *websocket.Dialer

	state atomic.Int32

	// conn and readDone are written only from the owning goroutine (Open,
	// Close); the read loop holds its own copies.
	conn     *websocket.Conn
	readDone chan struct{}
	url      string
}

var _ api.Engine = (*Dialer)(nil)

// NewDialer constructs a Dialer wired to ev. Satisfies api.EngineFactory.
func NewDialer(ev *api.EngineEvents) api.Engine {
	if ev == nil {
		ev = &api.EngineEvents{}
	}
	d := &Dialer{
		events: ev,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	d.state.Store(int32(api.SocketUnconnected))
	return d
}

// Open dials url. Completion surfaces through StateChanged/Connected events.
// An already-open engine is closed first, then redialed.
func (d *Dialer) Open(url string) {
	if d.conn != nil {
		d.teardown(api.CloseNormal, "reconnecting")
	}
	d.url = url

	d.setState(api.SocketHostLookup)
	d.setState(api.SocketDialing)
	conn, _, err := d.dialer.Dial(url, nil)
	if err != nil {
		d.setState(api.SocketUnconnected)
		d.emitError(classifyDialError(err), err.Error())
		return
	}
	d.conn = conn
	d.readDone = make(chan struct{})
	d.setState(api.SocketConnected)
	if d.events.Connected != nil {
		d.events.Connected()
	}
	go d.readLoop(conn, d.readDone)
}

// Close performs the closing handshake and releases the connection. Closing
// a connection the remote already dropped is a no-op beyond releasing the
// socket: the read loop emitted the terminal state when it observed the
// disconnect.
func (d *Dialer) Close(code api.CloseCode, reason string) {
	if d.conn == nil {
		return
	}
	if d.State() == api.SocketUnconnected {
		d.release()
		return
	}
	d.setState(api.SocketClosing)
	d.teardown(code, reason)
}

// teardown sends a close frame, waits for the read loop to observe the
// peer's reply (bounded by closeGrace) and closes the socket.
func (d *Dialer) teardown(code api.CloseCode, reason string) {
	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = d.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	select {
	case <-d.readDone:
	case <-time.After(closeGrace):
	}
	d.release()
	if d.State() == api.SocketClosing {
		// the read loop exited before this close started, so nothing else
		// will emit the terminal state
		d.setState(api.SocketUnconnected)
	}
}

// release closes the socket, joins the read loop and clears the connection
// fields without emitting any event.
func (d *Dialer) release() {
	_ = d.conn.Close()
	<-d.readDone
	d.conn = nil
	d.readDone = nil
}

// SendText writes a text message and reports the payload length.
func (d *Dialer) SendText(msg string) (int64, error) {
	return d.send(websocket.TextMessage, []byte(msg))
}

// SendBinary writes a binary message and reports the payload length.
func (d *Dialer) SendBinary(data []byte) (int64, error) {
	return d.send(websocket.BinaryMessage, data)
}

func (d *Dialer) send(messageType int, payload []byte) (int64, error) {
	if d.State() != api.SocketConnected || d.conn == nil {
		return 0, api.ErrNotOpen
	}
	if err := d.conn.WriteMessage(messageType, payload); err != nil {
		d.emitError(api.ErrCodeNetwork, err.Error())
		return 0, err
	}
	return int64(len(payload)), nil
}

// RequestURL returns the url passed to the most recent Open.
func (d *Dialer) RequestURL() string {
	return d.url
}

// State reports the engine-native socket state.
func (d *Dialer) State() api.SocketState {
	return api.SocketState(d.state.Load())
}

func (d *Dialer) setState(s api.SocketState) {
	d.state.Store(int32(s))
	if d.events.StateChanged != nil {
		d.events.StateChanged(s)
	}
}

func (d *Dialer) emitError(code api.SocketError, desc string) {
	if d.events.Error != nil {
		d.events.Error(code, desc)
	}
}

// readLoop pumps inbound messages until the connection dies, then emits the
// disconnect events. It is the only goroutine reading from conn.
func (d *Dialer) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				d.emitError(classifyReadError(err), err.Error())
			}
			d.setState(api.SocketUnconnected)
			if d.events.Disconnected != nil {
				d.events.Disconnected()
			}
			return
		}
		switch messageType {
		case websocket.TextMessage:
			if d.events.TextMessage != nil {
				d.events.TextMessage(string(data))
			}
		case websocket.BinaryMessage:
			if d.events.BinaryMessage != nil {
				d.events.BinaryMessage(data)
			}
		}
	}
}

// isExpectedClose reports whether err is a clean closing handshake or the
// local side closing the socket underneath the read loop.
func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

func classifyDialError(err error) api.SocketError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return api.ErrCodeHostNotFound
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return api.ErrCodeConnectionRefused
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return api.ErrCodeHandshake
	}
	return api.ErrCodeNetwork
}

func classifyReadError(err error) api.SocketError {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return api.ErrCodeRemoteClosed
	}
	return api.ErrCodeNetwork
}
