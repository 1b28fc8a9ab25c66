// File: engine/peer.go
// Server-side Protocol Engine over a raw upgraded stream, framed with
// gobwas/ws.
package engine

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/netgrove/threadws/api"
)

// Peer is the inbound Protocol Engine. The upgrade pipeline constructs one
// around the raw net.Conn after a successful handshake; it is born in the
// connected state. The read loop does not start until Start is called, so
// the accepting owner can attach its event callbacks first.
type Peer struct {
	id     string
	conn   net.Conn
	events *api.EngineEvents

	// rw serializes all frame writes: sends from the owner and the control
	// replies (pong, close echo) issued by the read loop.
	rw *syncReadWriter

	state   atomic.Int32
	started atomic.Bool
	closed  atomic.Bool
}

var _ api.Engine = (*Peer)(nil)

// NewPeer wraps an upgraded connection. br carries any bytes the client
// pipelined behind the handshake request; it must wrap conn.
func NewPeer(conn net.Conn, br *bufio.Reader, ev *api.EngineEvents) *Peer {
	if ev == nil {
		ev = &api.EngineEvents{}
	}
	if br == nil {
		br = bufio.NewReader(conn)
	}
	p := &Peer{
		id:     uuid.NewString(),
		conn:   conn,
		events: ev,
		rw:     &syncReadWriter{r: br, w: conn},
	}
	p.state.Store(int32(api.SocketConnected))
	return p
}

// ID returns the identifier assigned to this connection at upgrade time.
func (p *Peer) ID() string {
	return p.id
}

// SetEvents replaces the event callbacks. Must be called before Start.
func (p *Peer) SetEvents(ev *api.EngineEvents) {
	if ev == nil {
		ev = &api.EngineEvents{}
	}
	p.events = ev
}

// Start launches the read loop. Idempotent.
func (p *Peer) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.readLoop()
}

// Open is not meaningful for a server-accepted connection; it surfaces an
// invalid-state error event instead of dialing.
func (p *Peer) Open(string) {
	p.emitError(api.ErrCodeInvalidState, "server connection cannot be reopened")
}

// Close writes a close frame and releases the socket.
func (p *Peer) Close(code api.CloseCode, reason string) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.setState(api.SocketClosing)
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusCode(code), reason))
	p.rw.writeFrame(frame)
	_ = p.conn.Close()
	if !p.started.Load() {
		// no read loop to emit the disconnect
		p.setState(api.SocketUnconnected)
		if p.events.Disconnected != nil {
			p.events.Disconnected()
		}
	}
}

// SendText writes a text message and reports the payload length.
func (p *Peer) SendText(msg string) (int64, error) {
	return p.send(ws.OpText, []byte(msg))
}

// SendBinary writes a binary message and reports the payload length.
func (p *Peer) SendBinary(data []byte) (int64, error) {
	return p.send(ws.OpBinary, data)
}

func (p *Peer) send(op ws.OpCode, payload []byte) (int64, error) {
	if p.State() != api.SocketConnected {
		return 0, api.ErrNotOpen
	}
	if err := p.rw.writeMessage(op, payload); err != nil {
		p.emitError(api.ErrCodeNetwork, err.Error())
		return 0, err
	}
	return int64(len(payload)), nil
}

// RequestURL returns the empty string: the connection was accepted, not
// dialed.
func (p *Peer) RequestURL() string {
	return ""
}

// State reports the engine-native socket state.
func (p *Peer) State() api.SocketState {
	return api.SocketState(p.state.Load())
}

func (p *Peer) setState(s api.SocketState) {
	p.state.Store(int32(s))
	if p.events.StateChanged != nil {
		p.events.StateChanged(s)
	}
}

func (p *Peer) emitError(code api.SocketError, desc string) {
	if p.events.Error != nil {
		p.events.Error(code, desc)
	}
}

func (p *Peer) readLoop() {
	for {
		data, op, err := wsutil.ReadClientData(p.rw)
		if err != nil {
			var closeErr wsutil.ClosedError
			switch {
			case errors.As(err, &closeErr):
				// clean closing handshake from the client
			case p.closed.Load(), errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
				// local close or benign disconnect
			default:
				p.emitError(api.ErrCodeNetwork, err.Error())
			}
			p.closed.Store(true)
			_ = p.conn.Close()
			p.setState(api.SocketUnconnected)
			if p.events.Disconnected != nil {
				p.events.Disconnected()
			}
			return
		}
		switch op {
		case ws.OpText:
			if p.events.TextMessage != nil {
				p.events.TextMessage(string(data))
			}
		case ws.OpBinary:
			if p.events.BinaryMessage != nil {
				p.events.BinaryMessage(data)
			}
		}
	}
}

// syncReadWriter is the io.ReadWriter handed to wsutil. Reads come from the
// handshake-preserving bufio.Reader; writes are mutex-serialized because
// control replies originate inside the read loop while data frames come
// from the owner.
type syncReadWriter struct {
	r io.Reader
	w io.Writer

	mu sync.Mutex
}

func (s *syncReadWriter) Read(b []byte) (int, error) {
	return s.r.Read(b)
}

func (s *syncReadWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}

func (s *syncReadWriter) writeMessage(op ws.OpCode, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wsutil.WriteServerMessage(s.w, op, payload)
}

func (s *syncReadWriter) writeFrame(frame ws.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ws.WriteFrame(s.w, frame)
}
