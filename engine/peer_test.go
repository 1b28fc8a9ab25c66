package engine

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netgrove/threadws/api"
)

// events collects engine callbacks on channels for assertion.
type eventRecorder struct {
	texts  chan string
	bins   chan []byte
	states chan api.SocketState
	errs   chan string
	gone   chan struct{}
	events *api.EngineEvents
}

func newEventRecorder() *eventRecorder {
	r := &eventRecorder{
		texts:  make(chan string, 16),
		bins:   make(chan []byte, 16),
		states: make(chan api.SocketState, 16),
		errs:   make(chan string, 16),
		gone:   make(chan struct{}, 16),
	}
	r.events = &api.EngineEvents{
		TextMessage:   func(msg string) { r.texts <- msg },
		BinaryMessage: func(data []byte) { r.bins <- data },
		StateChanged:  func(s api.SocketState) { r.states <- s },
		Error:         func(_ api.SocketError, desc string) { r.errs <- desc },
		Disconnected:  func() { r.gone <- struct{}{} },
	}
	return r
}

func pipePeer(t *testing.T) (*Peer, net.Conn, *eventRecorder) {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		srv.Close()
	})
	rec := newEventRecorder()
	return NewPeer(srv, nil, rec.events), client, rec
}

func recv[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestPeerBornConnected(t *testing.T) {
	p, _, _ := pipePeer(t)
	assert.Equal(t, api.SocketConnected, p.State())
	assert.Empty(t, p.RequestURL())
	assert.NotEmpty(t, p.ID())
}

func TestPeerSendText(t *testing.T) {
	p, client, _ := pipePeer(t)

	got := make(chan string, 1)
	go func() {
		data, err := wsutil.ReadServerText(client)
		if err == nil {
			got <- string(data)
		}
	}()

	n, err := p.SendText("hello")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", recv(t, got, "server text frame"))
}

func TestPeerReceivesClientData(t *testing.T) {
	p, client, rec := pipePeer(t)
	p.Start()

	require.NoError(t, wsutil.WriteClientText(client, []byte("ping")))
	assert.Equal(t, "ping", recv(t, rec.texts, "text event"))

	require.NoError(t, wsutil.WriteClientBinary(client, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, recv(t, rec.bins, "binary event"))
}

func TestPeerCloseSendsCloseFrame(t *testing.T) {
	p, client, _ := pipePeer(t)

	frames := make(chan ws.Frame, 1)
	go func() {
		frame, err := ws.ReadFrame(client)
		if err == nil {
			frames <- frame
		}
	}()

	p.Close(api.CloseGoingAway, "server busy")

	frame := recv(t, frames, "close frame")
	require.Equal(t, ws.OpClose, frame.Header.OpCode)
	code, reason := ws.ParseCloseFrameData(frame.Payload)
	assert.Equal(t, ws.StatusGoingAway, code)
	assert.Equal(t, "server busy", reason)
}

func TestPeerSendAfterCloseFails(t *testing.T) {
	p, client, _ := pipePeer(t)
	go func() {
		// drain the close frame so the pipe write completes
		_, _ = ws.ReadFrame(client)
	}()
	p.Close(api.CloseNormal, "")

	_, err := p.SendText("late")
	assert.ErrorIs(t, err, api.ErrNotOpen)
}

func TestPeerClientCloseEmitsDisconnect(t *testing.T) {
	p, client, rec := pipePeer(t)
	p.Start()

	go func() {
		// the read loop echoes the close frame back through wsutil
		_ = wsutil.WriteClientMessage(client, ws.OpClose,
			ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye"))
		// drain whatever the peer replies with
		buf := make([]byte, 64)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	recv(t, rec.gone, "disconnect event")
	assert.Equal(t, api.SocketUnconnected, p.State())
}

func TestPeerOpenSurfacesInvalidState(t *testing.T) {
	p, _, rec := pipePeer(t)
	p.Open("ws://anywhere")
	assert.Contains(t, recv(t, rec.errs, "error event"), "cannot be reopened")
}
