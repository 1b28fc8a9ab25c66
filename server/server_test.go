package server_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	coderws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netgrove/threadws/api"
	"github.com/netgrove/threadws/server"
)

const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: %s\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func startServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	s := server.New("127.0.0.1:0", opts...)
	require.NoError(t, s.Listen())
	t.Cleanup(func() { s.Close() })
	return s
}

// rawHandshake dials the server and performs a verbatim upgrade request,
// returning the connection, its buffered reader and the response head.
func rawHandshake(t *testing.T, addr string, request string) (net.Conn, *bufio.Reader, *http.Response) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	return conn, br, resp
}

func TestWellFormedUpgradeYields101(t *testing.T) {
	s := startServer(t)

	addr := s.Addr().String()
	req := strings.Replace(upgradeRequest, "%s", addr, 1)
	_, _, resp := rawHandshake(t, addr, req)

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))
	assert.Equal(t, "websocket", resp.Header.Get("Upgrade"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peer, err := s.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.SocketConnected, peer.State())
	peer.Close(api.CloseNormal, "")
}

func TestMissingKeyRejectedAndClosed(t *testing.T) {
	s := startServer(t)

	addr := s.Addr().String()
	req := strings.Replace(upgradeRequest, "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n", "", 1)
	req = strings.Replace(req, "%s", addr, 1)
	conn, br, resp := rawHandshake(t, addr, req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, s.HasPendingConnections())

	// the stream is closed after the rejection is flushed
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadAll(br)
	assert.NoError(t, err, "rejected stream must be closed by the server")
}

func TestOriginPredicateRejectsWith403(t *testing.T) {
	s := startServer(t, server.WithOriginAllowed(func(origin string) bool {
		return origin == "http://trusted.example"
	}))

	addr := s.Addr().String()
	req := strings.Replace(upgradeRequest, "Upgrade: websocket\r\n",
		"Upgrade: websocket\r\nOrigin: http://evil.example\r\n", 1)
	req = strings.Replace(req, "%s", addr, 1)
	_, _, resp := rawHandshake(t, addr, req)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBenignDisconnectBeforeRequest(t *testing.T) {
	s := startServer(t)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET /chat HTTP/1.1\r\nHost: x\r\n"))
	require.NoError(t, err)
	conn.Close()

	// the pipeline must survive and keep accepting
	time.Sleep(50 * time.Millisecond)
	addr := s.Addr().String()
	_, _, resp := rawHandshake(t, addr, strings.Replace(upgradeRequest, "%s", addr, 1))
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestPendingQueueFullClosesWithGoingAway(t *testing.T) {
	s := startServer(t, server.WithMaxPendingConnections(1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws://" + s.Addr().String()
	first, _, err := coderws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer first.Close(coderws.StatusNormalClosure, "")

	// wait until the first upgrade occupies the queue
	require.Eventually(t, s.HasPendingConnections, 2*time.Second, 10*time.Millisecond)

	second, _, err := coderws.Dial(ctx, url, nil)
	require.NoError(t, err, "handshake still succeeds when the queue is full")

	_, _, err = second.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, coderws.StatusGoingAway, coderws.CloseStatus(err),
		"refused connection must be closed with a going-away code")
}

func TestEchoThroughAcceptedPeer(t *testing.T) {
	s := startServer(t, server.WithSubprotocols("echo.v1"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws://" + s.Addr().String()
	client, _, err := coderws.Dial(ctx, url, &coderws.DialOptions{Subprotocols: []string{"echo.v1"}})
	require.NoError(t, err)
	defer client.CloseNow()
	assert.Equal(t, "echo.v1", client.Subprotocol())

	peer, err := s.Accept(ctx)
	require.NoError(t, err)
	peer.SetEvents(&api.EngineEvents{
		TextMessage: func(msg string) {
			_, _ = peer.SendText(msg)
		},
	})
	peer.Start()

	require.NoError(t, client.Write(ctx, coderws.MessageText, []byte("hello")))
	kind, data, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, coderws.MessageText, kind)
	assert.Equal(t, "hello", string(data))

	peer.Close(api.CloseNormal, "done")
}

func TestCloseDrainsPendingWithGoingAway(t *testing.T) {
	s := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := coderws.Dial(ctx, "ws://"+s.Addr().String(), nil)
	require.NoError(t, err)
	require.Eventually(t, s.HasPendingConnections, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())

	_, _, err = client.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, coderws.StatusGoingAway, coderws.CloseStatus(err))
}

func TestAcceptBlocksUntilConnection(t *testing.T) {
	s := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		err error
	}
	got := make(chan result, 1)
	go func() {
		_, err := s.Accept(ctx)
		got <- result{err}
	}()

	addr := s.Addr().String()
	rawHandshake(t, addr, strings.Replace(upgradeRequest, "%s", addr, 1))

	select {
	case r := <-got:
		require.NoError(t, r.err)
	case <-ctx.Done():
		t.Fatal("Accept never returned")
	}
}

func TestAcceptOnClosedServer(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.Accept(ctx)
	assert.ErrorIs(t, err, api.ErrServerClosed)
}

func TestNextPendingConnectionNonBlocking(t *testing.T) {
	s := startServer(t)
	assert.Nil(t, s.NextPendingConnection())
}
