// File: server/server.go
// Package server implements the handshake upgrade pipeline: it accepts raw
// TCP streams, validates the HTTP to WebSocket upgrade, and hands promoted
// connections off through a bounded pending queue.
//
// Each raw connection's handshake runs on its own goroutine and never blocks
// other connections. Rejections and benign disconnects are logged, not
// propagated: errors local to one connection never affect the listener.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/netgrove/threadws/api"
	"github.com/netgrove/threadws/engine"
	"github.com/netgrove/threadws/protocol"
	"github.com/netgrove/threadws/transport/tcp"
)

// DefaultMaxPendingConnections is the pending-queue bound when no option
// overrides it.
const DefaultMaxPendingConnections = 30

// Server converts raw streams into validated WebSocket connections.
type Server struct {
	addr   string
	policy protocol.Policy
	log    zerolog.Logger

	maxPending        int
	maxHandshakeBytes int
	handshakeTimeout  time.Duration
	tcpConfig         *tcp.Config

	ln      *tcp.Listener
	pending *pendingQueue
	group   *errgroup.Group
	closed  atomic.Bool
	done    chan struct{}
}

// New builds a Server for addr. Call Listen to bind and start accepting.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:              addr,
		log:               zerolog.Nop(),
		maxPending:        DefaultMaxPendingConnections,
		maxHandshakeBytes: protocol.MaxHandshakeBytes,
		handshakeTimeout:  10 * time.Second,
		done:              make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.pending = newPendingQueue(s.maxPending)
	return s
}

// Listen binds the address and starts the accept loop. Each accepted raw
// stream gets its own handshake goroutine.
func (s *Server) Listen() error {
	cfg := s.tcpConfig
	if cfg == nil {
		cfg = tcp.DefaultConfig()
	}
	cfg.Addr = s.addr
	ln, err := tcp.Listen(cfg)
	if err != nil {
		return err
	}
	s.ln = ln
	s.group, _ = errgroup.WithContext(context.Background())
	s.group.Go(s.acceptLoop)
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening for upgrade requests")
	return nil
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.group.Go(func() error {
			s.handshake(conn)
			return nil
		})
	}
}

// handshake buffers one raw connection's upgrade request, negotiates it and
// either queues the promoted peer or writes a rejection and closes.
func (s *Server) handshake(conn net.Conn) {
	log := s.log.With().Str("conn_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).Logger()

	if s.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	}
	br := bufio.NewReader(conn)
	req, err := protocol.ReadRequest(br, s.maxHandshakeBytes)

	var resp *protocol.Response
	switch {
	case err == nil:
		resp = s.policy.Negotiate(req)
	case errors.Is(err, protocol.ErrIncompleteRequest):
		// stream vanished before a full request arrived: benign disconnect
		log.Debug().Err(err).Msg("connection dropped before handshake completed")
		_ = conn.Close()
		return
	case errors.Is(err, protocol.ErrRequestTooLarge):
		resp = protocol.Reject(http.StatusRequestHeaderFieldsTooLarge, "handshake request too large")
	default:
		resp = protocol.Reject(http.StatusBadRequest, "malformed handshake request")
	}

	if err := resp.Write(conn); err != nil {
		log.Debug().Err(err).Msg("handshake response write failed")
		_ = conn.Close()
		return
	}
	if !resp.CanUpgrade() {
		log.Info().Int("status", resp.Status).Str("reason", resp.Reason).Msg("upgrade rejected")
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	peer := engine.NewPeer(conn, br, nil)
	if !s.pending.add(peer) {
		// logically upgraded but not retained: close instead of leaking
		log.Warn().Int("max_pending", s.maxPending).Msg("pending queue full, refusing connection")
		peer.Close(api.CloseGoingAway, "server busy")
		return
	}
	log.Debug().Msg("connection upgraded")
}

// HasPendingConnections reports whether an upgraded connection awaits
// acceptance.
func (s *Server) HasPendingConnections() bool {
	return s.pending.len() > 0
}

// NextPendingConnection returns the oldest pending connection, or nil when
// none is queued. Ownership transfers to the caller, who must attach event
// callbacks and call Start on the returned peer.
func (s *Server) NextPendingConnection() *engine.Peer {
	p, _ := s.pending.pop()
	return p
}

// Accept blocks until a pending connection is available, the context is
// cancelled, or the server closes.
func (s *Server) Accept(ctx context.Context) (*engine.Peer, error) {
	for {
		if p, ok := s.pending.pop(); ok {
			return p, nil
		}
		select {
		case <-s.pending.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, api.ErrServerClosed
		}
	}
}

// MaxPendingConnections returns the configured queue bound.
func (s *Server) MaxPendingConnections() int {
	return s.maxPending
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops listening, waits for in-flight handshakes, and closes every
// still-pending connection with a going-away code. Idempotent.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	var err error
	if s.ln != nil {
		err = s.ln.Close()
		_ = s.group.Wait()
	}
	for _, p := range s.pending.drain() {
		p.Close(api.CloseGoingAway, "Server closed.")
	}
	s.log.Info().Msg("server closed")
	return err
}
