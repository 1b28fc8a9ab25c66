// File: server/options.go
// Functional options for the upgrade server.
package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/netgrove/threadws/transport/tcp"
)

// Option customizes server initialization.
type Option func(*Server)

// WithMaxPendingConnections bounds the pending-connection queue. Upgrades
// completing against a full queue are closed with a going-away code, not
// queued. The default is DefaultMaxPendingConnections.
func WithMaxPendingConnections(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPending = n
		}
	}
}

// WithOriginAllowed installs the origin admission predicate. The default
// allows every origin.
func WithOriginAllowed(allowed func(origin string) bool) Option {
	return func(s *Server) {
		s.policy.OriginAllowed = allowed
	}
}

// WithSupportedVersions overrides the accepted Sec-WebSocket-Version values.
func WithSupportedVersions(versions ...string) Option {
	return func(s *Server) {
		s.policy.Versions = versions
	}
}

// WithSubprotocols advertises the subprotocols the server is willing to
// speak, in preference order.
func WithSubprotocols(protos ...string) Option {
	return func(s *Server) {
		s.policy.Subprotocols = protos
	}
}

// WithExtensions advertises the supported extensions.
func WithExtensions(exts ...string) Option {
	return func(s *Server) {
		s.policy.Extensions = exts
	}
}

// WithServerName sets the Server response header.
func WithServerName(name string) Option {
	return func(s *Server) {
		s.policy.ServerName = name
	}
}

// WithLogger attaches a logger for handshake diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithHandshakeTimeout bounds how long one raw connection may take to
// deliver its complete upgrade request.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.handshakeTimeout = d
	}
}

// WithMaxHandshakeBytes caps the accumulated request head per connection.
func WithMaxHandshakeBytes(n int) Option {
	return func(s *Server) {
		s.maxHandshakeBytes = n
	}
}

// WithTCPConfig overrides the listening transport configuration. The Addr
// passed to New always wins over cfg.Addr.
func WithTCPConfig(cfg *tcp.Config) Option {
	return func(s *Server) {
		s.tcpConfig = cfg
	}
}
