// File: transport/tcp/listener.go
// Package tcp provides the raw listening transport consumed by the upgrade
// pipeline: a TCP listener with tuned socket options that hands out plain
// net.Conn streams.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Config holds listener parameters.
type Config struct {
	Addr      string        // TCP address to bind, e.g. ":9001"
	NoDelay   bool          // disable Nagle on accepted connections
	KeepAlive time.Duration // keep-alive period, 0 = system default
	ReuseAddr bool          // set SO_REUSEADDR before bind (linux)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:      ":0",
		NoDelay:   true,
		KeepAlive: 30 * time.Second,
		ReuseAddr: true,
	}
}

// Listener wraps a net.Listener and applies per-connection options on
// Accept.
type Listener struct {
	ln  net.Listener
	cfg *Config
}

// Listen binds the configured address.
func Listen(cfg *Config) (*Listener, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	lc := net.ListenConfig{Control: controlSocket(cfg)}
	ln, err := lc.Listen(context.Background(), "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen %s: %w", cfg.Addr, err)
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

// Accept waits for the next raw stream and applies the configured options.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(l.cfg.NoDelay)
		if l.cfg.KeepAlive > 0 {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(l.cfg.KeepAlive)
		}
	}
	return conn, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close shuts down the listener. Accepted connections stay open.
func (l *Listener) Close() error {
	return l.ln.Close()
}
