//go:build linux

// File: transport/tcp/sockopt_linux.go
// Linux-specific pre-bind socket options.
package tcp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket returns the ListenConfig control hook applying pre-bind
// options on the listening socket.
func controlSocket(cfg *Config) func(network, address string, c syscall.RawConn) error {
	if !cfg.ReuseAddr {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return optErr
	}
}
