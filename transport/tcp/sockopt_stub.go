//go:build !linux

// File: transport/tcp/sockopt_stub.go
// Non-Linux stub: the default socket options are left untouched.
package tcp

import "syscall"

func controlSocket(_ *Config) func(network, address string, c syscall.RawConn) error {
	return nil
}
