//go:build windows

// Package network holds socket options for the bot's local listeners.
package network

import (
	"net"
	"syscall"
)

// ReuseAddrListenConfig returns a net.ListenConfig that sets SO_REUSEADDR
// before binding.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
}
