//go:build !linux && !windows

// Package network holds socket options for the bot's local listeners.
package network

import "net"

// ReuseAddrListenConfig returns the default listen config.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
