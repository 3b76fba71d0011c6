package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReuseAddrListenerRebinds(t *testing.T) {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ln, err = lc.Listen(context.Background(), "tcp", addr)
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}
