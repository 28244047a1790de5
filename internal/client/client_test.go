package client

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/world"
)

func TestListenAddrFor(t *testing.T) {
	assert.Equal(t, "0.0.0.0:0", listenAddrFor(netip.MustParseAddrPort("127.0.0.1:50000")))
	assert.Equal(t, "[::]:0", listenAddrFor(netip.MustParseAddrPort("[::1]:50000")))
}

// молчащий адрес: ни CONNECT_ACK, ни SERVER_INFO
func silentPeer(t *testing.T) string {
	t.Helper()
	peer, err := network.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })
	return peer.LocalAddr().String()
}

func TestRequestInfoTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := RequestInfo(ctx, silentPeer(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialGivesUpWhenServerIsSilent(t *testing.T) {
	cfg := Config{
		Username:       "alice",
		Transport:      network.TransportConfig{Attempts: 3, RetryInterval: 20 * time.Millisecond},
		ReceiveTimeout: 5 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, silentPeer(t), cfg)
	assert.ErrorIs(t, err, ErrDisconnected, "повторы CONNECT_REQUEST исчерпаны")
}

func TestOversizedWorldHeadFailsWorld(t *testing.T) {
	c := &GameClient{
		types:      world.NewTypeRegistry(),
		worldReady: make(chan struct{}),
		lost:       make(chan struct{}),
		logger:     logging.GetClientLogger(),
	}

	keep, err := c.handleMessage(&protocol.ServerWorldHead{PlayerID: 3, Size: storage.MaxWorldSize + 1}, time.Now())
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Zero(t, cap(c.headData), "память под мир не резервируется")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorContains(t, c.WaitForWorld(ctx), "предел")

	_, err = c.handleMessage(&protocol.ServerWorldData{Data: []byte{1, 2, 3}}, time.Now())
	assert.Error(t, err, "данные после отказа не принимаются")
}
