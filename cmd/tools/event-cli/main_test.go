package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sandbox-game/internal/eventbus"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"PlayerJoined", "PlayerLeft"}, parseStringList(" PlayerJoined, ,PlayerLeft "))
}

func TestDescribe(t *testing.T) {
	ev, err := eventbus.NewEnvelope("srv", eventbus.EventPlayerLeft, 3, eventbus.PlayerLeft{
		Username: "alice", PlayerID: 4, Reason: "таймаут", Players: 1,
	})
	require.NoError(t, err)
	assert.Contains(t, describe(ev), "[PlayerLeft]")
	assert.Contains(t, describe(ev), "alice #4: таймаут, online 1")

	ev.EventType = "Unknown"
	assert.NotContains(t, describe(ev), "\n")
}

func TestTailEventsFiltersAndStopsAtLimit(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := tailEvents(ctx, bus, eventbus.Filter{Types: []string{eventbus.EventPlayerJoined}}, 2)
		done <- result{n, err}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case r := <-done:
			require.NoError(t, r.err)
			assert.Equal(t, 2, r.n)
			return
		case <-ticker.C:
			for _, typ := range []string{eventbus.EventConsoleMessage, eventbus.EventPlayerJoined} {
				ev, err := eventbus.NewEnvelope("srv", typ, 5, eventbus.ConsoleMessage{Text: "x"})
				require.NoError(t, err)
				require.NoError(t, bus.Publish(ctx, ev))
			}
		case <-ctx.Done():
			t.Fatal("tail не завершился")
		}
	}
}
