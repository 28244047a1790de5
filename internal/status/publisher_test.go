package status

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "sandbox:servers:abc", Key("sandbox:servers", "abc"))
}

func TestPublishUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	calls := 0
	p := NewPublisher(client, "sandbox:servers", time.Second, func() Snapshot {
		calls++
		return Snapshot{ID: "id", Name: "sandbox"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.Publish(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, p.lastID, "неудачная публикация не запоминает запись")

	p.Start(ctx)
	require.NoError(t, p.Stop(ctx), "без записи удалять нечего")
}
