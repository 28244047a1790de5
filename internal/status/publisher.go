// Package status публикует сведения о запущенном сервере в Redis, откуда
// их читает список серверов.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/sandbox-game/internal/logging"
)

// Snapshot состояние сервера для списка серверов
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Players   int       `json:"players"`
	Capacity  int       `json:"capacity"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider возвращает актуальное состояние; вызывается из горутины публикатора
type Provider func() Snapshot

// Publisher периодически записывает Snapshot в Redis с TTL в три интервала,
// так что упавший сервер исчезает из списка сам.
type Publisher struct {
	client   redis.UniversalClient
	prefix   string
	interval time.Duration
	provider Provider
	logger   *logging.Logger

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
	lastID   string
}

func NewPublisher(client redis.UniversalClient, prefix string, interval time.Duration, provider Provider) *Publisher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Publisher{
		client:   client,
		prefix:   prefix,
		interval: interval,
		provider: provider,
		logger:   logging.GetServerLogger(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Key ключ записи сервера
func Key(prefix, id string) string {
	return prefix + ":" + id
}

// Publish записывает текущее состояние один раз
func (p *Publisher) Publish(ctx context.Context) error {
	snap := p.provider()
	snap.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("status: marshal: %w", err)
	}
	if err := p.client.Set(ctx, Key(p.prefix, snap.ID), data, 3*p.interval).Err(); err != nil {
		return fmt.Errorf("status: set: %w", err)
	}
	p.lastID = snap.ID
	return nil
}

// Start запускает фоновую публикацию
func (p *Publisher) Start(ctx context.Context) {
	go p.loop(ctx)
}

func (p *Publisher) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.publishWithTimeout(ctx); err != nil {
			p.logger.Warn("⚠️ Не удалось обновить статус сервера: %v", err)
		}
		select {
		case <-ticker.C:
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) publishWithTimeout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	return p.Publish(ctx)
}

// Stop останавливает публикацию и удаляет запись сервера
func (p *Publisher) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.quit) })
	<-p.done
	if p.lastID == "" {
		return nil
	}
	return p.client.Del(ctx, Key(p.prefix, p.lastID)).Err()
}

// List читает все живые записи серверов с префиксом prefix
func List(ctx context.Context, client redis.UniversalClient, prefix string) ([]Snapshot, error) {
	var keys []string
	iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("status: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("status: mget: %w", err)
	}
	out := make([]Snapshot, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // запись истекла между SCAN и MGET
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
