package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/vec"
)

// RedisPositionRepo хранит позиции игроков в Redis с TTL
type RedisPositionRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// PlayerPosition значение в Redis
type PlayerPosition struct {
	Username  string        `json:"username"`
	Position  vec.Vec2Float `json:"position"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RedisConfig настройки подключения
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "sandbox:pos:",
		TTL:       7 * 24 * time.Hour,
	}
}

// NewRedisPositionRepo подключается к Redis и проверяет соединение
func NewRedisPositionRepo(ctx context.Context, config *RedisConfig) (*RedisPositionRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logging.GetStorageLogger().Info("🔴 Позиции игроков в Redis %s", config.Addr)
	return NewRedisPositionRepoWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisPositionRepoWithClient использует готовый клиент
func NewRedisPositionRepoWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisPositionRepo {
	return &RedisPositionRepo{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisPositionRepo) key(username string) string {
	return r.keyPrefix + username
}

func (r *RedisPositionRepo) encode(username string, pos vec.Vec2Float) ([]byte, error) {
	data, err := json.Marshal(PlayerPosition{Username: username, Position: pos, UpdatedAt: time.Now()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal position: %w", err)
	}
	return data, nil
}

func (r *RedisPositionRepo) Save(ctx context.Context, username string, pos vec.Vec2Float) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	data, err := r.encode(username, pos)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(username), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func (r *RedisPositionRepo) Load(ctx context.Context, username string) (vec.Vec2Float, bool, error) {
	if err := validateUsername(username); err != nil {
		return vec.Vec2Float{}, false, err
	}
	data, err := r.client.Get(ctx, r.key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return vec.Vec2Float{}, false, nil
	}
	if err != nil {
		return vec.Vec2Float{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var pos PlayerPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return vec.Vec2Float{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return pos.Position, true, nil
}

func (r *RedisPositionRepo) Delete(ctx context.Context, username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	return r.client.Del(ctx, r.key(username)).Err()
}

// BatchSave пишет все позиции одним pipeline
func (r *RedisPositionRepo) BatchSave(ctx context.Context, positions map[string]vec.Vec2Float) error {
	if len(positions) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for username, pos := range positions {
		if err := validateUsername(username); err != nil {
			return err
		}
		data, err := r.encode(username, pos)
		if err != nil {
			return err
		}
		pipe.Set(ctx, r.key(username), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}
