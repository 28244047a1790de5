package storage

import (
	"context"
	"sync"

	"github.com/annel0/sandbox-game/internal/vec"
)

// MemoryPositionRepo реализует PositionRepo в памяти.
// Используется, когда внешнее хранилище не настроено, и в тестах.
// Данные теряются при перезапуске сервера.
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[string]vec.Vec2Float
}

func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{data: make(map[string]vec.Vec2Float)}
}

func (r *MemoryPositionRepo) Save(ctx context.Context, username string, pos vec.Vec2Float) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[username] = pos
	return nil
}

func (r *MemoryPositionRepo) Load(ctx context.Context, username string) (vec.Vec2Float, bool, error) {
	if err := validateUsername(username); err != nil {
		return vec.Vec2Float{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return vec.Vec2Float{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.data[username]
	return pos, ok, nil
}

func (r *MemoryPositionRepo) Delete(ctx context.Context, username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, username)
	return nil
}

// BatchSave сохраняет все позиции атомарно: при ошибке валидации ничего не меняется
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, positions map[string]vec.Vec2Float) error {
	for username := range positions {
		if err := validateUsername(username); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for username, pos := range positions {
		r.data[username] = pos
	}
	return nil
}

func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryPositionRepo) Close() error { return nil }
