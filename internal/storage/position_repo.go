package storage

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/annel0/sandbox-game/internal/vec"
)

var ErrInvalidUsername = errors.New("storage: invalid username")

// PositionRepo последние позиции игроков по имени. Позволяет вернуть игрока
// на прежнее место после переподключения.
type PositionRepo interface {
	// Save сохраняет позицию игрока
	Save(ctx context.Context, username string, pos vec.Vec2Float) error

	// Load возвращает позицию; false если игрок ещё не заходил
	Load(ctx context.Context, username string) (vec.Vec2Float, bool, error)

	// Delete удаляет сохранённую позицию
	Delete(ctx context.Context, username string) error

	// BatchSave сохраняет позиции всех игроков на сервере, например при остановке
	BatchSave(ctx context.Context, positions map[string]vec.Vec2Float) error

	Close() error
}

func validateUsername(username string) error {
	if username == "" || len(username) > 255 || !utf8.ValidString(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return nil
}
