package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/annel0/sandbox-game/internal/vec"
)

// TestMemoryPositionRepo тестирует in-memory репозиторий позиций
func TestMemoryPositionRepo(t *testing.T) {
	repo := NewMemoryPositionRepo()
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		expected := vec.Vec2Float{X: 10.5, Y: 20}
		if err := repo.Save(ctx, "steve", expected); err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}

		actual, found, err := repo.Load(ctx, "steve")
		if err != nil {
			t.Fatalf("Ошибка загрузки позиции: %v", err)
		}
		if !found {
			t.Fatal("Позиция не найдена")
		}
		if actual != expected {
			t.Errorf("Неверная позиция: ожидалась %+v, получена %+v", expected, actual)
		}
	})

	t.Run("Load Non-Existent User", func(t *testing.T) {
		pos, found, err := repo.Load(ctx, "nobody")
		if err != nil {
			t.Fatalf("Ошибка при загрузке несуществующего пользователя: %v", err)
		}
		if found || pos != (vec.Vec2Float{}) {
			t.Errorf("Ожидалась пустая позиция, получена: %+v (found=%v)", pos, found)
		}
	})

	t.Run("Delete Position", func(t *testing.T) {
		if err := repo.Save(ctx, "alex", vec.Vec2Float{X: 1, Y: 2}); err != nil {
			t.Fatalf("Ошибка сохранения позиции: %v", err)
		}
		if err := repo.Delete(ctx, "alex"); err != nil {
			t.Fatalf("Ошибка удаления позиции: %v", err)
		}
		if _, found, _ := repo.Load(ctx, "alex"); found {
			t.Error("Позиция не удалена")
		}
	})

	t.Run("BatchSave", func(t *testing.T) {
		batch := map[string]vec.Vec2Float{
			"a": {X: 1, Y: 1},
			"b": {X: 2, Y: 2},
		}
		if err := repo.BatchSave(ctx, batch); err != nil {
			t.Fatalf("Ошибка batch сохранения: %v", err)
		}
		for name, expected := range batch {
			actual, found, err := repo.Load(ctx, name)
			if err != nil || !found || actual != expected {
				t.Errorf("%s: ожидалась %+v, получена %+v (found=%v, err=%v)", name, expected, actual, found, err)
			}
		}

		before := repo.Count()
		err := repo.BatchSave(ctx, map[string]vec.Vec2Float{"c": {}, "": {}})
		if !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("Ожидалась ErrInvalidUsername, получена %v", err)
		}
		if repo.Count() != before {
			t.Error("Невалидный batch частично записан")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		if err := repo.Save(ctx, "", vec.Vec2Float{}); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Пустое имя принято: %v", err)
		}
		if _, _, err := repo.Load(ctx, string([]byte{0xff})); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Невалидный UTF-8 принят: %v", err)
		}
	})

	t.Run("Context Cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if err := repo.Save(cancelled, "late", vec.Vec2Float{}); !errors.Is(err, context.Canceled) {
			t.Errorf("Ожидалась context.Canceled, получена %v", err)
		}
	})
}

func TestConcurrentAccess(t *testing.T) {
	repo := NewMemoryPositionRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				name := fmt.Sprintf("player-%d-%d", id, i%10)
				_ = repo.Save(ctx, name, vec.Vec2Float{X: float32(i)})
				_, _, _ = repo.Load(ctx, name)
			}
		}(g)
	}
	wg.Wait()

	if repo.Count() != 100 {
		t.Errorf("Ожидалось 100 записей, получено %d", repo.Count())
	}
}
