package main

import (
	"context"
	"fmt"

	"github.com/annel0/sandbox-game/internal/config"
	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/world"
)

// loadWorld читает файл сохранения, затем последний снимок в BadgerDB.
// Если нет ни того ни другого, генерирует новый мир.
func loadWorld(ctx context.Context, cfg *config.Config, store *storage.WorldStore) (*world.World, error) {
	if cfg.World.SaveFile != "" {
		data, err := storage.LoadWorldFile(ctx, cfg.World.SaveFile)
		switch {
		case err == nil:
			return decodeWorld(data)
		case !isMissing(err):
			return nil, err
		}
	}

	if store != nil {
		data, err := store.LatestSnapshot(ctx, cfg.Server.Name)
		switch {
		case err == nil:
			logging.Info("📂 Мир восстановлен из снимка BadgerDB")
			return decodeWorld(data)
		case !isMissing(err):
			return nil, err
		}
	}

	w := world.New(cfg.World.Width, cfg.World.Height, cfg.World.Gravity)
	world.NewGenerator(cfg.World.Seed).Generate(w)
	logging.Info("🌱 Сгенерирован новый мир %dx%d (seed %d)", w.Width(), w.Height(), cfg.World.Seed)
	return w, nil
}

func decodeWorld(data []byte) (*world.World, error) {
	obj, err := world.NewTypeRegistry().Deserialize(data)
	if err != nil {
		return nil, err
	}
	w, ok := obj.(*world.World)
	if !ok {
		return nil, fmt.Errorf("в сохранении %T вместо мира", obj)
	}
	return w, nil
}
