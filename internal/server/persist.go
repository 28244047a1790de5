package server

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/annel0/sandbox-game/internal/eventbus"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/vec"
	"github.com/annel0/sandbox-game/internal/world"
)

const saveTimeout = 30 * time.Second

// scheduleAutosave периодически снимает мир в горутине мира и пишет его
// на диск в фоне
func (s *GameServer) scheduleAutosave() {
	if s.config.AutosaveInterval <= 0 || (s.config.SaveFile == "" && s.store == nil) {
		return
	}
	s.loop.Schedule(s.config.AutosaveInterval, func(w *world.World) error {
		data, err := s.types.Serialize(w)
		if err != nil {
			s.logger.Error("автосохранение: %v", err)
			return nil
		}
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			s.persist(ctx, data)
		}()
		return nil
	})
}

// persist пишет снимок мира в файл сохранения и в WorldStore
func (s *GameServer) persist(ctx context.Context, data []byte) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	saved := eventbus.WorldSaved{Bytes: len(data)}
	if s.config.SaveFile != "" {
		if err := storage.SaveWorldFile(ctx, s.config.SaveFile, data, s.config.CompressSave); err != nil {
			s.logger.Error("❌ Сохранение мира в %s: %v", s.config.SaveFile, err)
		} else {
			saved.Path = s.config.SaveFile
		}
	}
	if s.store != nil {
		key, err := s.store.SaveSnapshot(ctx, s.config.SnapshotName, data, s.config.CompressSave)
		if err != nil {
			s.logger.Error("❌ Снапшот мира: %v", err)
		} else {
			saved.Key = key
			s.logger.Debug("снапшот %s (%s)", key, humanize.Bytes(uint64(len(data))))
			if s.config.KeepSnapshots > 0 {
				if n, err := s.store.Prune(s.config.SnapshotName, s.config.KeepSnapshots); err != nil {
					s.logger.Warn("очистка снапшотов: %v", err)
				} else if n > 0 {
					s.logger.Debug("удалено старых снапшотов: %d", n)
				}
			}
		}
	}
	if saved.Path != "" || saved.Key != "" {
		s.publish(eventbus.EventWorldSaved, 2, saved)
	}
}

// finalSave вызывается после остановки горутины мира: сохраняет позиции
// оставшихся игроков, убирает их из мира и пишет сохранение.
// После фатальной ошибки мира сохранение не перезаписывается.
func (s *GameServer) finalSave(fatal error) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	positions := make(map[string]vec.Vec2Float)
	s.world.ForEachEntity(func(e world.Entity) {
		if p, ok := e.(*world.PlayerEntity); ok {
			positions[p.Name] = p.Position
		}
	})
	if len(positions) > 0 {
		if err := s.positions.BatchSave(ctx, positions); err != nil {
			s.logger.Warn("сохранение позиций %d игроков: %v", len(positions), err)
		} else {
			s.logger.Info("📍 Сохранены позиции %d игроков", len(positions))
		}
	}

	s.world.SetObserver(nil)
	removePlayers(s.world)
	if s.config.SaveFile == "" && s.store == nil {
		return
	}
	if fatal != nil {
		s.logger.Warn("⚠️ Мир не сохранён после ошибки, остаётся последнее сохранение")
		return
	}
	data, err := s.types.Serialize(s.world)
	if err != nil {
		s.logger.Error("❌ Сериализация мира при остановке: %v", err)
		return
	}
	s.persist(ctx, data)
}
