package server

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/sandbox-game/internal/eventbus"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/vec"
	"github.com/annel0/sandbox-game/internal/world"
)

const positionTimeout = 2 * time.Second

var tracer = otel.Tracer("github.com/annel0/sandbox-game/internal/server")

// handleClientInfo принимает имя игрока и запускает вход в мир:
// загрузка позиции, создание сущности, отправка мира
func (s *GameServer) handleClientInfo(c *network.Connection, m *protocol.ClientInfo, now time.Time) {
	if c.Username != "" {
		s.logger.Debug("%s повторно прислал CLIENT_INFO", c.Addr)
		return
	}
	if m.Username == "" {
		s.kick(c.Addr, "пустое имя", now)
		return
	}
	if !utf8.ValidString(m.Username) {
		s.kick(c.Addr, "имя не в UTF-8", now)
		return
	}
	for _, other := range s.conns.All() {
		if other != c && other.Username == m.Username {
			s.kick(c.Addr, "имя уже занято", now)
			return
		}
	}
	c.Username = m.Username

	s.background.Add(1)
	go func(username string) {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), positionTimeout)
		defer cancel()

		pos, found, err := s.positions.Load(ctx, username)
		if err != nil {
			s.logger.Warn("позиция %s: %v", username, err)
			found = false
		}
		s.loop.Submit(s.spawnCommand(c, username, pos, found))
	}(m.Username)
}

// spawnCommand создаёт игрока и снимает мир для него. Рассылки, поставленные
// в очередь раньше заголовка, до клиента не дойдут: они уже учтены в снимке.
func (s *GameServer) spawnCommand(c *network.Connection, username string, saved vec.Vec2Float, found bool) func(w *world.World) error {
	return func(w *world.World) error {
		_, span := tracer.Start(context.Background(), "server.world_head")
		defer span.End()

		var player *world.PlayerEntity
		if found && insideWorld(w, saved) {
			player = world.NewPlayerEntity(w.NextEntityID(), username, saved)
			if err := w.Add(player); err != nil {
				return err
			}
		} else {
			var err error
			if player, err = w.SpawnPlayer(username); err != nil {
				return err
			}
		}

		data, err := s.types.Serialize(w)
		if err != nil {
			return fmt.Errorf("сериализация мира: %w", err)
		}
		compressed := false
		if s.config.CompressHead {
			packed, err := storage.Compress(data)
			if err != nil {
				return err
			}
			data, compressed = packed, true
		}
		span.SetAttributes(
			attribute.Int("world.bytes", len(data)),
			attribute.Bool("world.compressed", compressed),
			attribute.Int64("player.id", int64(player.ID())),
		)

		s.outbox.Push(outgoing{
			kind:       outWorldHead,
			addr:       c.Addr,
			conn:       c,
			playerID:   player.ID(),
			username:   username,
			payload:    data,
			compressed: compressed,
		})
		return nil
	}
}

func insideWorld(w *world.World, pos vec.Vec2Float) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < float32(w.Width()) && pos.Y < float32(w.Height())
}

// sendWorldHead отправляет заголовок и куски мира. Если клиент успел
// отключиться, созданная для него сущность удаляется.
func (s *GameServer) sendWorldHead(item outgoing, now time.Time) {
	c, ok := s.conns.Get(item.addr)
	if !ok || c != item.conn {
		s.logger.Debug("%s отключился до получения мира", item.addr)
		s.loop.Submit(s.removePlayerCommand(item.playerID, item.username, false))
		return
	}

	c.PlayerID = item.playerID
	c.State = network.StateInGame
	s.send(c.Addr, &protocol.ServerWorldHead{
		PlayerID:   item.playerID,
		Size:       uint32(len(item.payload)),
		Compressed: item.compressed,
	}, now)
	chunks := 0
	for off := 0; off < len(item.payload); off += protocol.MaxPayloadSize {
		end := min(off+protocol.MaxPayloadSize, len(item.payload))
		s.sendRaw(c.Addr, protocol.ServerWorldDataTag, item.payload[off:end], now)
		chunks++
	}

	s.logger.Info("🌍 %s вошёл в мир: игрок #%d, %d байт в %d кусках", c.Username, c.PlayerID, len(item.payload), chunks)
	s.announce(fmt.Sprintf("%s присоединился к игре", c.Username), now)
	s.publish(eventbus.EventPlayerJoined, 3, eventbus.PlayerJoined{
		Username: c.Username,
		PlayerID: c.PlayerID,
		Address:  c.Addr.String(),
		Players:  s.conns.Count(),
	})
}

// removePlayerCommand удаляет сущность игрока; save сохраняет последнюю позицию
func (s *GameServer) removePlayerCommand(id uint32, username string, save bool) func(w *world.World) error {
	return func(w *world.World) error {
		e, err := w.Remove(id)
		if errors.Is(err, world.ErrEntityNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if save {
			s.savePosition(username, e.Body().Position)
		}
		return nil
	}
}

func (s *GameServer) savePosition(username string, pos vec.Vec2Float) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), positionTimeout)
		defer cancel()
		if err := s.positions.Save(ctx, username, pos); err != nil {
			s.logger.Warn("сохранение позиции %s: %v", username, err)
		}
	}()
}
