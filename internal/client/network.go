package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/simulation"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/world"
)

// больше заранее не резервируется, остальное растёт по мере прихода данных
const headPrealloc = 1 << 20

// run сетевая горутина клиента
func (c *GameClient) run(ctx context.Context) {
	defer close(c.done)
	lastPing := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}

		data, from, ok, err := c.endpoint.Read(c.config.ReceiveTimeout)
		now := time.Now()
		switch {
		case err != nil && network.IsClosed(err):
			c.markLost("сокет закрыт")
			return
		case err != nil:
			c.logger.Debug("ошибка чтения UDP: %v", err)
		case ok && from == c.server:
			if !c.handleDatagram(data, now) {
				return
			}
		}

		c.drainOutbox(now)
		if c.closing && c.transport.Pending(c.server) == 0 {
			return
		}
		if !c.closing && now.Sub(lastPing) >= c.config.PingInterval {
			c.send(protocol.Ping{}, now)
			lastPing = now
		}
		if lost := c.transport.Poll(now); len(lost) > 0 {
			if !c.closing {
				c.logger.Warn("⚠️ Сервер %s не отвечает", c.server)
			}
			c.markLost("сервер не отвечает")
			return
		}
	}
}

func (c *GameClient) drainOutbox(now time.Time) {
	for _, req := range c.outbox.Drain() {
		if c.closing {
			continue
		}
		if req.close {
			c.closing = true
			c.send(protocol.ClientDisconnect{}, now)
			continue
		}
		c.send(req.msg, now)
	}
}

func (c *GameClient) send(msg protocol.Message, now time.Time) {
	payload, err := protocol.Encode(c.types, msg)
	if err != nil {
		c.logger.Error("кодирование %s: %v", msg.Tag(), err)
		return
	}
	if err := c.transport.Send(c.server, msg.Tag(), payload, now); err != nil {
		c.logger.Warn("отправка %s: %v", msg.Tag(), err)
	}
}

// handleDatagram false означает, что сервер завершил сессию
func (c *GameClient) handleDatagram(data []byte, now time.Time) bool {
	pkt, deliver, err := c.transport.Receive(c.server, data)
	if err != nil {
		c.logger.ProtocolError(c.server.String(), err, data)
		return true
	}
	if !deliver {
		return true
	}

	dec := serial.NewDecoder(c.types, pkt.Payload)
	keep := true
	err = c.inbound.Dispatch(pkt.Tag, dec, func(msg protocol.Message) error {
		var herr error
		keep, herr = c.handleMessage(msg, now)
		return herr
	})
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrUnknownMessageKind):
		c.logger.Warn("неизвестный тег %s", pkt.Tag)
	default:
		c.logger.ProtocolError(c.server.String(), err, data)
	}
	return keep
}

func (c *GameClient) handleMessage(msg protocol.Message, now time.Time) (bool, error) {
	switch m := msg.(type) {
	case *protocol.ServerConnectAcknowledgment:
		select {
		case c.accepted <- m.Accepted:
		default:
		}
	case protocol.Ping:
	case *protocol.ConsoleMessage:
		c.logger.Info("💬 %s", m.Text)
		if c.config.Console != nil {
			c.config.Console(m.Text)
		}
	case *protocol.ServerClientDisconnect:
		c.logger.Info("🚪 Сервер отключил клиента: %s", m.Reason)
		c.markLost(m.Reason)
		return false, nil
	case *protocol.ServerWorldHead:
		if c.head != nil {
			return true, errors.New("повторный заголовок мира")
		}
		c.head = m
		c.playerID.Store(m.PlayerID)
		if m.Size > storage.MaxWorldSize {
			c.failWorld(fmt.Errorf("мир: заявлено %d байт, предел %d", m.Size, storage.MaxWorldSize))
			return true, nil
		}
		c.headData = make([]byte, 0, min(m.Size, headPrealloc))
		if m.Size == 0 {
			c.assembleWorld()
		}
	case *protocol.ServerWorldData:
		if c.head == nil || c.worldDone {
			return true, errors.New("данные мира вне заголовка")
		}
		c.headData = append(c.headData, m.Data...)
		if uint32(len(c.headData)) >= c.head.Size {
			c.assembleWorld()
		}
	default:
		c.applyToReplica(msg)
	}
	return true, nil
}

// failWorld завершает сборку мира ошибкой для WaitForWorld
func (c *GameClient) failWorld(err error) {
	c.worldDone = true
	c.worldErr = err
	c.headData = nil
	close(c.worldReady)
	c.logger.Error("❌ %v", err)
}

// assembleWorld разбирает собранный мир и запускает реплику
func (c *GameClient) assembleWorld() {
	c.worldDone = true
	defer close(c.worldReady)

	data := c.headData
	c.headData = nil
	if uint32(len(data)) != c.head.Size {
		c.worldErr = fmt.Errorf("мир: получено %d байт из %d", len(data), c.head.Size)
		return
	}
	if c.head.Compressed {
		var err error
		if data, err = storage.Decompress(data, storage.MaxWorldSize); err != nil {
			c.worldErr = fmt.Errorf("распаковка мира: %w", err)
			return
		}
	}
	obj, err := c.types.Deserialize(data)
	if err != nil {
		c.worldErr = fmt.Errorf("разбор мира: %w", err)
		return
	}
	w, ok := obj.(*world.World)
	if !ok {
		c.worldErr = fmt.Errorf("вместо мира пришёл %T", obj)
		return
	}

	c.loop = simulation.New(w, c.config.Simulation, simulation.ExtrapolateStep)
	loopCtx, stop := context.WithCancel(context.Background())
	c.stopLoop = stop
	go func() {
		if err := c.loop.Run(loopCtx); err != nil {
			c.logger.Error("реплика остановлена: %v", err)
		}
	}()
	c.logger.Info("🌍 Мир %dx%d получен, сущностей: %d, игрок #%d", w.Width(), w.Height(), w.EntityCount(), c.head.PlayerID)
}

// applyToReplica переносит изменение от сервера в реплику. Неизвестные
// сущности и обновления до получения мира пропускаются.
func (c *GameClient) applyToReplica(msg protocol.Message) {
	if c.loop == nil {
		return
	}
	var cmd simulation.Command
	switch m := msg.(type) {
	case *protocol.ServerEntityUpdate:
		cmd = func(w *world.World) error {
			w.SetEntityState(m.ID, m.Position, m.Velocity)
			return nil
		}
	case *protocol.ServerAddEntity:
		cmd = func(w *world.World) error {
			if err := w.Add(m.Entity); err != nil {
				c.logger.Debug("добавление %d: %v", m.Entity.ID(), err)
			}
			return nil
		}
	case *protocol.ServerRemoveEntity:
		cmd = func(w *world.World) error {
			if _, err := w.Remove(m.Entity.ID()); err != nil {
				c.logger.Debug("удаление %d: %v", m.Entity.ID(), err)
			}
			return nil
		}
	case *protocol.ServerRemoveBlock:
		cmd = func(w *world.World) error {
			if err := w.SetBlock(m.Layer, int(m.X), int(m.Y), nil); err != nil {
				c.logger.Debug("удаление блока: %v", err)
			}
			return nil
		}
	case *protocol.ServerPlaceBlock:
		cmd = func(w *world.World) error {
			if err := w.SetBlock(m.Layer, int(m.X), int(m.Y), m.Block); err != nil {
				c.logger.Debug("установка блока: %v", err)
			}
			return nil
		}
	default:
		c.logger.Debug("сообщение %s не обрабатывается клиентом", msg.Tag())
		return
	}
	c.loop.Submit(cmd)
}
