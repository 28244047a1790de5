package server

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/annel0/sandbox-game/internal/eventbus"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/world"
)

var errUnexpectedMessage = errors.New("server: unexpected message")

// handleMessage обрабатывает доставленное сообщение в сетевой горутине
func (s *GameServer) handleMessage(addr netip.AddrPort, msg protocol.Message, now time.Time) error {
	switch msg.(type) {
	case protocol.ClientConnectRequest:
		s.handleConnect(addr, now)
		return nil
	case protocol.ClientInfoRequest:
		s.handleInfoRequest(addr, now)
		return nil
	}

	c, ok := s.conns.Get(addr)
	if !ok {
		s.metrics.Dropped("not_connected")
		s.logger.Debug("%s от неподключённого %s", msg.Tag(), addr)
		return nil
	}

	switch m := msg.(type) {
	case protocol.Ping:
		s.send(addr, protocol.Ping{}, now)
	case *protocol.ClientInfo:
		s.handleClientInfo(c, m, now)
	case *protocol.ConsoleMessage:
		s.handleChat(c, m, now)
	case protocol.ClientDisconnect:
		s.logger.Info("👋 %s (%s) отключился", addr, c.Username)
		s.dropConnection(addr, "вышел")
		s.transport.Forget(addr)
	case *protocol.ClientPlayerAction:
		s.withPlayer(c, func(w *world.World, p *world.PlayerEntity) error {
			if !p.ApplyAction(m.Action, m.Pressed) {
				s.logger.Debug("неизвестное действие %d от %s", m.Action, c.Username)
			}
			return nil
		})
	case *protocol.ClientBreakBlock:
		s.withPlayer(c, func(w *world.World, p *world.PlayerEntity) error {
			broken, err := w.PlayerBreakBlock(p, int(m.X), int(m.Y))
			if broken && err != nil {
				return err
			}
			if err != nil {
				s.logger.Debug("%s не может сломать (%d,%d): %v", p.Name, m.X, m.Y, err)
			}
			return nil
		})
	case *protocol.ClientPlaceBlock:
		s.withPlayer(c, func(w *world.World, p *world.PlayerEntity) error {
			if _, err := w.PlayerPlaceBlock(p, int(m.X), int(m.Y)); err != nil {
				s.logger.Debug("%s не может поставить блок в (%d,%d): %v", p.Name, m.X, m.Y, err)
			}
			return nil
		})
	case *protocol.ClientBombThrow:
		s.withPlayer(c, func(w *world.World, p *world.PlayerEntity) error {
			_, err := w.ThrowBomb(p, m.Angle)
			return err
		})
	default:
		return fmt.Errorf("%s: %w", msg.Tag(), errUnexpectedMessage)
	}
	return nil
}

func (s *GameServer) handleConnect(addr netip.AddrPort, now time.Time) {
	c, accepted := s.conns.TryAdd(addr, now)
	s.send(addr, &protocol.ServerConnectAcknowledgment{Accepted: accepted}, now)
	if !accepted {
		s.logger.Info("🚫 %s отклонён (%d/%d)", addr, s.conns.Count(), s.conns.Capacity())
		return
	}
	s.updateConnectionCount()
	s.logger.Info("🔌 %s подключился (%d/%d)", c.Addr, s.conns.Count(), s.conns.Capacity())
}

// handleInfoRequest отвечает любому адресу без создания подключения
func (s *GameServer) handleInfoRequest(addr netip.AddrPort, now time.Time) {
	s.send(addr, &protocol.ServerInfo{
		Players:  uint16(s.conns.Count()),
		Capacity: uint16(s.conns.Capacity()),
		Name:     s.config.Name,
	}, now)
}

func (s *GameServer) handleChat(c *network.Connection, m *protocol.ConsoleMessage, now time.Time) {
	if c.State != network.StateInGame {
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	line := fmt.Sprintf("<%s> %s", c.Username, text)
	s.logger.Info("💬 %s", line)
	s.broadcast(&protocol.ConsoleMessage{Text: line}, now)
	s.publish(eventbus.EventConsoleMessage, 1, eventbus.ConsoleMessage{Text: line})
}

// announce рассылает системное сообщение в консоль клиентов
func (s *GameServer) announce(text string, now time.Time) {
	if s.stopping {
		return
	}
	s.broadcast(&protocol.ConsoleMessage{Text: text}, now)
	s.publish(eventbus.EventConsoleMessage, 1, eventbus.ConsoleMessage{Text: text})
}

// withPlayer выполняет действие над сущностью игрока в горутине мира.
// Сообщения до получения мира игнорируются.
func (s *GameServer) withPlayer(c *network.Connection, fn func(w *world.World, p *world.PlayerEntity) error) {
	if c.State != network.StateInGame {
		return
	}
	id := c.PlayerID
	s.loop.Submit(func(w *world.World) error {
		e, ok := w.Entity(id)
		if !ok {
			return nil
		}
		p, ok := e.(*world.PlayerEntity)
		if !ok {
			return fmt.Errorf("сущность %d не игрок", id)
		}
		return fn(w, p)
	})
}

// kick отправляет SERVER_CLIENT_DISCONNECT с причиной и отключает клиента
func (s *GameServer) kick(addr netip.AddrPort, reason string, now time.Time) {
	if !s.conns.Contains(addr) {
		return
	}
	s.send(addr, &protocol.ServerClientDisconnect{Reason: reason}, now)
	s.dropConnection(addr, reason)
}

// dropConnection удаляет подключение и сущность игрока. Сессия транспорта
// остаётся до подтверждения отправленных сообщений.
func (s *GameServer) dropConnection(addr netip.AddrPort, reason string) {
	c, ok := s.conns.Remove(addr)
	if !ok {
		return
	}
	s.updateConnectionCount()
	s.limiter.Forget(addr)

	if c.State != network.StateInGame {
		s.logger.Debug("%s удалён до входа в мир: %s", addr, reason)
		return
	}
	s.loop.Submit(s.removePlayerCommand(c.PlayerID, c.Username, true))
	s.logger.Info("🚪 %s покинул мир: %s", c.Username, reason)
	s.announce(fmt.Sprintf("%s покинул игру (%s)", c.Username, reason), time.Now())
	s.publish(eventbus.EventPlayerLeft, 3, eventbus.PlayerLeft{
		Username: c.Username,
		PlayerID: c.PlayerID,
		Address:  addr.String(),
		Reason:   reason,
		Players:  s.conns.Count(),
	})
}

func (s *GameServer) updateConnectionCount() {
	n := s.conns.Count()
	s.players.Store(int32(n))
	s.metrics.SetConnections(n)
}
