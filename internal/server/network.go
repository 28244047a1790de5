package server

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/serial"
)

const limiterCleanupInterval = time.Minute

// serveNetwork цикл сетевой горутины: приём с ограниченным ожиданием,
// разбор, очередь от мира, повторы и таймауты. Владеет транспортом,
// реестром подключений и ограничителем.
func (s *GameServer) serveNetwork(ctx context.Context) error {
	lastFlush := time.Now()
	lastCleanup := lastFlush

	for {
		if ctx.Err() != nil {
			s.shutdownNetwork()
			return nil
		}

		data, addr, ok, err := s.endpoint.Read(s.config.ReceiveTimeout)
		now := time.Now()
		switch {
		case err != nil && network.IsClosed(err):
			return err
		case err != nil:
			// ICMP unreachable и подобное: клиента отключат повторы или таймаут
			s.logger.Debug("ошибка чтения UDP: %v", err)
		case ok:
			s.handleDatagram(addr, data, now)
		}

		s.drainOutbox(now)
		if now.Sub(lastFlush) >= s.config.EntityUpdateInterval {
			s.flushEntityUpdates(now)
			lastFlush = now
		}

		for _, lost := range s.transport.Poll(now) {
			s.dropConnection(lost, "потеря связи")
		}
		s.checkTimeouts(now)
		s.transport.Sweep(s.conns.Contains)

		if now.Sub(lastCleanup) >= limiterCleanupInterval {
			s.limiter.Cleanup(now)
			lastCleanup = now
		}
	}
}

// handleDatagram проверяет лимит, пропускает датаграмму через транспорт
// и передаёт доставленное сообщение обработчику
func (s *GameServer) handleDatagram(addr netip.AddrPort, data []byte, now time.Time) {
	if !s.limiter.Allow(addr, now) {
		s.metrics.Dropped("rate_limit")
		return
	}

	pkt, deliver, err := s.transport.Receive(addr, data)
	if err != nil {
		s.metrics.Dropped("malformed")
		s.logger.ProtocolError(addr.String(), err, data)
		return
	}
	s.conns.Touch(addr, now)
	if !deliver {
		return
	}

	dec := serial.NewDecoder(s.types, pkt.Payload)
	err = s.inbound.Dispatch(pkt.Tag, dec, func(msg protocol.Message) error {
		return s.handleMessage(addr, msg, now)
	})
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrUnknownMessageKind):
		s.metrics.Dropped("unknown_tag")
		s.logger.Warn("неизвестный тег %s от %s", pkt.Tag, addr)
	default:
		s.metrics.Dropped("malformed")
		s.logger.ProtocolError(addr.String(), err, data)
	}
}

// drainOutbox рассылает всё, что горутина мира поставила в очередь,
// и выполняет команды консоли
func (s *GameServer) drainOutbox(now time.Time) {
	for _, item := range s.outbox.Drain() {
		switch item.kind {
		case outBroadcast:
			s.broadcastRaw(item.tag, item.payload, now)
		case outEntityUpdate:
			s.updates[item.entityID] = item.payload
		case outEntityRemoved:
			delete(s.updates, item.entityID)
			s.broadcastRaw(item.tag, item.payload, now)
		case outWorldHead:
			s.sendWorldHead(item, now)
		case outTask:
			item.task(now)
		}
	}
}

// flushEntityUpdates отправляет последнее состояние каждой сдвинувшейся сущности
func (s *GameServer) flushEntityUpdates(now time.Time) {
	if len(s.updates) == 0 {
		return
	}
	for id, payload := range s.updates {
		s.broadcastRaw(protocol.ServerEntityUpdateTag, payload, now)
		delete(s.updates, id)
	}
}

func (s *GameServer) checkTimeouts(now time.Time) {
	if s.config.ConnectionTimeout <= 0 {
		return
	}
	for _, c := range s.conns.Stale(now, s.config.ConnectionTimeout) {
		s.logger.Info("⏱️ %s (%s) молчит дольше %v", c.Addr, c.Username, s.config.ConnectionTimeout)
		s.dropConnection(c.Addr, "таймаут")
		s.transport.Forget(c.Addr)
	}
}

// shutdownNetwork отключает всех клиентов и ждёт подтверждений
// не дольше ShutdownTimeout. Прочие входящие сообщения игнорируются.
func (s *GameServer) shutdownNetwork() {
	s.stopping = true
	now := time.Now()
	for _, c := range s.conns.All() {
		s.kick(c.Addr, "сервер остановлен", now)
	}
	s.drainOutbox(now)

	deadline := now.Add(s.config.ShutdownTimeout)
	for s.transport.Sessions() > 0 && time.Now().Before(deadline) {
		data, addr, ok, err := s.endpoint.Read(s.config.ReceiveTimeout)
		if err != nil && network.IsClosed(err) {
			return
		}
		if ok {
			_, _, _ = s.transport.Receive(addr, data)
		}
		s.transport.Poll(time.Now())
		s.transport.Sweep(func(netip.AddrPort) bool { return false })
	}
	if n := s.transport.Sessions(); n > 0 {
		s.logger.Warn("%d клиентов не подтвердили отключение", n)
	}
}

// send кодирует сообщение и отправляет его одному адресу
func (s *GameServer) send(addr netip.AddrPort, msg protocol.Message, now time.Time) {
	payload, err := protocol.Encode(s.types, msg)
	if err != nil {
		s.logger.Error("кодирование %s: %v", msg.Tag(), err)
		return
	}
	s.sendRaw(addr, msg.Tag(), payload, now)
}

func (s *GameServer) sendRaw(addr netip.AddrPort, tag protocol.Tag, payload []byte, now time.Time) {
	if err := s.transport.Send(addr, tag, payload, now); err != nil {
		s.logger.Warn("отправка %s для %s: %v", tag, addr, err)
	}
}

// broadcast отправляет сообщение всем клиентам, получившим мир
func (s *GameServer) broadcast(msg protocol.Message, now time.Time) {
	payload, err := protocol.Encode(s.types, msg)
	if err != nil {
		s.logger.Error("кодирование %s: %v", msg.Tag(), err)
		return
	}
	s.broadcastRaw(msg.Tag(), payload, now)
}

func (s *GameServer) broadcastRaw(tag protocol.Tag, payload []byte, now time.Time) {
	for _, c := range s.conns.InGame() {
		s.sendRaw(c.Addr, tag, payload, now)
	}
}
