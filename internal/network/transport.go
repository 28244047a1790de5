package network

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/annel0/sandbox-game/internal/codec"
	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/protocol"
)

var ErrInvalidAck = errors.New("network: malformed acknowledgment")

// Sender пишет готовую датаграмму на адрес
type Sender interface {
	WriteTo(packet []byte, addr netip.AddrPort) error
}

// TransportConfig параметры надёжной доставки
type TransportConfig struct {
	// Attempts общее число отправок надёжного сообщения, включая первую
	Attempts int
	// RetryInterval постоянный интервал между повторами
	RetryInterval time.Duration
}

// pendingMessage неподтверждённое надёжное сообщение
type pendingMessage struct {
	id        uint32
	tag       protocol.Tag
	packet    []byte
	remaining int
	deadline  time.Time
}

// session состояние надёжной доставки для одного адреса
type session struct {
	nextOutgoing uint32
	nextIncoming uint32
	pending      map[uint32]*pendingMessage
}

func newSession() *session {
	return &session{pending: make(map[uint32]*pendingMessage)}
}

// ReliableTransport подтверждения, повторы и упорядоченный приём надёжных
// сообщений поверх ненадёжных датаграмм. Используется только сетевой горутиной.
type ReliableTransport struct {
	sender   Sender
	inbound  *protocol.Registry
	outbound *protocol.Registry
	config   TransportConfig
	sessions map[netip.AddrPort]*session
	metrics  *Metrics
	logger   *logging.Logger
}

// NewReliableTransport создаёт транспорт. inbound определяет надёжность
// входящих тегов, outbound исходящих.
func NewReliableTransport(sender Sender, inbound, outbound *protocol.Registry, cfg TransportConfig) *ReliableTransport {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &ReliableTransport{
		sender:   sender,
		inbound:  inbound,
		outbound: outbound,
		config:   cfg,
		sessions: make(map[netip.AddrPort]*session),
		logger:   logging.GetNetworkLogger(),
	}
}

// SetMetrics подключает метрики
func (t *ReliableTransport) SetMetrics(m *Metrics) { t.metrics = m }

func (t *ReliableTransport) session(addr netip.AddrPort) *session {
	s, ok := t.sessions[addr]
	if !ok {
		s = newSession()
		t.sessions[addr] = s
	}
	return s
}

// Send отправляет полезную нагрузку с тегом tag. Для надёжных тегов
// назначается следующий messageId и создаётся запись ожидания подтверждения.
// Ошибка записи в сокет не отменяет повторов.
func (t *ReliableTransport) Send(addr netip.AddrPort, tag protocol.Tag, payload []byte, now time.Time) error {
	reliable := t.outbound.Reliable(tag)
	if !reliable {
		packet, err := EncodePacket(tag, false, 0, payload)
		if err != nil {
			return err
		}
		return t.write(packet, addr, false)
	}

	s := t.session(addr)
	id := s.nextOutgoing
	packet, err := EncodePacket(tag, true, id, payload)
	if err != nil {
		return err
	}
	s.nextOutgoing++
	s.pending[id] = &pendingMessage{
		id:        id,
		tag:       tag,
		packet:    packet,
		remaining: t.config.Attempts - 1,
		deadline:  now.Add(t.config.RetryInterval),
	}
	return t.write(packet, addr, true)
}

func (t *ReliableTransport) write(packet []byte, addr netip.AddrPort, reliable bool) error {
	if err := t.sender.WriteTo(packet, addr); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	t.metrics.packetSent(reliable, len(packet))
	return nil
}

// Receive разбирает датаграмму. Подтверждения обрабатываются внутри и не
// доставляются. Для надёжного сообщения с ожидаемым id отправляется ack и
// сообщение доставляется; повтор уже принятого подтверждается заново без
// доставки; сообщение из будущего отбрасывается, отправитель повторит его.
func (t *ReliableTransport) Receive(addr netip.AddrPort, data []byte) (Packet, bool, error) {
	p, err := DecodePacket(data, t.inbound)
	if err != nil {
		return Packet{}, false, err
	}
	t.metrics.packetReceived(p.Reliable, len(data))

	if p.Tag == protocol.AcknowledgmentTag {
		id, err := codec.GetInt(p.Payload, 0)
		if err != nil || len(p.Payload) != codec.IntSize {
			return Packet{}, false, ErrInvalidAck
		}
		t.acknowledge(addr, id)
		return Packet{}, false, nil
	}

	if !p.Reliable {
		return p, true, nil
	}

	s := t.session(addr)
	switch {
	case p.MessageID == s.nextIncoming:
		s.nextIncoming++
		t.sendAck(addr, p.MessageID)
		return p, true, nil
	case p.MessageID < s.nextIncoming:
		t.sendAck(addr, p.MessageID)
		t.logger.Trace("повтор %d от %s подтверждён без доставки", p.MessageID, addr)
	default:
		t.metrics.Dropped("out_of_order")
		t.logger.Trace("сообщение %d от %s опережает ожидаемое %d", p.MessageID, addr, s.nextIncoming)
	}
	return Packet{}, false, nil
}

func (t *ReliableTransport) sendAck(addr netip.AddrPort, id uint32) {
	payload := make([]byte, codec.IntSize)
	codec.PutInt(payload, 0, id)
	if err := t.Send(addr, protocol.AcknowledgmentTag, payload, time.Time{}); err != nil {
		t.logger.Warn("ack %d для %s: %v", id, addr, err)
	}
}

// acknowledge снимает запись ожидания. Повторный ack ничего не меняет.
func (t *ReliableTransport) acknowledge(addr netip.AddrPort, id uint32) {
	s, ok := t.sessions[addr]
	if !ok {
		return
	}
	delete(s.pending, id)
}

// Poll повторяет просроченные сообщения и возвращает адреса, у которых
// хотя бы одно сообщение исчерпало попытки. Сессии таких адресов удаляются.
func (t *ReliableTransport) Poll(now time.Time) []netip.AddrPort {
	var lost []netip.AddrPort
	total := 0
	for addr, s := range t.sessions {
		expired := false
		for _, msg := range s.pending {
			if now.Before(msg.deadline) {
				continue
			}
			if msg.remaining <= 0 {
				expired = true
				t.metrics.expiredMessage()
				t.logger.Debug("сообщение %d (тег %s) для %s не подтверждено", msg.id, msg.tag, addr)
				break
			}
			msg.remaining--
			msg.deadline = now.Add(t.config.RetryInterval)
			t.metrics.retransmit()
			if err := t.write(msg.packet, addr, true); err != nil {
				t.logger.Warn("повтор %d: %v", msg.id, err)
			}
		}
		if expired {
			lost = append(lost, addr)
			continue
		}
		total += len(s.pending)
	}
	for _, addr := range lost {
		delete(t.sessions, addr)
	}
	t.metrics.setPending(total)
	sort.Slice(lost, func(i, j int) bool { return lost[i].Compare(lost[j]) < 0 })
	return lost
}

// Sweep удаляет сессии без ожидающих сообщений, для которых keep вернул false
func (t *ReliableTransport) Sweep(keep func(addr netip.AddrPort) bool) {
	for addr, s := range t.sessions {
		if len(s.pending) == 0 && !keep(addr) {
			delete(t.sessions, addr)
		}
	}
}

// Forget удаляет сессию вместе с неподтверждёнными сообщениями
func (t *ReliableTransport) Forget(addr netip.AddrPort) {
	delete(t.sessions, addr)
}

// Pending число неподтверждённых сообщений для адреса
func (t *ReliableTransport) Pending(addr netip.AddrPort) int {
	if s, ok := t.sessions[addr]; ok {
		return len(s.pending)
	}
	return 0
}

// Sessions число известных сессий
func (t *ReliableTransport) Sessions() int { return len(t.sessions) }
