package network

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sandbox-game/internal/codec"
	"github.com/annel0/sandbox-game/internal/protocol"
)

type sent struct {
	addr   netip.AddrPort
	packet []byte
}

type recordingSender struct {
	packets []sent
}

func (s *recordingSender) WriteTo(packet []byte, addr netip.AddrPort) error {
	s.packets = append(s.packets, sent{addr: addr, packet: append([]byte(nil), packet...)})
	return nil
}

var (
	clientAddr = netip.MustParseAddrPort("127.0.0.1:40000")
	otherAddr  = netip.MustParseAddrPort("127.0.0.1:40001")
	epoch      = time.Unix(1_700_000_000, 0)
)

// serverTransport транспорт серверной стороны: принимает client->server, шлёт server->client
func serverTransport(attempts int) (*ReliableTransport, *recordingSender) {
	s := &recordingSender{}
	t := NewReliableTransport(s, protocol.ServerBound(), protocol.ClientBound(), TransportConfig{
		Attempts:      attempts,
		RetryInterval: 100 * time.Millisecond,
	})
	return t, s
}

func ackPacket(id uint32) []byte {
	payload := make([]byte, 4)
	codec.PutInt(payload, 0, id)
	p, _ := EncodePacket(protocol.AcknowledgmentTag, false, 0, payload)
	return p
}

func TestPacketLayout(t *testing.T) {
	p, err := EncodePacket(protocol.ServerConnectAcknowledgmentTag, true, 0x01020304, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 4, 1}, p)

	p, err = EncodePacket(protocol.PingTag, false, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x02}, p)

	_, err = EncodePacket(protocol.ServerWorldDataTag, true, 0, make([]byte, protocol.MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPacketTooLarge)

	_, err = DecodePacket([]byte{0}, protocol.ServerBound())
	assert.ErrorIs(t, err, ErrShortPacket)
	_, err = DecodePacket([]byte{0, 1, 0, 0}, protocol.ServerBound())
	assert.ErrorIs(t, err, ErrShortPacket, "надёжный тег без полного messageId")

	oversized := make([]byte, protocol.MaxPacketSize+1)
	oversized[1] = 0x01
	_, err = DecodePacket(oversized, protocol.ServerBound())
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestRetriesThenExpiry(t *testing.T) {
	tr, sender := serverTransport(3)
	require.NoError(t, tr.Send(clientAddr, protocol.ServerConnectAcknowledgmentTag, []byte{1}, epoch))
	assert.Len(t, sender.packets, 1)

	// До дедлайна повторов нет
	assert.Empty(t, tr.Poll(epoch.Add(50*time.Millisecond)))
	assert.Len(t, sender.packets, 1)

	now := epoch
	for i := 0; i < 2; i++ {
		now = now.Add(100 * time.Millisecond)
		assert.Empty(t, tr.Poll(now))
	}
	require.Len(t, sender.packets, 3, "attempts=3 даёт ровно три отправки")
	for _, p := range sender.packets {
		assert.Equal(t, sender.packets[0].packet, p.packet, "повтор отправляет те же байты")
	}

	now = now.Add(100 * time.Millisecond)
	assert.Equal(t, []netip.AddrPort{clientAddr}, tr.Poll(now))
	assert.Len(t, sender.packets, 3)
	assert.Zero(t, tr.Sessions())
}

func TestAckRemovesPending(t *testing.T) {
	tr, sender := serverTransport(3)
	require.NoError(t, tr.Send(clientAddr, protocol.ServerWorldHeadTag, make([]byte, 9), epoch))
	require.NoError(t, tr.Send(clientAddr, protocol.ServerWorldDataTag, []byte{1, 2}, epoch))
	assert.Equal(t, 2, tr.Pending(clientAddr))

	_, deliver, err := tr.Receive(clientAddr, ackPacket(0))
	require.NoError(t, err)
	assert.False(t, deliver)
	assert.Equal(t, 1, tr.Pending(clientAddr))

	// Повторный ack ничего не меняет
	_, _, err = tr.Receive(clientAddr, ackPacket(0))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Pending(clientAddr))

	// ack с чужого адреса не трогает сессию
	_, _, err = tr.Receive(otherAddr, ackPacket(1))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Pending(clientAddr))

	_, _, err = tr.Receive(clientAddr, ackPacket(1))
	require.NoError(t, err)
	assert.Zero(t, tr.Pending(clientAddr))

	assert.Empty(t, tr.Poll(epoch.Add(time.Hour)))
	assert.Len(t, sender.packets, 2)
}

func TestMalformedAck(t *testing.T) {
	tr, _ := serverTransport(3)
	p, _ := EncodePacket(protocol.AcknowledgmentTag, false, 0, []byte{1, 2})
	_, _, err := tr.Receive(clientAddr, p)
	assert.ErrorIs(t, err, ErrInvalidAck)
}

func TestUnreliableSend(t *testing.T) {
	tr, sender := serverTransport(3)
	require.NoError(t, tr.Send(clientAddr, protocol.ServerEntityUpdateTag, make([]byte, 20), epoch))
	assert.Zero(t, tr.Pending(clientAddr))
	require.Len(t, sender.packets, 1)
	assert.Len(t, sender.packets[0].packet, protocol.HeaderSize+20)
}

func TestOrderedExactlyOnceReceive(t *testing.T) {
	tr, sender := serverTransport(3)
	msg := func(id uint32) []byte {
		p, err := EncodePacket(protocol.ClientDisconnectTag, true, id, nil)
		require.NoError(t, err)
		return p
	}

	// Сообщение из будущего отброшено без ack
	_, deliver, err := tr.Receive(clientAddr, msg(1))
	require.NoError(t, err)
	assert.False(t, deliver)
	assert.Empty(t, sender.packets)

	p, deliver, err := tr.Receive(clientAddr, msg(0))
	require.NoError(t, err)
	assert.True(t, deliver)
	assert.Equal(t, protocol.ClientDisconnectTag, p.Tag)
	assert.Equal(t, ackPacket(0), sender.packets[0].packet)

	// Дубликат подтверждается, но не доставляется
	_, deliver, err = tr.Receive(clientAddr, msg(0))
	require.NoError(t, err)
	assert.False(t, deliver)
	require.Len(t, sender.packets, 2)
	assert.Equal(t, ackPacket(0), sender.packets[1].packet)

	_, deliver, err = tr.Receive(clientAddr, msg(1))
	require.NoError(t, err)
	assert.True(t, deliver)
}

func TestUnreliableReceive(t *testing.T) {
	tr, sender := serverTransport(3)
	p, _ := EncodePacket(protocol.ClientInfoRequestTag, false, 0, nil)
	pkt, deliver, err := tr.Receive(clientAddr, p)
	require.NoError(t, err)
	assert.True(t, deliver)
	assert.Equal(t, protocol.ClientInfoRequestTag, pkt.Tag)
	assert.Empty(t, pkt.Payload)
	assert.Empty(t, sender.packets)
	assert.Zero(t, tr.Sessions(), "ненадёжный запрос не создаёт сессию")
}

func TestSweepAndForget(t *testing.T) {
	tr, _ := serverTransport(3)
	require.NoError(t, tr.Send(clientAddr, protocol.ServerConnectAcknowledgmentTag, []byte{0}, epoch))
	require.NoError(t, tr.Send(otherAddr, protocol.ServerConnectAcknowledgmentTag, []byte{1}, epoch))
	_, _, _ = tr.Receive(otherAddr, ackPacket(0))

	never := func(netip.AddrPort) bool { return false }
	tr.Sweep(never)
	assert.Equal(t, 1, tr.Sessions(), "сессия с ожидающим сообщением остаётся")

	_, _, _ = tr.Receive(clientAddr, ackPacket(0))
	tr.Sweep(func(a netip.AddrPort) bool { return a == clientAddr })
	assert.Equal(t, 1, tr.Sessions())

	tr.Forget(clientAddr)
	assert.Zero(t, tr.Sessions())

	// Новая сессия начинает нумерацию заново
	require.NoError(t, tr.Send(clientAddr, protocol.ServerConnectAcknowledgmentTag, []byte{1}, epoch))
	_, _, _ = tr.Receive(clientAddr, ackPacket(0))
	assert.Zero(t, tr.Pending(clientAddr))
}

func TestConnectionRegistry(t *testing.T) {
	r := NewConnectionRegistry(1)
	c, ok := r.TryAdd(clientAddr, epoch)
	require.True(t, ok)
	assert.Equal(t, StateConnected, c.State)

	_, ok = r.TryAdd(clientAddr, epoch)
	assert.False(t, ok, "дубликат")
	_, ok = r.TryAdd(otherAddr, epoch)
	assert.False(t, ok, "реестр заполнен")
	assert.Equal(t, 1, r.Count())

	_, ok = r.Remove(clientAddr)
	assert.True(t, ok)
	_, ok = r.Remove(clientAddr)
	assert.False(t, ok)
	assert.Zero(t, r.Count())

	_, ok = r.TryAdd(otherAddr, epoch)
	assert.True(t, ok)
}

func TestConnectionRegistryViews(t *testing.T) {
	r := NewConnectionRegistry(4)
	a, _ := r.TryAdd(otherAddr, epoch)
	b, _ := r.TryAdd(clientAddr, epoch)
	b.State = StateInGame

	assert.Equal(t, []*Connection{b, a}, r.All())
	assert.Equal(t, []*Connection{b}, r.InGame())

	r.Touch(clientAddr, epoch.Add(10*time.Second))
	assert.Equal(t, []*Connection{a}, r.Stale(epoch.Add(10*time.Second), 5*time.Second))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow(clientAddr, epoch))
	assert.True(t, rl.Allow(clientAddr, epoch))
	assert.False(t, rl.Allow(clientAddr, epoch))
	assert.True(t, rl.Allow(otherAddr, epoch), "лимит на адрес")
	assert.True(t, rl.Allow(clientAddr, epoch.Add(time.Second)))

	rl.Forget(clientAddr)
	assert.True(t, rl.Allow(clientAddr, epoch), "после Forget лимит заново")

	rl.Cleanup(epoch.Add(2 * time.Minute))
	assert.Zero(t, rl.Len())

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow(clientAddr, epoch))
	}
}

func TestEndpointLoopback(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.WriteTo([]byte{1, 2, 3}, b.LocalAddr()))
	data, from, ok, err := b.Read(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, a.LocalAddr(), from)

	_, _, ok, err = b.Read(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "таймаут")
}

func TestEndpointKeepsOversizedDatagramLength(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.WriteTo(make([]byte, protocol.MaxPacketSize+100), b.LocalAddr()))
	data, _, ok, err := b.Read(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, data, protocol.MaxPacketSize+1)

	_, err = DecodePacket(data, protocol.ServerBound())
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}
