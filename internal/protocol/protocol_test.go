package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sandbox-game/internal/codec"
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
	"github.com/annel0/sandbox-game/internal/world"
)

func roundTrip(t *testing.T, reg *Registry, msg Message) Message {
	t.Helper()
	types := world.NewTypeRegistry()
	payload, err := Encode(types, msg)
	require.NoError(t, err)

	got, err := reg.Decode(msg.Tag(), serial.NewDecoder(types, payload))
	require.NoError(t, err)
	return got
}

func TestServerBoundRoundTrip(t *testing.T) {
	reg := ServerBound()
	messages := []Message{
		&ConsoleMessage{Text: "привет, мир"},
		&Acknowledgment{MessageID: 0xDEADBEEF},
		Ping{},
		ClientConnectRequest{},
		&ClientInfo{Username: "steve"},
		&ClientPlayerAction{Action: world.ActionRight, Pressed: true},
		&ClientBreakBlock{X: -3, Y: 42},
		&ClientPlaceBlock{X: 7, Y: 0},
		&ClientBombThrow{Angle: 1.25},
		ClientDisconnect{},
		ClientInfoRequest{},
	}
	for _, msg := range messages {
		assert.Equal(t, msg, roundTrip(t, reg, msg), reg.Name(msg.Tag()))
	}
}

func TestClientBoundRoundTrip(t *testing.T) {
	reg := ClientBound()
	item := world.NewItemEntity(7, &world.BlockItem{Block: world.GrassBlock{}}, vec.Vec2Float{X: 3.5, Y: 12.25})
	item.Velocity = vec.Vec2Float{X: -1, Y: 2}
	bomb := world.NewBombEntity(9, vec.Vec2Float{X: 1, Y: 2}, vec.Vec2Float{X: 3, Y: 4})

	messages := []Message{
		&ServerConnectAcknowledgment{Accepted: true},
		&ServerWorldHead{PlayerID: 3, Size: 12345, Compressed: true},
		&ServerWorldData{Data: []byte{1, 2, 3, 4, 5}},
		&ServerEntityUpdate{ID: 7, Position: vec.Vec2Float{X: 1.5, Y: 2.5}, Velocity: vec.Vec2Float{X: -3, Y: 0}},
		&ServerAddEntity{Entity: item},
		&ServerRemoveEntity{Entity: bomb},
		&ServerClientDisconnect{Reason: "сервер остановлен"},
		&ServerRemoveBlock{Layer: world.Background, X: 10, Y: 20},
		&ServerPlaceBlock{Layer: world.Foreground, X: 1, Y: 2, Block: world.RedBlock{}},
		&ServerInfo{Players: 2, Capacity: 10, Name: "sandbox"},
	}
	for _, msg := range messages {
		assert.Equal(t, msg, roundTrip(t, reg, msg), reg.Name(msg.Tag()))
	}
}

func TestEntityUpdateLayout(t *testing.T) {
	payload, err := Encode(world.NewTypeRegistry(), &ServerEntityUpdate{
		ID:       1,
		Position: vec.Vec2Float{X: 1, Y: 2},
	})
	require.NoError(t, err)
	require.Len(t, payload, 4+4*4)
	assert.Equal(t, []byte{0, 0, 0, 1}, payload[:4])
	assert.Equal(t, []byte{0x3F, 0x80, 0, 0}, payload[4:8])
	assert.Equal(t, []byte{0x40, 0, 0, 0}, payload[8:12])
}

func TestNamespaces(t *testing.T) {
	assert.Equal(t, Tag(0x8000), ConsoleMessageTag)
	assert.Equal(t, Tag(0x8001), AcknowledgmentTag)
	assert.True(t, PingTag.Shared())
	assert.Equal(t, uint16(2), PingTag.Number())
	assert.False(t, ClientInfoRequestTag.Shared())

	// Направленные пространства пересекаются по номерам, но живут в разных реестрах
	assert.Equal(t, ClientConnectRequestTag, ServerConnectAcknowledgmentTag)
	assert.Equal(t, "CLIENT_CONNECT_REQUEST", ServerBound().Name(0))
	assert.Equal(t, "SERVER_CONNECT_ACKNOWLEDGMENT", ClientBound().Name(0))
}

func TestReliability(t *testing.T) {
	server, client := ServerBound(), ClientBound()

	assert.True(t, server.Reliable(ConsoleMessageTag))
	assert.False(t, server.Reliable(AcknowledgmentTag))
	assert.False(t, server.Reliable(PingTag))
	assert.True(t, server.Reliable(ClientConnectRequestTag))
	assert.False(t, server.Reliable(ClientInfoRequestTag))

	assert.True(t, client.Reliable(ServerAddEntityTag))
	assert.False(t, client.Reliable(ServerEntityUpdateTag))
	assert.False(t, client.Reliable(ServerInfoTag))
	assert.False(t, client.Reliable(Tag(999)))
}

func TestUnknownTag(t *testing.T) {
	reg := ServerBound()
	called := false
	err := reg.Dispatch(Tag(200), serial.NewDecoder(world.NewTypeRegistry(), nil), func(Message) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrUnknownMessageKind)
	assert.False(t, called)
}

func TestDispatch(t *testing.T) {
	types := world.NewTypeRegistry()
	payload, err := Encode(types, &ClientInfo{Username: "alex"})
	require.NoError(t, err)

	var got Message
	err = ServerBound().Dispatch(ClientInfoTag, serial.NewDecoder(types, payload), func(m Message) error {
		got = m
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, &ClientInfo{Username: "alex"}, got)
}

func TestMalformedPayloads(t *testing.T) {
	types := world.NewTypeRegistry()
	reg := ServerBound()

	_, err := reg.Decode(ClientBreakBlockTag, serial.NewDecoder(types, []byte{0, 0, 0, 1, 0, 0}))
	assert.ErrorIs(t, err, codec.ErrTruncatedMessage)

	_, err = reg.Decode(PingTag, serial.NewDecoder(types, []byte{1}))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	client := ClientBound()
	_, err = client.Decode(ServerRemoveBlockTag, serial.NewDecoder(types, []byte{5, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrMalformedMessage, "неизвестный слой")

	_, err = client.Decode(ServerAddEntityTag, serial.NewDecoder(types, []byte{0, 0}))
	assert.ErrorIs(t, err, ErrMalformedMessage, "пустой слот вместо сущности")

	_, err = client.Decode(ServerAddEntityTag, serial.NewDecoder(types, []byte{0x7F, 0x7F, 0, 0, 0, 0}))
	assert.ErrorIs(t, err, serial.ErrTypeNotRegistered)
}

func TestFrozenRegistry(t *testing.T) {
	reg := ServerBound()
	err := reg.Register(Tag(100), Kind{Name: "X", Decode: empty(Ping{})})
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	fresh := NewRegistry(ToServer)
	require.NoError(t, fresh.Register(PingTag, Kind{Name: "PING", Decode: empty(Ping{})}))
	assert.ErrorIs(t, fresh.Register(PingTag, Kind{Name: "PING2", Decode: empty(Ping{})}), ErrDuplicateTag)
	assert.Equal(t, []Tag{PingTag}, fresh.Tags())
}
