package server

import (
	"net/netip"
	"time"

	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/queue"
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/world"
)

type outgoingKind uint8

const (
	// outBroadcast готовое сообщение всем игрокам в игре
	outBroadcast outgoingKind = iota
	// outEntityUpdate ненадёжное обновление, вытесняет предыдущее для той же сущности
	outEntityUpdate
	// outEntityRemoved рассылка удаления плюс сброс накопленного обновления
	outEntityRemoved
	// outWorldHead сериализованный мир для подключившегося клиента
	outWorldHead
	// outTask команда консоли оператора, выполняется сетевой горутиной
	outTask
)

// outgoing элемент очереди от горутины мира к сетевой горутине
type outgoing struct {
	kind     outgoingKind
	tag      protocol.Tag
	payload  []byte
	entityID uint32

	// только для outTask
	task func(now time.Time)

	// только для outWorldHead
	addr       netip.AddrPort
	conn       *network.Connection
	playerID   uint32
	username   string
	compressed bool
}

// broadcaster наблюдатель мира на сервере. Вызывается в горутине мира:
// кодирует изменение и ставит его в очередь сетевой горутины.
type broadcaster struct {
	types  *serial.Registry
	outbox *queue.Queue[outgoing]
	logger *logging.Logger
}

func (b *broadcaster) encode(msg protocol.Message) ([]byte, bool) {
	payload, err := protocol.Encode(b.types, msg)
	if err != nil {
		b.logger.Error("кодирование %s: %v", msg.Tag(), err)
		return nil, false
	}
	if len(payload)+protocol.ReliableHeaderSize > protocol.MaxPacketSize {
		b.logger.Error("%s: %d байт не помещаются в датаграмму", msg.Tag(), len(payload))
		return nil, false
	}
	return payload, true
}

func (b *broadcaster) OnEntityAdd(e world.Entity) {
	if payload, ok := b.encode(&protocol.ServerAddEntity{Entity: e}); ok {
		b.outbox.Push(outgoing{kind: outBroadcast, tag: protocol.ServerAddEntityTag, payload: payload})
	}
}

func (b *broadcaster) OnEntityRemove(e world.Entity) {
	if payload, ok := b.encode(&protocol.ServerRemoveEntity{Entity: e}); ok {
		b.outbox.Push(outgoing{kind: outEntityRemoved, tag: protocol.ServerRemoveEntityTag, payload: payload, entityID: e.ID()})
	}
}

func (b *broadcaster) OnEntityUpdate(e world.Entity) {
	if payload, ok := b.encode(protocol.NewEntityUpdate(e)); ok {
		b.outbox.Push(outgoing{kind: outEntityUpdate, tag: protocol.ServerEntityUpdateTag, payload: payload, entityID: e.ID()})
	}
}

func (b *broadcaster) OnBlockChange(layer world.Layer, x, y int, block world.Block) {
	var msg protocol.Message
	if block == nil {
		msg = &protocol.ServerRemoveBlock{Layer: layer, X: int32(x), Y: int32(y)}
	} else {
		msg = &protocol.ServerPlaceBlock{Layer: layer, X: int32(x), Y: int32(y), Block: block}
	}
	if payload, ok := b.encode(msg); ok {
		b.outbox.Push(outgoing{kind: outBroadcast, tag: msg.Tag(), payload: payload})
	}
}
