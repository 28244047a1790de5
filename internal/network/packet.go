package network

import (
	"errors"
	"fmt"

	"github.com/annel0/sandbox-game/internal/codec"
	"github.com/annel0/sandbox-game/internal/protocol"
)

var (
	ErrPacketTooLarge = errors.New("network: packet exceeds MaxPacketSize")
	ErrShortPacket    = errors.New("network: packet shorter than header")
)

// Packet разобранная датаграмма. Payload ссылается на буфер приёма.
type Packet struct {
	Tag       protocol.Tag
	Reliable  bool
	MessageID uint32
	Payload   []byte
}

// EncodePacket собирает датаграмму: тег, messageId для надёжных, полезная нагрузка
func EncodePacket(tag protocol.Tag, reliable bool, id uint32, payload []byte) ([]byte, error) {
	header := protocol.HeaderSize
	if reliable {
		header = protocol.ReliableHeaderSize
	}
	size := header + len(payload)
	if size > protocol.MaxPacketSize {
		return nil, fmt.Errorf("%w: %d байт, тег %s", ErrPacketTooLarge, size, tag)
	}

	buf := make([]byte, size)
	codec.PutShort(buf, 0, uint16(tag))
	if reliable {
		codec.PutInt(buf, protocol.HeaderSize, id)
	}
	copy(buf[header:], payload)
	return buf, nil
}

// DecodePacket разбирает заголовок. Надёжность определяется по реестру
// принимающей стороны и на проводе не передаётся.
func DecodePacket(data []byte, inbound *protocol.Registry) (Packet, error) {
	if len(data) > protocol.MaxPacketSize {
		return Packet{}, fmt.Errorf("%w: %d байт", ErrPacketTooLarge, len(data))
	}
	rawTag, err := codec.GetShort(data, 0)
	if err != nil {
		return Packet{}, ErrShortPacket
	}
	p := Packet{Tag: protocol.Tag(rawTag), Reliable: inbound.Reliable(protocol.Tag(rawTag))}

	offset := protocol.HeaderSize
	if p.Reliable {
		if p.MessageID, err = codec.GetInt(data, offset); err != nil {
			return Packet{}, ErrShortPacket
		}
		offset = protocol.ReliableHeaderSize
	}
	p.Payload = data[offset:]
	return p, nil
}
