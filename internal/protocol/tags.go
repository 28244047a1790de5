// Package protocol описывает сообщения UDP протокола синхронизации мира:
// теги трёх пространств имён, кодирование полезной нагрузки и реестр
// тег -> декодер.
package protocol

import "fmt"

// Tag 16-битный идентификатор сообщения на проводе.
// Общее пространство имён кодируется старшим битом (SharedFlag | n),
// направленные пространства используют номер без флага и трактуются
// по роли отправителя.
type Tag uint16

const SharedFlag Tag = 0x8000

// Direction направление сообщения
type Direction uint8

const (
	ToServer Direction = iota + 1
	ToClient
)

func (d Direction) String() string {
	switch d {
	case ToServer:
		return "client->server"
	case ToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Общие сообщения
const (
	ConsoleMessageTag Tag = SharedFlag | iota
	AcknowledgmentTag
	PingTag
)

// Клиент -> сервер
const (
	ClientConnectRequestTag Tag = iota
	ClientInfoTag
	ClientPlayerActionTag
	ClientBreakBlockTag
	ClientPlaceBlockTag
	ClientBombThrowTag
	ClientDisconnectTag
	ClientInfoRequestTag
)

// Сервер -> клиент
const (
	ServerConnectAcknowledgmentTag Tag = iota
	ServerWorldHeadTag
	ServerWorldDataTag
	ServerEntityUpdateTag
	ServerAddEntityTag
	ServerRemoveEntityTag
	ServerClientDisconnectTag
	ServerRemoveBlockTag
	ServerPlaceBlockTag
	ServerInfoTag
)

// Shared true для тегов общего пространства имён
func (t Tag) Shared() bool { return t&SharedFlag != 0 }

// Number номер внутри пространства имён
func (t Tag) Number() uint16 { return uint16(t &^ SharedFlag) }

func (t Tag) String() string {
	if t.Shared() {
		return fmt.Sprintf("shared/%d", t.Number())
	}
	return fmt.Sprintf("%d", t.Number())
}

const (
	// MaxPacketSize верхняя граница размера датаграммы
	MaxPacketSize = 1024
	// HeaderSize тег
	HeaderSize = 2
	// ReliableHeaderSize тег + messageId
	ReliableHeaderSize = HeaderSize + 4
	// MaxPayloadSize наибольшая полезная нагрузка надёжного сообщения
	MaxPayloadSize = MaxPacketSize - ReliableHeaderSize
)
