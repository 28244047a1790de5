package protocol

import (
	"fmt"

	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
	"github.com/annel0/sandbox-game/internal/world"
)

// Message неизменяемое сообщение протокола
type Message interface {
	Tag() Tag
	Encode(enc *serial.Encoder) error
}

// ---- общие ----

// ConsoleMessage текст для консоли (u16 длина + UTF-8)
type ConsoleMessage struct {
	Text string
}

func (m *ConsoleMessage) Tag() Tag                         { return ConsoleMessageTag }
func (m *ConsoleMessage) Encode(enc *serial.Encoder) error { return enc.WriteString(m.Text) }

func decodeConsoleMessage(dec *serial.Decoder) (Message, error) {
	text, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	return &ConsoleMessage{Text: text}, nil
}

// Acknowledgment подтверждение надёжного сообщения
type Acknowledgment struct {
	MessageID uint32
}

func (m *Acknowledgment) Tag() Tag { return AcknowledgmentTag }
func (m *Acknowledgment) Encode(enc *serial.Encoder) error {
	enc.WriteUint32(m.MessageID)
	return nil
}

func decodeAcknowledgment(dec *serial.Decoder) (Message, error) {
	id, err := dec.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &Acknowledgment{MessageID: id}, nil
}

// Ping пустое сообщение-пульс
type Ping struct{}

func (Ping) Tag() Tag                     { return PingTag }
func (Ping) Encode(*serial.Encoder) error { return nil }

// ---- клиент -> сервер ----

type ClientConnectRequest struct{}

func (ClientConnectRequest) Tag() Tag                     { return ClientConnectRequestTag }
func (ClientConnectRequest) Encode(*serial.Encoder) error { return nil }

// ClientInfo имя игрока (u8 длина + UTF-8)
type ClientInfo struct {
	Username string
}

func (m *ClientInfo) Tag() Tag                         { return ClientInfoTag }
func (m *ClientInfo) Encode(enc *serial.Encoder) error { return enc.WriteShortString(m.Username) }

func decodeClientInfo(dec *serial.Decoder) (Message, error) {
	name, err := dec.ReadShortString()
	if err != nil {
		return nil, err
	}
	return &ClientInfo{Username: name}, nil
}

// ClientPlayerAction код действия + нажатие/отпускание
type ClientPlayerAction struct {
	Action  world.Action
	Pressed bool
}

func (m *ClientPlayerAction) Tag() Tag { return ClientPlayerActionTag }
func (m *ClientPlayerAction) Encode(enc *serial.Encoder) error {
	enc.WriteUint8(uint8(m.Action))
	enc.WriteBoolean(m.Pressed)
	return nil
}

func decodeClientPlayerAction(dec *serial.Decoder) (Message, error) {
	action, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	pressed, err := dec.ReadBoolean()
	if err != nil {
		return nil, err
	}
	return &ClientPlayerAction{Action: world.Action(action), Pressed: pressed}, nil
}

// ClientBreakBlock запрос на разрушение блока
type ClientBreakBlock struct {
	X, Y int32
}

func (m *ClientBreakBlock) Tag() Tag { return ClientBreakBlockTag }
func (m *ClientBreakBlock) Encode(enc *serial.Encoder) error {
	enc.WriteInt(m.X)
	enc.WriteInt(m.Y)
	return nil
}

func decodeClientBreakBlock(dec *serial.Decoder) (Message, error) {
	x, y, err := readCell(dec)
	if err != nil {
		return nil, err
	}
	return &ClientBreakBlock{X: x, Y: y}, nil
}

// ClientPlaceBlock запрос на установку блока из выбранного слота
type ClientPlaceBlock struct {
	X, Y int32
}

func (m *ClientPlaceBlock) Tag() Tag { return ClientPlaceBlockTag }
func (m *ClientPlaceBlock) Encode(enc *serial.Encoder) error {
	enc.WriteInt(m.X)
	enc.WriteInt(m.Y)
	return nil
}

func decodeClientPlaceBlock(dec *serial.Decoder) (Message, error) {
	x, y, err := readCell(dec)
	if err != nil {
		return nil, err
	}
	return &ClientPlaceBlock{X: x, Y: y}, nil
}

// ClientBombThrow бросок бомбы под углом (радианы)
type ClientBombThrow struct {
	Angle float32
}

func (m *ClientBombThrow) Tag() Tag { return ClientBombThrowTag }
func (m *ClientBombThrow) Encode(enc *serial.Encoder) error {
	enc.WriteFloat(m.Angle)
	return nil
}

func decodeClientBombThrow(dec *serial.Decoder) (Message, error) {
	angle, err := dec.ReadFloat()
	if err != nil {
		return nil, err
	}
	return &ClientBombThrow{Angle: angle}, nil
}

type ClientDisconnect struct{}

func (ClientDisconnect) Tag() Tag                     { return ClientDisconnectTag }
func (ClientDisconnect) Encode(*serial.Encoder) error { return nil }

type ClientInfoRequest struct{}

func (ClientInfoRequest) Tag() Tag                     { return ClientInfoRequestTag }
func (ClientInfoRequest) Encode(*serial.Encoder) error { return nil }

// ---- сервер -> клиент ----

// ServerConnectAcknowledgment ответ на запрос подключения
type ServerConnectAcknowledgment struct {
	Accepted bool
}

func (m *ServerConnectAcknowledgment) Tag() Tag { return ServerConnectAcknowledgmentTag }
func (m *ServerConnectAcknowledgment) Encode(enc *serial.Encoder) error {
	enc.WriteBoolean(m.Accepted)
	return nil
}

func decodeServerConnectAcknowledgment(dec *serial.Decoder) (Message, error) {
	accepted, err := dec.ReadBoolean()
	if err != nil {
		return nil, err
	}
	return &ServerConnectAcknowledgment{Accepted: accepted}, nil
}

// ServerWorldHead заголовок мира: ID игрока, размер данных, сжатие.
// За ним следуют ServerWorldData с кусками общей длиной Size.
type ServerWorldHead struct {
	PlayerID   uint32
	Size       uint32
	Compressed bool
}

func (m *ServerWorldHead) Tag() Tag { return ServerWorldHeadTag }
func (m *ServerWorldHead) Encode(enc *serial.Encoder) error {
	enc.WriteUint32(m.PlayerID)
	enc.WriteUint32(m.Size)
	enc.WriteBoolean(m.Compressed)
	return nil
}

func decodeServerWorldHead(dec *serial.Decoder) (Message, error) {
	m := &ServerWorldHead{}
	var err error
	if m.PlayerID, err = dec.ReadUint32(); err != nil {
		return nil, err
	}
	if m.Size, err = dec.ReadUint32(); err != nil {
		return nil, err
	}
	if m.Compressed, err = dec.ReadBoolean(); err != nil {
		return nil, err
	}
	return m, nil
}

// ServerWorldData очередной кусок сериализованного мира
type ServerWorldData struct {
	Data []byte
}

func (m *ServerWorldData) Tag() Tag { return ServerWorldDataTag }
func (m *ServerWorldData) Encode(enc *serial.Encoder) error {
	enc.WriteBytes(m.Data)
	return nil
}

func decodeServerWorldData(dec *serial.Decoder) (Message, error) {
	data, err := dec.ReadFully(dec.Remaining())
	if err != nil {
		return nil, err
	}
	return &ServerWorldData{Data: data}, nil
}

// ServerEntityUpdate позиция и скорость сущности (ненадёжное)
type ServerEntityUpdate struct {
	ID       uint32
	Position vec.Vec2Float
	Velocity vec.Vec2Float
}

// NewEntityUpdate снимает текущее состояние сущности
func NewEntityUpdate(e world.Entity) *ServerEntityUpdate {
	b := e.Body()
	return &ServerEntityUpdate{ID: e.ID(), Position: b.Position, Velocity: b.Velocity}
}

func (m *ServerEntityUpdate) Tag() Tag { return ServerEntityUpdateTag }
func (m *ServerEntityUpdate) Encode(enc *serial.Encoder) error {
	enc.WriteUint32(m.ID)
	enc.WriteFloat(m.Position.X)
	enc.WriteFloat(m.Position.Y)
	enc.WriteFloat(m.Velocity.X)
	enc.WriteFloat(m.Velocity.Y)
	return nil
}

func decodeServerEntityUpdate(dec *serial.Decoder) (Message, error) {
	m := &ServerEntityUpdate{}
	var err error
	if m.ID, err = dec.ReadUint32(); err != nil {
		return nil, err
	}
	for _, f := range []*float32{&m.Position.X, &m.Position.Y, &m.Velocity.X, &m.Velocity.Y} {
		if *f, err = dec.ReadFloat(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ServerAddEntity сущность целиком, Transportable-кадром
type ServerAddEntity struct {
	Entity world.Entity
}

func (m *ServerAddEntity) Tag() Tag                         { return ServerAddEntityTag }
func (m *ServerAddEntity) Encode(enc *serial.Encoder) error { return enc.WriteObject(m.Entity) }

func decodeServerAddEntity(dec *serial.Decoder) (Message, error) {
	e, err := readEntity(dec)
	if err != nil {
		return nil, err
	}
	return &ServerAddEntity{Entity: e}, nil
}

// ServerRemoveEntity удалённая сущность, Transportable-кадром
type ServerRemoveEntity struct {
	Entity world.Entity
}

func (m *ServerRemoveEntity) Tag() Tag                         { return ServerRemoveEntityTag }
func (m *ServerRemoveEntity) Encode(enc *serial.Encoder) error { return enc.WriteObject(m.Entity) }

func decodeServerRemoveEntity(dec *serial.Decoder) (Message, error) {
	e, err := readEntity(dec)
	if err != nil {
		return nil, err
	}
	return &ServerRemoveEntity{Entity: e}, nil
}

// ServerClientDisconnect сервер отключает клиента с причиной
type ServerClientDisconnect struct {
	Reason string
}

func (m *ServerClientDisconnect) Tag() Tag                         { return ServerClientDisconnectTag }
func (m *ServerClientDisconnect) Encode(enc *serial.Encoder) error { return enc.WriteString(m.Reason) }

func decodeServerClientDisconnect(dec *serial.Decoder) (Message, error) {
	reason, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	return &ServerClientDisconnect{Reason: reason}, nil
}

// ServerRemoveBlock блок удалён из слоя
type ServerRemoveBlock struct {
	Layer world.Layer
	X, Y  int32
}

func (m *ServerRemoveBlock) Tag() Tag { return ServerRemoveBlockTag }
func (m *ServerRemoveBlock) Encode(enc *serial.Encoder) error {
	enc.WriteUint8(uint8(m.Layer))
	enc.WriteInt(m.X)
	enc.WriteInt(m.Y)
	return nil
}

func decodeServerRemoveBlock(dec *serial.Decoder) (Message, error) {
	layer, err := readLayer(dec)
	if err != nil {
		return nil, err
	}
	x, y, err := readCell(dec)
	if err != nil {
		return nil, err
	}
	return &ServerRemoveBlock{Layer: layer, X: x, Y: y}, nil
}

// ServerPlaceBlock блок установлен в слой
type ServerPlaceBlock struct {
	Layer world.Layer
	X, Y  int32
	Block world.Block
}

func (m *ServerPlaceBlock) Tag() Tag { return ServerPlaceBlockTag }
func (m *ServerPlaceBlock) Encode(enc *serial.Encoder) error {
	enc.WriteUint8(uint8(m.Layer))
	enc.WriteInt(m.X)
	enc.WriteInt(m.Y)
	return enc.WriteObject(m.Block)
}

func decodeServerPlaceBlock(dec *serial.Decoder) (Message, error) {
	layer, err := readLayer(dec)
	if err != nil {
		return nil, err
	}
	x, y, err := readCell(dec)
	if err != nil {
		return nil, err
	}
	b, err := serial.ReadAs[world.Block](dec)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("пустой блок: %w", ErrMalformedMessage)
	}
	return &ServerPlaceBlock{Layer: layer, X: x, Y: y, Block: b}, nil
}

// ServerInfo ответ на CLIENT_INFO_REQUEST
type ServerInfo struct {
	Players  uint16
	Capacity uint16
	Name     string
}

func (m *ServerInfo) Tag() Tag { return ServerInfoTag }
func (m *ServerInfo) Encode(enc *serial.Encoder) error {
	enc.WriteShort(m.Players)
	enc.WriteShort(m.Capacity)
	return enc.WriteShortString(m.Name)
}

func decodeServerInfo(dec *serial.Decoder) (Message, error) {
	m := &ServerInfo{}
	var err error
	if m.Players, err = dec.ReadShort(); err != nil {
		return nil, err
	}
	if m.Capacity, err = dec.ReadShort(); err != nil {
		return nil, err
	}
	if m.Name, err = dec.ReadShortString(); err != nil {
		return nil, err
	}
	return m, nil
}

func readCell(dec *serial.Decoder) (int32, int32, error) {
	x, err := dec.ReadInt()
	if err != nil {
		return 0, 0, err
	}
	y, err := dec.ReadInt()
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func readLayer(dec *serial.Decoder) (world.Layer, error) {
	v, err := dec.ReadUint8()
	if err != nil {
		return 0, err
	}
	layer := world.Layer(v)
	if !layer.Valid() {
		return 0, fmt.Errorf("слой %d: %w", v, ErrMalformedMessage)
	}
	return layer, nil
}

func readEntity(dec *serial.Decoder) (world.Entity, error) {
	e, err := serial.ReadAs[world.Entity](dec)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("пустая сущность: %w", ErrMalformedMessage)
	}
	return e, nil
}

func empty[T Message](msg T) func(*serial.Decoder) (Message, error) {
	return func(*serial.Decoder) (Message, error) { return msg, nil }
}
