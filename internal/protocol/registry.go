package protocol

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/sandbox-game/internal/serial"
)

var (
	ErrUnknownMessageKind = errors.New("protocol: unknown message kind")
	ErrMalformedMessage   = errors.New("protocol: malformed message")
	ErrDuplicateTag       = errors.New("protocol: tag already registered")
	ErrRegistryFrozen     = errors.New("protocol: registry is frozen")
)

// DecodeFunc читает полезную нагрузку сообщения
type DecodeFunc func(dec *serial.Decoder) (Message, error)

// Kind описание вида сообщения
type Kind struct {
	Name     string
	Reliable bool
	Decode   DecodeFunc
}

// Handler обрабатывает декодированное сообщение
type Handler func(msg Message) error

// Registry таблица тег -> вид сообщения для одного направления приёма.
// После Freeze только читается и может разделяться без блокировок.
type Registry struct {
	direction Direction
	kinds     map[Tag]Kind
	frozen    bool
}

// NewRegistry создаёт пустой реестр для сообщений, принимаемых в направлении dir
func NewRegistry(dir Direction) *Registry {
	return &Registry{direction: dir, kinds: make(map[Tag]Kind)}
}

// Register добавляет вид сообщения
func (r *Registry) Register(tag Tag, kind Kind) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if kind.Decode == nil {
		return fmt.Errorf("protocol: %s без декодера", kind.Name)
	}
	if prev, ok := r.kinds[tag]; ok {
		return fmt.Errorf("%w: %s занят %s", ErrDuplicateTag, tag, prev.Name)
	}
	r.kinds[tag] = kind
	return nil
}

func (r *Registry) mustRegister(tag Tag, kind Kind) {
	if err := r.Register(tag, kind); err != nil {
		panic(err)
	}
}

// Freeze запрещает дальнейшую регистрацию
func (r *Registry) Freeze() { r.frozen = true }

func (r *Registry) Direction() Direction { return r.direction }

// Lookup возвращает вид сообщения по тегу
func (r *Registry) Lookup(tag Tag) (Kind, bool) {
	k, ok := r.kinds[tag]
	return k, ok
}

// Reliable сообщает, требует ли тег подтверждения.
// Неизвестный тег считается ненадёжным.
func (r *Registry) Reliable(tag Tag) bool {
	return r.kinds[tag].Reliable
}

// Name имя вида для логов
func (r *Registry) Name(tag Tag) string {
	if k, ok := r.kinds[tag]; ok {
		return k.Name
	}
	return "UNKNOWN(" + tag.String() + ")"
}

// Tags все зарегистрированные теги по возрастанию
func (r *Registry) Tags() []Tag {
	tags := make([]Tag, 0, len(r.kinds))
	for t := range r.kinds {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Decode декодирует полезную нагрузку. Полезная нагрузка должна быть
// прочитана целиком, хвост считается повреждением.
func (r *Registry) Decode(tag Tag, dec *serial.Decoder) (Message, error) {
	kind, ok := r.kinds[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageKind, tag)
	}
	msg, err := kind.Decode(dec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind.Name, err)
	}
	if n := dec.Remaining(); n > 0 {
		return nil, fmt.Errorf("%s: лишние %d байт: %w", kind.Name, n, ErrMalformedMessage)
	}
	return msg, nil
}

// Dispatch декодирует сообщение и передаёт его обработчику
func (r *Registry) Dispatch(tag Tag, dec *serial.Decoder, handler Handler) error {
	msg, err := r.Decode(tag, dec)
	if err != nil {
		return err
	}
	return handler(msg)
}

// Encode сериализует полезную нагрузку сообщения (без заголовка)
func Encode(types *serial.Registry, msg Message) ([]byte, error) {
	enc := serial.NewEncoder(types, 64)
	if err := msg.Encode(enc); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Tag(), err)
	}
	return enc.Bytes(), nil
}

func registerShared(r *Registry) {
	r.mustRegister(ConsoleMessageTag, Kind{Name: "CONSOLE_MESSAGE", Reliable: true, Decode: decodeConsoleMessage})
	r.mustRegister(AcknowledgmentTag, Kind{Name: "ACKNOWLEDGMENT", Decode: decodeAcknowledgment})
	r.mustRegister(PingTag, Kind{Name: "PING", Decode: empty(Ping{})})
}

// ServerBound реестр сообщений, принимаемых сервером
func ServerBound() *Registry {
	r := NewRegistry(ToServer)
	registerShared(r)
	r.mustRegister(ClientConnectRequestTag, Kind{Name: "CLIENT_CONNECT_REQUEST", Reliable: true, Decode: empty(ClientConnectRequest{})})
	r.mustRegister(ClientInfoTag, Kind{Name: "CLIENT_INFO", Reliable: true, Decode: decodeClientInfo})
	r.mustRegister(ClientPlayerActionTag, Kind{Name: "CLIENT_PLAYER_ACTION", Reliable: true, Decode: decodeClientPlayerAction})
	r.mustRegister(ClientBreakBlockTag, Kind{Name: "CLIENT_BREAK_BLOCK", Reliable: true, Decode: decodeClientBreakBlock})
	r.mustRegister(ClientPlaceBlockTag, Kind{Name: "CLIENT_PLACE_BLOCK", Reliable: true, Decode: decodeClientPlaceBlock})
	r.mustRegister(ClientBombThrowTag, Kind{Name: "CLIENT_BOMB_THROW", Reliable: true, Decode: decodeClientBombThrow})
	r.mustRegister(ClientDisconnectTag, Kind{Name: "CLIENT_DISCONNECT", Reliable: true, Decode: empty(ClientDisconnect{})})
	r.mustRegister(ClientInfoRequestTag, Kind{Name: "CLIENT_INFO_REQUEST", Decode: empty(ClientInfoRequest{})})
	r.Freeze()
	return r
}

// ClientBound реестр сообщений, принимаемых клиентом
func ClientBound() *Registry {
	r := NewRegistry(ToClient)
	registerShared(r)
	r.mustRegister(ServerConnectAcknowledgmentTag, Kind{Name: "SERVER_CONNECT_ACKNOWLEDGMENT", Reliable: true, Decode: decodeServerConnectAcknowledgment})
	r.mustRegister(ServerWorldHeadTag, Kind{Name: "SERVER_WORLD_HEAD", Reliable: true, Decode: decodeServerWorldHead})
	r.mustRegister(ServerWorldDataTag, Kind{Name: "SERVER_WORLD_DATA", Reliable: true, Decode: decodeServerWorldData})
	r.mustRegister(ServerEntityUpdateTag, Kind{Name: "SERVER_ENTITY_UPDATE", Decode: decodeServerEntityUpdate})
	r.mustRegister(ServerAddEntityTag, Kind{Name: "SERVER_ADD_ENTITY", Reliable: true, Decode: decodeServerAddEntity})
	r.mustRegister(ServerRemoveEntityTag, Kind{Name: "SERVER_REMOVE_ENTITY", Reliable: true, Decode: decodeServerRemoveEntity})
	r.mustRegister(ServerClientDisconnectTag, Kind{Name: "SERVER_CLIENT_DISCONNECT", Reliable: true, Decode: decodeServerClientDisconnect})
	r.mustRegister(ServerRemoveBlockTag, Kind{Name: "SERVER_REMOVE_BLOCK", Reliable: true, Decode: decodeServerRemoveBlock})
	r.mustRegister(ServerPlaceBlockTag, Kind{Name: "SERVER_PLACE_BLOCK", Reliable: true, Decode: decodeServerPlaceBlock})
	r.mustRegister(ServerInfoTag, Kind{Name: "SERVER_INFO", Decode: decodeServerInfo})
	r.Freeze()
	return r
}
