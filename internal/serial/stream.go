package serial

import (
	"fmt"

	"github.com/annel0/sandbox-game/internal/codec"
)

// Encoder codec.Writer с доступом к реестру для вложенных объектов.
type Encoder struct {
	*codec.Writer
	registry *Registry
}

func NewEncoder(registry *Registry, capacity int) *Encoder {
	return &Encoder{Writer: codec.NewWriter(capacity), registry: registry}
}

// WriteObject пишет кадр typeId u16 + length u32 + payload. nil пишется
// как одиночный NullType без длины.
func (e *Encoder) WriteObject(obj Transportable) error {
	if obj == nil {
		e.WriteShort(NullType)
		return nil
	}

	typeID := obj.TypeID()
	if _, ok := e.registry.lookup(typeID); !ok {
		return fmt.Errorf("%T (id %d): %w", obj, typeID, ErrTypeNotRegistered)
	}

	e.WriteShort(typeID)
	lengthAt := e.Reserve(codec.IntSize)
	start := e.Len()
	if err := obj.Serialize(e); err != nil {
		return fmt.Errorf("сериализация %T: %w", obj, err)
	}
	codec.PutInt(e.Bytes(), lengthAt, uint32(e.Len()-start))
	return nil
}

// Decoder codec.Reader с доступом к реестру для вложенных объектов.
type Decoder struct {
	*codec.Reader
	registry *Registry
}

func NewDecoder(registry *Registry, data []byte) *Decoder {
	return &Decoder{Reader: codec.NewReader(data), registry: registry}
}

// Registry возвращает реестр, которым пользуется декодер.
func (d *Decoder) Registry() *Registry { return d.registry }

// ReadObject читает один кадр. Для пустого слота возвращает (nil, nil).
// Фабрика работает на под-декодере и обязана потребить ровно length байт.
func (d *Decoder) ReadObject() (Transportable, error) {
	typeID, err := d.ReadShort()
	if err != nil {
		return nil, err
	}
	if typeID == NullType {
		return nil, nil
	}

	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	entry, ok := d.registry.lookup(typeID)
	if !ok {
		return nil, fmt.Errorf("id %d: %w", typeID, ErrTypeNotRegistered)
	}
	if uint64(length) > uint64(d.Remaining()) {
		return nil, fmt.Errorf("%s: %w", entry.name, codec.ErrTruncatedMessage)
	}
	payload, err := d.Slice(int(length))
	if err != nil {
		return nil, err
	}

	sub := NewDecoder(d.registry, payload)
	obj, err := entry.factory(sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.name, err)
	}
	if sub.Remaining() != 0 {
		return nil, fmt.Errorf("%s: осталось %d байт: %w", entry.name, sub.Remaining(), ErrObjectLength)
	}
	return obj, nil
}

// ReadAs читает объект и приводит его к ожидаемому типу. Пустой слот
// возвращает нулевое значение T без ошибки.
func ReadAs[T any](d *Decoder) (T, error) {
	var zero T
	obj, err := d.ReadObject()
	if err != nil || obj == nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("получен %T, ожидался %T: %w", obj, (*T)(nil), ErrUnexpectedType)
	}
	return typed, nil
}
