// Package serial реализует реестр Transportable-типов: каждый конкретный тип
// мира (блок, предмет, сущность, сетка, инвентарь, мир) регистрируется один раз
// под стабильным typeId и сериализуется в кадр typeId + длина + полезная нагрузка.
package serial

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// NullType зарезервирован под пустой слот и никогда не назначается типу.
const NullType uint16 = 0

var (
	ErrTypeNotRegistered = errors.New("serial: type not registered")
	ErrDuplicateType     = errors.New("serial: type already registered")
	ErrReservedType      = errors.New("serial: type id 0 is reserved")
	ErrRegistryFrozen    = errors.New("serial: registry is frozen")
	ErrObjectLength      = errors.New("serial: object length mismatch")
	ErrUnexpectedType    = errors.New("serial: unexpected object type")
)

// Transportable объект, умеющий записать свою полезную нагрузку.
type Transportable interface {
	TypeID() uint16
	Serialize(enc *Encoder) error
}

// Factory восстанавливает объект из полезной нагрузки. Декодер ограничен
// ровно полезной нагрузкой объекта.
type Factory func(dec *Decoder) (Transportable, error)

type typeEntry struct {
	name    string
	factory Factory
}

// Registry таблица typeId -> фабрика. После Freeze только читается
// и безопасна для использования из нескольких горутин.
type Registry struct {
	mu     sync.RWMutex
	types  map[uint16]typeEntry
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[uint16]typeEntry)}
}

// Register регистрирует фабрику под typeId.
func (r *Registry) Register(typeID uint16, name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.frozen:
		return ErrRegistryFrozen
	case typeID == NullType:
		return fmt.Errorf("%s: %w", name, ErrReservedType)
	case factory == nil:
		return fmt.Errorf("serial: nil factory for %s", name)
	}
	if existing, ok := r.types[typeID]; ok {
		return fmt.Errorf("%s (id %d, занят %s): %w", name, typeID, existing.name, ErrDuplicateType)
	}
	r.types[typeID] = typeEntry{name: name, factory: factory}
	return nil
}

// MustRegister паникует при ошибке регистрации; для таблиц, собираемых при старте.
func (r *Registry) MustRegister(typeID uint16, name string, factory Factory) {
	if err := r.Register(typeID, name, factory); err != nil {
		panic(err)
	}
}

// Freeze запрещает дальнейшую регистрацию.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) lookup(typeID uint16) (typeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.types[typeID]
	return e, ok
}

// Name возвращает имя зарегистрированного типа.
func (r *Registry) Name(typeID uint16) (string, bool) {
	e, ok := r.lookup(typeID)
	return e.name, ok
}

// IDs возвращает отсортированный список зарегистрированных typeId.
func (r *Registry) IDs() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint16, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Serialize кодирует объект (или пустой слот для nil) в отдельный буфер.
func (r *Registry) Serialize(obj Transportable) ([]byte, error) {
	enc := NewEncoder(r, 64)
	if err := enc.WriteObject(obj); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// Deserialize читает ровно один объект; лишние байты в хвосте считаются ошибкой.
func (r *Registry) Deserialize(data []byte) (Transportable, error) {
	dec := NewDecoder(r, data)
	obj, err := dec.ReadObject()
	if err != nil {
		return nil, err
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("%d лишних байт: %w", dec.Remaining(), ErrObjectLength)
	}
	return obj, nil
}
