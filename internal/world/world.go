package world

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
)

var (
	ErrOutOfBounds     = errors.New("world: out of bounds")
	ErrDuplicateEntity = errors.New("world: entity id already live")
	ErrRetiredEntity   = errors.New("world: entity id was removed earlier")
	ErrEntityNotFound  = errors.New("world: entity not found")
)

// Observer получает уведомления синхронно, в момент мутации мира.
// На сервере реализация сериализует объект и ставит рассылку в очередь.
type Observer interface {
	OnEntityAdd(e Entity)
	OnEntityRemove(e Entity)
	OnEntityUpdate(e Entity)
	// OnBlockChange b == nil означает удаление блока
	OnBlockChange(layer Layer, x, y int, b Block)
}

// World состояние симуляции: две сетки блоков и набор сущностей.
// Не потокобезопасен: владеет им ровно одна горутина симуляции.
type World struct {
	foreground *BlockGrid
	background *BlockGrid
	gravity    float32

	entities []Entity
	byID     map[uint32]Entity
	retired  map[uint32]struct{}
	nextID   uint32

	observer Observer
	audio    AudioSystem
	rng      *rand.Rand
}

// New создаёт пустой мир фиксированного размера
func New(width, height int, gravity float32) *World {
	return newWorld(NewBlockGrid(width, height), NewBlockGrid(width, height), gravity)
}

func newWorld(fg, bg *BlockGrid, gravity float32) *World {
	return &World{
		foreground: fg,
		background: bg,
		gravity:    gravity,
		byID:       make(map[uint32]Entity),
		retired:    make(map[uint32]struct{}),
		nextID:     1,
		audio:      NopAudio{},
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}
}

func (w *World) Width() int             { return w.foreground.Width() }
func (w *World) Height() int            { return w.foreground.Height() }
func (w *World) Gravity() float32       { return w.gravity }
func (w *World) Foreground() *BlockGrid { return w.foreground }
func (w *World) Background() *BlockGrid { return w.background }

// Grid возвращает сетку слоя
func (w *World) Grid(layer Layer) (*BlockGrid, error) {
	switch layer {
	case Foreground:
		return w.foreground, nil
	case Background:
		return w.background, nil
	default:
		return nil, fmt.Errorf("слой %d: %w", layer, ErrOutOfBounds)
	}
}

// SetObserver подключает получателя уведомлений (nil отключает)
func (w *World) SetObserver(o Observer) { w.observer = o }

// SetAudio подключает звуковую систему (nil заменяется на NopAudio)
func (w *World) SetAudio(a AudioSystem) {
	if a == nil {
		a = NopAudio{}
	}
	w.audio = a
}

func (w *World) Audio() AudioSystem { return w.audio }

func (w *World) random() *rand.Rand { return w.rng }

// NextEntityID выдаёт новый ID; ID монотонно растут и не переиспользуются
func (w *World) NextEntityID() uint32 {
	id := w.nextID
	w.nextID++
	return id
}

// Add добавляет сущность и уведомляет наблюдателя
func (w *World) Add(e Entity) error {
	id := e.ID()
	if _, live := w.byID[id]; live {
		return fmt.Errorf("id %d: %w", id, ErrDuplicateEntity)
	}
	if _, dead := w.retired[id]; dead {
		return fmt.Errorf("id %d: %w", id, ErrRetiredEntity)
	}

	w.entities = append(w.entities, e)
	w.byID[id] = e
	if id >= w.nextID {
		w.nextID = id + 1
	}

	if w.observer != nil {
		w.observer.OnEntityAdd(e)
	}
	return nil
}

// Remove удаляет сущность; её ID больше никогда не будет принят
func (w *World) Remove(id uint32) (Entity, error) {
	e, ok := w.byID[id]
	if !ok {
		return nil, fmt.Errorf("id %d: %w", id, ErrEntityNotFound)
	}
	for i, other := range w.entities {
		if other.ID() == id {
			w.entities = append(w.entities[:i], w.entities[i+1:]...)
			break
		}
	}
	delete(w.byID, id)
	w.retired[id] = struct{}{}

	if w.observer != nil {
		w.observer.OnEntityRemove(e)
	}
	return e, nil
}

// Entity ищет живую сущность по ID
func (w *World) Entity(id uint32) (Entity, bool) {
	e, ok := w.byID[id]
	return e, ok
}

func (w *World) EntityCount() int { return len(w.entities) }

// ForEachEntity обходит сущности в порядке добавления
func (w *World) ForEachEntity(fn func(Entity)) {
	for _, e := range w.entities {
		fn(e)
	}
}

// SetEntityState применяет позицию и скорость из обновления сервера.
// Возвращает false для неизвестного ID.
func (w *World) SetEntityState(id uint32, pos, vel vec.Vec2Float) bool {
	e, ok := w.byID[id]
	if !ok {
		return false
	}
	b := e.Body()
	b.Position = pos
	b.Velocity = vel
	return true
}

// SetBlock ставит блок без хуков и уведомлений (генерация, реплика клиента)
func (w *World) SetBlock(layer Layer, x, y int, b Block) error {
	grid, err := w.Grid(layer)
	if err != nil {
		return err
	}
	_, err = grid.Set(x, y, b)
	return err
}

// BreakBlock удаляет блок, вызывает его BreakHook и уведомляет наблюдателя.
// Пустая ячейка возвращает (nil, nil).
func (w *World) BreakBlock(layer Layer, x, y int) (Block, error) {
	grid, err := w.Grid(layer)
	if err != nil {
		return nil, err
	}
	b, err := grid.Remove(x, y)
	if err != nil || b == nil {
		return nil, err
	}
	if hook, ok := b.(BreakHook); ok {
		hook.OnBreak(w, layer, x, y)
	}
	if w.observer != nil {
		w.observer.OnBlockChange(layer, x, y, nil)
	}
	return b, nil
}

// PlaceBlock ставит блок в пустую ячейку. false если ячейка занята.
func (w *World) PlaceBlock(layer Layer, x, y int, b Block) (bool, error) {
	grid, err := w.Grid(layer)
	if err != nil {
		return false, err
	}
	if !grid.InBounds(x, y) {
		return false, fmt.Errorf("(%d,%d): %w", x, y, ErrOutOfBounds)
	}
	if grid.Get(x, y) != nil {
		return false, nil
	}
	if _, err := grid.Set(x, y, b); err != nil {
		return false, err
	}
	if hook, ok := b.(PlaceHook); ok {
		hook.OnPlace(w, layer, x, y)
	}
	if w.observer != nil {
		w.observer.OnBlockChange(layer, x, y, b)
	}
	return true, nil
}

func (w *World) TypeID() uint16 { return TypeWorld }

// Serialize: gravity f32, nextID u32, foreground, background, count i32, сущности
func (w *World) Serialize(enc *serial.Encoder) error {
	enc.WriteFloat(w.gravity)
	enc.WriteUint32(w.nextID)
	if err := enc.WriteObject(w.foreground); err != nil {
		return err
	}
	if err := enc.WriteObject(w.background); err != nil {
		return err
	}
	enc.WriteInt(int32(len(w.entities)))
	for _, e := range w.entities {
		if err := enc.WriteObject(e); err != nil {
			return err
		}
	}
	return nil
}

func readWorld(dec *serial.Decoder) (serial.Transportable, error) {
	gravity, err := dec.ReadFloat()
	if err != nil {
		return nil, err
	}
	nextID, err := dec.ReadUint32()
	if err != nil {
		return nil, err
	}
	fg, err := serial.ReadAs[*BlockGrid](dec)
	if err != nil {
		return nil, err
	}
	bg, err := serial.ReadAs[*BlockGrid](dec)
	if err != nil {
		return nil, err
	}
	if fg == nil || bg == nil {
		return nil, errors.New("мир без сетки блоков")
	}
	if fg.Width() != bg.Width() || fg.Height() != bg.Height() {
		return nil, fmt.Errorf("размеры слоёв не совпадают: %dx%d и %dx%d",
			fg.Width(), fg.Height(), bg.Width(), bg.Height())
	}

	w := newWorld(fg, bg, gravity)
	count, err := dec.ReadInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("отрицательное число сущностей %d", count)
	}
	for i := int32(0); i < count; i++ {
		e, err := serial.ReadAs[Entity](dec)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, errors.New("пустая сущность в мире")
		}
		if err := w.Add(e); err != nil {
			return nil, err
		}
	}
	if nextID > w.nextID {
		w.nextID = nextID
	}
	return w, nil
}
