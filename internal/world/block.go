package world

import (
	"github.com/annel0/sandbox-game/internal/serial"
)

// Layer слой сетки блоков
type Layer uint8

const (
	Foreground Layer = 0
	Background Layer = 1
)

func (l Layer) String() string {
	switch l {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Valid проверяет, что слой существует
func (l Layer) Valid() bool {
	return l == Foreground || l == Background
}

// Block неизменяемый тип блока. Блоки без данных передаются как пустая нагрузка.
type Block interface {
	serial.Transportable
	Name() string
	Solid() bool
}

// BreakHook реализуют блоки, реагирующие на разрушение
type BreakHook interface {
	OnBreak(w *World, layer Layer, x, y int)
}

// PlaceHook реализуют блоки, реагирующие на установку
type PlaceHook interface {
	OnPlace(w *World, layer Layer, x, y int)
}

// DirtBlock земля
type DirtBlock struct{}

func (DirtBlock) TypeID() uint16                 { return TypeDirtBlock }
func (DirtBlock) Name() string                   { return "dirt" }
func (DirtBlock) Solid() bool                    { return true }
func (DirtBlock) Serialize(*serial.Encoder) error { return nil }

// GrassBlock трава: при разрушении проигрывает звук
type GrassBlock struct{}

func (GrassBlock) TypeID() uint16                 { return TypeGrassBlock }
func (GrassBlock) Name() string                   { return "grass" }
func (GrassBlock) Solid() bool                    { return true }
func (GrassBlock) Serialize(*serial.Encoder) error { return nil }

func (GrassBlock) OnBreak(w *World, _ Layer, x, y int) {
	pitch := 0.75 + w.random().Float32()*0.5
	w.Audio().PlaySound(SoundGrass, float32(x)+0.5, float32(y)+0.5, 0, 0, 1, pitch)
}

// RedBlock декоративный блок
type RedBlock struct{}

func (RedBlock) TypeID() uint16                 { return TypeRedBlock }
func (RedBlock) Name() string                   { return "red" }
func (RedBlock) Solid() bool                    { return true }
func (RedBlock) Serialize(*serial.Encoder) error { return nil }

func (RedBlock) OnPlace(w *World, _ Layer, x, y int) {
	w.Audio().PlaySound(SoundPlace, float32(x)+0.5, float32(y)+0.5, 0, 0, 0.8, 1)
}
