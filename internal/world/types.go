package world

import (
	"github.com/annel0/sandbox-game/internal/serial"
)

// Идентификаторы Transportable-типов. 0 зарезервирован под пустой слот.
const (
	TypeWorld uint16 = iota + 1
	TypeBlockGrid
	TypeInventory
	TypeBlockItem
	TypeDirtBlock
	TypeGrassBlock
	TypeRedBlock
	TypePlayerEntity
	TypeItemEntity
	TypeBombEntity
)

func readDirt(*serial.Decoder) (serial.Transportable, error)  { return DirtBlock{}, nil }
func readGrass(*serial.Decoder) (serial.Transportable, error) { return GrassBlock{}, nil }
func readRed(*serial.Decoder) (serial.Transportable, error)   { return RedBlock{}, nil }

// RegisterTypes регистрирует все типы мира в реестре
func RegisterTypes(r *serial.Registry) error {
	types := []struct {
		id      uint16
		name    string
		factory serial.Factory
	}{
		{TypeWorld, "World", readWorld},
		{TypeBlockGrid, "BlockGrid", readBlockGrid},
		{TypeInventory, "Inventory", readInventory},
		{TypeBlockItem, "BlockItem", readBlockItem},
		{TypeDirtBlock, "DirtBlock", readDirt},
		{TypeGrassBlock, "GrassBlock", readGrass},
		{TypeRedBlock, "RedBlock", readRed},
		{TypePlayerEntity, "PlayerEntity", readPlayerEntity},
		{TypeItemEntity, "ItemEntity", readItemEntity},
		{TypeBombEntity, "BombEntity", readBombEntity},
	}
	for _, t := range types {
		if err := r.Register(t.id, t.name, t.factory); err != nil {
			return err
		}
	}
	return nil
}

// NewTypeRegistry создаёт замороженный реестр со всеми типами мира
func NewTypeRegistry() *serial.Registry {
	r := serial.NewRegistry()
	if err := RegisterTypes(r); err != nil {
		panic(err)
	}
	r.Freeze()
	return r
}
