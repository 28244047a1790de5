package world

import (
	"errors"

	"github.com/annel0/sandbox-game/internal/serial"
)

// Item предмет, лежащий в инвентаре или в ItemEntity
type Item interface {
	serial.Transportable
	Name() string
}

// BlockItem блок в виде предмета
type BlockItem struct {
	Block Block
}

func (i *BlockItem) TypeID() uint16 { return TypeBlockItem }

func (i *BlockItem) Name() string {
	if i.Block == nil {
		return "empty"
	}
	return i.Block.Name()
}

func (i *BlockItem) Serialize(enc *serial.Encoder) error {
	return enc.WriteObject(i.Block)
}

func readBlockItem(dec *serial.Decoder) (serial.Transportable, error) {
	b, err := serial.ReadAs[Block](dec)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("BlockItem без блока")
	}
	return &BlockItem{Block: b}, nil
}

// Inventory фиксированное число слотов, nil означает пустой слот
type Inventory struct {
	slots []Item
}

func NewInventory(size int) *Inventory {
	return &Inventory{slots: make([]Item, size)}
}

func (inv *Inventory) Size() int { return len(inv.slots) }

// Get возвращает предмет слота или nil
func (inv *Inventory) Get(slot int) Item {
	if slot < 0 || slot >= len(inv.slots) {
		return nil
	}
	return inv.slots[slot]
}

// Put кладёт предмет в слот и возвращает вытесненный
func (inv *Inventory) Put(slot int, item Item) (Item, error) {
	if slot < 0 || slot >= len(inv.slots) {
		return nil, ErrOutOfBounds
	}
	prev := inv.slots[slot]
	inv.slots[slot] = item
	return prev, nil
}

// Take забирает предмет из слота
func (inv *Inventory) Take(slot int) Item {
	if slot < 0 || slot >= len(inv.slots) {
		return nil
	}
	item := inv.slots[slot]
	inv.slots[slot] = nil
	return item
}

// Add кладёт предмет в первый свободный слот
func (inv *Inventory) Add(item Item) (int, bool) {
	for i, s := range inv.slots {
		if s == nil {
			inv.slots[i] = item
			return i, true
		}
	}
	return -1, false
}

func (inv *Inventory) TypeID() uint16 { return TypeInventory }

func (inv *Inventory) Serialize(enc *serial.Encoder) error {
	enc.WriteInt(int32(len(inv.slots)))
	for _, item := range inv.slots {
		if err := enc.WriteObject(item); err != nil {
			return err
		}
	}
	return nil
}

const maxInventorySlots = 256

func readInventory(dec *serial.Decoder) (serial.Transportable, error) {
	n, err := dec.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxInventorySlots {
		return nil, errors.New("недопустимый размер инвентаря")
	}
	inv := NewInventory(int(n))
	for i := range inv.slots {
		item, err := serial.ReadAs[Item](dec)
		if err != nil {
			return nil, err
		}
		inv.slots[i] = item
	}
	return inv, nil
}
