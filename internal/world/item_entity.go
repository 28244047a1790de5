package world

import (
	"errors"

	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
)

// задержка, после которой выпавший предмет можно подобрать
const itemPickupDelay = 0.5

// ItemEntity предмет, лежащий в мире
type ItemEntity struct {
	Motion
	Item Item

	age      float32
	pickedUp bool
}

func NewItemEntity(id uint32, item Item, pos vec.Vec2Float) *ItemEntity {
	return &ItemEntity{Motion: NewMotion(id, pos), Item: item}
}

func (e *ItemEntity) TypeID() uint16      { return TypeItemEntity }
func (e *ItemEntity) Size() vec.Vec2Float { return vec.Vec2Float{X: 0.5, Y: 0.5} }
func (e *ItemEntity) ShouldDelete() bool  { return e.pickedUp }

func (e *ItemEntity) Update(_ *World, dt float32) {
	e.age += dt
}

// OnEntityCollision игрок подбирает предмет в свободный слот
func (e *ItemEntity) OnEntityCollision(w *World, other Entity) {
	player, ok := other.(*PlayerEntity)
	if !ok || e.pickedUp || e.age < itemPickupDelay {
		return
	}
	if _, ok := player.Inventory.Add(e.Item); ok {
		e.pickedUp = true
		w.Audio().PlaySound(SoundPickup, e.Position.X, e.Position.Y, 0, 0, 1, 1)
	}
}

func (e *ItemEntity) Serialize(enc *serial.Encoder) error {
	e.writeMotion(enc)
	return enc.WriteObject(e.Item)
}

func readItemEntity(dec *serial.Decoder) (serial.Transportable, error) {
	body, err := readMotion(dec)
	if err != nil {
		return nil, err
	}
	item, err := serial.ReadAs[Item](dec)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("ItemEntity без предмета")
	}
	return &ItemEntity{Motion: body, Item: item}, nil
}
