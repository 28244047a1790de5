package world

import (
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
)

// Entity сущность мира с уникальным, никогда не переиспользуемым ID.
type Entity interface {
	serial.Transportable
	ID() uint32
	Body() *Motion
	// Size ширина и высота хитбокса (позиция это центр)
	Size() vec.Vec2Float
	Update(w *World, dt float32)
	ShouldDelete() bool
}

// BlockCollider реализуют сущности, реагирующие на столкновение с блоком
type BlockCollider interface {
	OnBlockCollision(w *World, x, y int)
}

// EntityCollider реализуют сущности, реагирующие на пересечение с другой сущностью
type EntityCollider interface {
	OnEntityCollision(w *World, other Entity)
}

// Motion общая часть всех сущностей: идентификатор, позиция, скорость.
type Motion struct {
	id       uint32
	Position vec.Vec2Float
	Velocity vec.Vec2Float
	grounded bool
}

func NewMotion(id uint32, pos vec.Vec2Float) Motion {
	return Motion{id: id, Position: pos}
}

func (b *Motion) ID() uint32     { return b.id }
func (b *Motion) Body() *Motion  { return b }
func (b *Motion) Grounded() bool { return b.grounded }

// writeMotion: id u32, позиция 2×f32, скорость 2×f32
func (b *Motion) writeMotion(enc *serial.Encoder) {
	enc.WriteUint32(b.id)
	enc.WriteFloat(b.Position.X)
	enc.WriteFloat(b.Position.Y)
	enc.WriteFloat(b.Velocity.X)
	enc.WriteFloat(b.Velocity.Y)
}

func readMotion(dec *serial.Decoder) (Motion, error) {
	var b Motion
	var err error
	if b.id, err = dec.ReadUint32(); err != nil {
		return b, err
	}
	fields := []*float32{&b.Position.X, &b.Position.Y, &b.Velocity.X, &b.Velocity.Y}
	for _, f := range fields {
		if *f, err = dec.ReadFloat(); err != nil {
			return b, err
		}
	}
	return b, nil
}
