package world

import (
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/vec"
)

const (
	BombFuse   = 3.0
	BombRadius = 1
)

// BombEntity взрывается при ударе о блок или по истечении фитиля,
// разрушая блоки переднего плана в радиусе BombRadius.
type BombEntity struct {
	Motion
	Fuse float32

	exploded bool
}

func NewBombEntity(id uint32, pos, velocity vec.Vec2Float) *BombEntity {
	b := &BombEntity{Motion: NewMotion(id, pos), Fuse: BombFuse}
	b.Velocity = velocity
	return b
}

func (b *BombEntity) TypeID() uint16      { return TypeBombEntity }
func (b *BombEntity) Size() vec.Vec2Float { return vec.Vec2Float{X: 0.5, Y: 0.5} }
func (b *BombEntity) ShouldDelete() bool  { return b.exploded }
func (b *BombEntity) Exploded() bool      { return b.exploded }

func (b *BombEntity) Update(w *World, dt float32) {
	if b.exploded {
		return
	}
	b.Fuse -= dt
	if b.Fuse <= 0 {
		cell := b.Position.Cell()
		b.explode(w, cell.X, cell.Y)
	}
}

func (b *BombEntity) OnBlockCollision(w *World, x, y int) {
	b.explode(w, x, y)
}

func (b *BombEntity) explode(w *World, cx, cy int) {
	if b.exploded {
		return
	}
	b.exploded = true
	w.Audio().PlaySound(SoundExplosion, b.Position.X, b.Position.Y, 0, 0, 1, 1)

	for y := cy - BombRadius; y <= cy+BombRadius; y++ {
		for x := cx - BombRadius; x <= cx+BombRadius; x++ {
			if w.Foreground().Get(x, y) != nil {
				// ошибки быть не может: ячейка внутри сетки
				_, _ = w.BreakBlock(Foreground, x, y)
			}
		}
	}
}

func (b *BombEntity) Serialize(enc *serial.Encoder) error {
	b.writeMotion(enc)
	enc.WriteFloat(b.Fuse)
	return nil
}

func readBombEntity(dec *serial.Decoder) (serial.Transportable, error) {
	body, err := readMotion(dec)
	if err != nil {
		return nil, err
	}
	fuse, err := dec.ReadFloat()
	if err != nil {
		return nil, err
	}
	return &BombEntity{Motion: body, Fuse: fuse}, nil
}
