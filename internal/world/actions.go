package world

import (
	"errors"
	"fmt"

	"github.com/annel0/sandbox-game/internal/vec"
)

const (
	// InteractionRange максимальное расстояние от центра игрока до центра блока
	InteractionRange = 5
	BombThrowSpeed   = 20
	itemDropSpeed    = 4
)

var (
	ErrOutOfReach     = errors.New("world: block out of reach")
	ErrNothingToPlace = errors.New("world: selected slot holds no block")
)

// SpawnPlayer создаёт игрока над поверхностью в середине мира
func (w *World) SpawnPlayer(name string) (*PlayerEntity, error) {
	x := w.Width() / 2
	top := w.foreground.TopSolid(x)
	pos := vec.Vec2Float{X: float32(x) + 0.5, Y: float32(top+1) + 1}
	player := NewPlayerEntity(w.NextEntityID(), name, pos)
	if err := w.Add(player); err != nil {
		return nil, err
	}
	return player, nil
}

func inReach(p *PlayerEntity, x, y int) bool {
	return p.Position.DistanceTo(vec.Vec2{X: x, Y: y}.Center()) <= InteractionRange
}

// PlayerBreakBlock разрушает блок (передний план, иначе задний) и роняет
// его как ItemEntity. false если ячейка пуста.
func (w *World) PlayerBreakBlock(p *PlayerEntity, x, y int) (bool, error) {
	if !inReach(p, x, y) {
		return false, fmt.Errorf("(%d,%d): %w", x, y, ErrOutOfReach)
	}
	layer := Foreground
	if w.foreground.Get(x, y) == nil {
		layer = Background
	}
	b, err := w.BreakBlock(layer, x, y)
	if err != nil || b == nil {
		return false, err
	}

	w.Audio().PlaySound(SoundDig, float32(x)+0.5, float32(y)+0.5, 0, 0, 1, 1)
	drop := NewItemEntity(w.NextEntityID(), &BlockItem{Block: b}, vec.Vec2{X: x, Y: y}.Center())
	drop.Velocity = vec.Vec2Float{X: (w.random().Float32() - 0.5) * itemDropSpeed, Y: itemDropSpeed}
	if err := w.Add(drop); err != nil {
		return true, err
	}
	return true, nil
}

// PlayerPlaceBlock ставит блок из выбранного слота в пустую ячейку переднего
// плана, если она не пересекается ни с одной сущностью.
func (w *World) PlayerPlaceBlock(p *PlayerEntity, x, y int) (bool, error) {
	if !inReach(p, x, y) {
		return false, fmt.Errorf("(%d,%d): %w", x, y, ErrOutOfReach)
	}
	item, ok := p.SelectedItem().(*BlockItem)
	if !ok || item.Block == nil {
		return false, ErrNothingToPlace
	}
	if w.cellOccupied(x, y) {
		return false, nil
	}
	placed, err := w.PlaceBlock(Foreground, x, y, item.Block)
	if err != nil || !placed {
		return false, err
	}
	p.Inventory.Take(int(p.Selected))
	return true, nil
}

func (w *World) cellOccupied(x, y int) bool {
	cell := vec.Vec2{X: x, Y: y}.Center()
	for _, e := range w.entities {
		pos, size := e.Body().Position, e.Size()
		if abs32(pos.X-cell.X) < (size.X+1)/2 && abs32(pos.Y-cell.Y) < (size.Y+1)/2 {
			return true
		}
	}
	return false
}

// ThrowBomb бросает бомбу под углом angle (радианы) из позиции игрока
func (w *World) ThrowBomb(p *PlayerEntity, angle float32) (*BombEntity, error) {
	velocity := vec.FromAngle(angle).Mul(BombThrowSpeed).Add(p.Velocity)
	bomb := NewBombEntity(w.NextEntityID(), p.Position, velocity)
	if err := w.Add(bomb); err != nil {
		return nil, err
	}
	w.Audio().PlaySound(SoundThrow, p.Position.X, p.Position.Y, velocity.X, velocity.Y, 1, 1)
	return bomb, nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
