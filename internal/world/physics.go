package world

import (
	"math"

	"github.com/annel0/sandbox-game/internal/vec"
)

// затухание горизонтальной скорости на земле, 1/с
const groundFriction = 8

// Update продвигает авторитетный мир на dt секунд: поведение сущностей,
// гравитация, столкновения с блоками и друг с другом, удаление упавших
// за пределы мира и помеченных на удаление. Наблюдатель получает
// OnEntityUpdate для каждой сдвинувшейся сущности.
func (w *World) Update(dt float32) error {
	if dt <= 0 {
		return nil
	}

	entities := w.entities
	before := make([]Motion, len(entities))
	for i, e := range entities {
		before[i] = *e.Body()
		e.Update(w, dt)
		w.integrate(e, dt, true)
	}

	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if overlaps(entities[i], entities[j]) {
				if c, ok := entities[i].(EntityCollider); ok {
					c.OnEntityCollision(w, entities[j])
				}
				if c, ok := entities[j].(EntityCollider); ok {
					c.OnEntityCollision(w, entities[i])
				}
			}
		}
	}

	var doomed []uint32
	for i, e := range entities {
		b := e.Body()
		if e.ShouldDelete() || b.Position.Y < 0 {
			doomed = append(doomed, e.ID())
			continue
		}
		if w.observer != nil && (b.Position != before[i].Position || b.Velocity != before[i].Velocity) {
			w.observer.OnEntityUpdate(e)
		}
	}
	for _, id := range doomed {
		if _, err := w.Remove(id); err != nil {
			return err
		}
	}
	return nil
}

// Extrapolate двигает сущности реплики без игровой логики:
// без хуков, удалений и уведомлений. Используется клиентом между
// обновлениями от сервера.
func (w *World) Extrapolate(dt float32) {
	if dt <= 0 {
		return
	}
	for _, e := range w.entities {
		w.integrate(e, dt, false)
	}
}

func (w *World) integrate(e Entity, dt float32, hooks bool) {
	b := e.Body()
	size := e.Size()
	collider, _ := e.(BlockCollider)
	if !hooks {
		collider = nil
	}

	b.Velocity.Y -= w.gravity * dt
	b.grounded = false

	if dx := b.Velocity.X * dt; dx != 0 {
		next := vec.Vec2Float{X: b.Position.X + dx, Y: b.Position.Y}
		if x, y, hit := w.firstSolid(next, size); hit {
			b.Velocity.X = 0
			if collider != nil {
				collider.OnBlockCollision(w, x, y)
			}
		} else {
			b.Position = next
		}
	}

	if dy := b.Velocity.Y * dt; dy != 0 {
		next := vec.Vec2Float{X: b.Position.X, Y: b.Position.Y + dy}
		if x, y, hit := w.firstSolid(next, size); hit {
			if b.Velocity.Y < 0 {
				b.grounded = true
			}
			b.Velocity.Y = 0
			if collider != nil {
				collider.OnBlockCollision(w, x, y)
			}
		} else {
			b.Position = next
		}
	}

	if b.grounded && !isMovingPlayer(e) {
		damp := 1 - groundFriction*dt
		if damp < 0 {
			damp = 0
		}
		b.Velocity.X *= damp
		if math.Abs(float64(b.Velocity.X)) < 1e-3 {
			b.Velocity.X = 0
		}
	}
}

func isMovingPlayer(e Entity) bool {
	p, ok := e.(*PlayerEntity)
	return ok && p.Moving()
}

// firstSolid ищет твёрдый блок переднего плана, пересекающий хитбокс
// с центром pos. Боковые границы мира считаются стенами.
func (w *World) firstSolid(pos, size vec.Vec2Float) (int, int, bool) {
	const eps = 1e-4
	minX := int(math.Floor(float64(pos.X - size.X/2)))
	maxX := int(math.Floor(float64(pos.X + size.X/2 - eps)))
	minY := int(math.Floor(float64(pos.Y - size.Y/2)))
	maxY := int(math.Floor(float64(pos.Y + size.Y/2 - eps)))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if x < 0 || x >= w.Width() {
				return x, y, true
			}
			if w.foreground.IsSolid(x, y) {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

func overlaps(a, b Entity) bool {
	pa, pb := a.Body().Position, b.Body().Position
	sa, sb := a.Size(), b.Size()
	return math.Abs(float64(pa.X-pb.X)) < float64(sa.X+sb.X)/2 &&
		math.Abs(float64(pa.Y-pb.Y)) < float64(sa.Y+sb.Y)/2
}
