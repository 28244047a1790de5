package vec

// Vec2 целочисленные координаты клетки сетки блоков
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Center возвращает центр клетки в мировых координатах
func (v Vec2) Center() Vec2Float {
	return Vec2Float{X: float32(v.X) + 0.5, Y: float32(v.Y) + 0.5}
}
