package vec

import "math"

// Vec2Float мировые координаты и скорости (float32, как на проводе)
type Vec2Float struct {
	X, Y float32
}

// Cell возвращает клетку сетки, в которую попадает точка
func (v Vec2Float) Cell() Vec2 {
	return Vec2{X: int(math.Floor(float64(v.X))), Y: int(math.Floor(float64(v.Y)))}
}

// Add складывает два вектора
func (v Vec2Float) Add(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub вычитает вектор
func (v Vec2Float) Sub(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul умножает вектор на скаляр
func (v Vec2Float) Mul(scalar float32) Vec2Float {
	return Vec2Float{X: v.X * scalar, Y: v.Y * scalar}
}

// Length возвращает длину вектора
func (v Vec2Float) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y)))
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2Float) DistanceTo(other Vec2Float) float32 {
	return v.Sub(other).Length()
}

// FromAngle единичный вектор направления (угол в радианах)
func FromAngle(angle float32) Vec2Float {
	s, c := math.Sincos(float64(angle))
	return Vec2Float{X: float32(c), Y: float32(s)}
}
