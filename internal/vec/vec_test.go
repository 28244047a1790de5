package vec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCell(t *testing.T) {
	assert.Equal(t, Vec2{X: 2, Y: 0}, Vec2Float{X: 2.9, Y: 0.1}.Cell())
	assert.Equal(t, Vec2{X: -1, Y: -1}, Vec2Float{X: -0.5, Y: -0.01}.Cell())
	assert.Equal(t, Vec2Float{X: 3.5, Y: 4.5}, Vec2{X: 3, Y: 4}.Center())
}

func TestVectorMath(t *testing.T) {
	a := Vec2Float{X: 3, Y: 4}
	assert.Equal(t, float32(5), a.Length())
	assert.Equal(t, Vec2Float{X: 6, Y: 8}, a.Mul(2))
	assert.Equal(t, float32(5), a.DistanceTo(Vec2Float{}))

	up := FromAngle(math.Pi / 2)
	assert.InDelta(t, 0, up.X, 1e-6)
	assert.InDelta(t, 1, up.Y, 1e-6)
}
