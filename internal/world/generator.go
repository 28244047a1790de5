package world

import (
	"math/rand"

	"github.com/aquilax/go-perlin"
)

// Generator генерирует рельеф по срезу двумерного шума Перлина
type Generator struct {
	Seed       int64
	NoiseScale float64 // Масштаб шума по горизонтали
	BaseHeight float64 // Доля высоты мира под поверхностью
	Amplitude  float64 // Размах холмов в блоках
	RedDensity float64 // Шанс красного блока под землёй
}

// NewGenerator создаёт генератор с настройками по умолчанию
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Seed:       seed,
		NoiseScale: 0.05,
		BaseHeight: 0.5,
		Amplitude:  12,
		RedDensity: 0.03,
	}
}

// Generate заполняет оба слоя мира: земля, трава сверху, фон из земли
func (g *Generator) Generate(w *World) {
	// alpha=2 сглаживание, beta=2 частота, 3 октавы
	noise := perlin.NewPerlin(2, 2, 3, g.Seed)
	rng := rand.New(rand.NewSource(g.Seed))

	width, height := w.Width(), w.Height()
	for x := 0; x < width; x++ {
		surface := int(float64(height)*g.BaseHeight + noise.Noise2D(float64(x)*g.NoiseScale, 0.5)*g.Amplitude)
		surface = max(1, min(surface, height-1))

		for y := 0; y < surface; y++ {
			var b Block = DirtBlock{}
			switch {
			case y == surface-1:
				b = GrassBlock{}
			case rng.Float64() < g.RedDensity:
				b = RedBlock{}
			}
			_, _ = w.foreground.Set(x, y, b)
			_, _ = w.background.Set(x, y, DirtBlock{})
		}
	}
}
