package world

// Идентификаторы звуков, которые мир запрашивает у AudioSystem
const (
	SoundGrass = iota + 1
	SoundDig
	SoundPlace
	SoundExplosion
	SoundPickup
	SoundThrow
)

// AudioSystem внешний коллаборатор: проигрывание звука в точке мира.
// Реализуется слоем рендера/звука, ядро только вызывает его.
type AudioSystem interface {
	PlaySound(sound int, x, y, vx, vy, gain, pitch float32)
}

// NopAudio AudioSystem для сервера и тестов
type NopAudio struct{}

func (NopAudio) PlaySound(int, float32, float32, float32, float32, float32, float32) {}
