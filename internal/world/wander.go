package world

import (
	"math"
	"math/rand"
)

const wanderStep = 2.0

// WanderStep advances o's wander state and returns this tick's offset. A new
// leg starts with probability chance; a leg lasts a few ticks in one
// direction. Landblock tick goroutine only.
func (o *WorldObject) WanderStep(rng *rand.Rand, chance float64) (dx, dy float64, ok bool) {
	if o.wanderLen <= 0 {
		if rng.Float64() >= chance {
			return 0, 0, false
		}
		angle := rng.Float64() * 2 * math.Pi
		o.wanderDir = [2]float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
		o.wanderLen = 3 + rng.Intn(5)
	}
	o.wanderLen--
	return float64(o.wanderDir[0]) * wanderStep, float64(o.wanderDir[1]) * wanderStep, true
}
