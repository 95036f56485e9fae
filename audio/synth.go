package audio

import (
	"math"
	"math/rand/v2"
)

// Sine returns n samples of a sine wave starting at phase zero.
func Sine(freq, amplitude float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	if sampleRate <= 0 {
		return out
	}
	step := 2 * math.Pi * freq / float64(sampleRate)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(step*float64(i)))
	}
	return out
}

// WhiteNoise returns n samples drawn uniformly from [-amplitude, amplitude).
func WhiteNoise(amplitude float64, n int, rng *rand.Rand) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * (2*rng.Float64() - 1))
	}
	return out
}

func Silence(n int) []float32 {
	return make([]float32, n)
}
