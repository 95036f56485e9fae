package noise

// Stochastic perturbation applied to incoming frames before analysis.
//
// Two mechanisms, both driven by client-supplied parameters:
//   1. Amplitude perturbation: each sample is scaled by (1 + N(0, intensity))
//   2. Temporal jitter: with probability jitterProb the whole frame is
//      rotated by a uniform shift in [-MaxShift, MaxShift] samples

import (
	"math/rand/v2"
	"sync"
)

// MaxShift bounds the circular shift applied by temporal jitter.
const MaxShift = 5

// Injector holds the noise parameters of one stream. Zero values disable it.
type Injector struct {
	mu         sync.Mutex
	intensity  float64
	jitterProb float64
	rng        *rand.Rand
}

// NewInjector returns a disabled injector. A nil rng uses a randomly seeded
// source.
func NewInjector(rng *rand.Rand) *Injector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Injector{rng: rng}
}

// Update sets both parameters, clamping each to [0, 1].
func (n *Injector) Update(intensity, jitterProb float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intensity = clamp01(intensity)
	n.jitterProb = clamp01(jitterProb)
}

// Params returns the current intensity and jitter probability.
func (n *Injector) Params() (intensity, jitterProb float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.intensity, n.jitterProb
}

// Apply returns a perturbed copy of frame. The input is never modified.
func (n *Injector) Apply(frame []float32) []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]float32, len(frame))
	copy(out, frame)

	if n.intensity > 0 {
		for i, v := range out {
			out[i] = float32(float64(v) * (1 + n.rng.NormFloat64()*n.intensity))
		}
	}

	if n.jitterProb > 0 && len(out) > 0 && n.rng.Float64() < n.jitterProb {
		shift := n.rng.IntN(2*MaxShift+1) - MaxShift
		out = roll(out, shift)
	}
	return out
}

// roll rotates s right by shift positions (left when negative).
func roll(s []float32, shift int) []float32 {
	size := len(s)
	if size == 0 {
		return s
	}
	shift = ((shift % size) + size) % size
	if shift == 0 {
		return s
	}
	out := make([]float32, size)
	copy(out[shift:], s[:size-shift])
	copy(out[:shift], s[size-shift:])
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
