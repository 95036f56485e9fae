package features

import "math"

// Dimensions is the length of a feature vector.
const Dimensions = 8

const (
	intensityWeight = 1.0
	structureWeight = 1.5

	varianceScale = 4.0
	entropyScale  = 4.0
	jitterScale   = 10.0
)

// Vector layout: energy, variance, entropy, zcr, low, mid, high, jitter.
// The first three components carry the intensity weight, the rest the
// structure weight.
type Vector [Dimensions]float64

// Build scales and weights raw measurements into a clustering vector.
func Build(m RawMetrics) Vector {
	return Vector{
		m.Energy * intensityWeight,
		m.Variance * varianceScale * intensityWeight,
		m.Entropy / entropyScale * intensityWeight,
		m.ZCR * structureWeight,
		m.Low * structureWeight,
		m.Mid * structureWeight,
		m.High * structureWeight,
		math.Min(m.Jitter/jitterScale, 1.0) * structureWeight,
	}
}

// Extract measures frame and builds its vector.
func Extract(frame []float32, sampleRate int) (Vector, RawMetrics) {
	m := Measure(frame, sampleRate)
	return Build(m), m
}

// Distance is the Euclidean distance between two vectors.
func Distance(a, b Vector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Blend moves v toward target by rate: v*(1-rate) + target*rate.
func (v Vector) Blend(target Vector, rate float64) Vector {
	var out Vector
	for i := range v {
		out[i] = v[i]*(1-rate) + target[i]*rate
	}
	return out
}

type Spectral struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Structure is the de-weighted structural part of a centroid, for display.
type Structure struct {
	ZCR      float64  `json:"zcr"`
	Spectral Spectral `json:"spectral"`
	Jitter   float64  `json:"jitter"`
}

func StructureOf(v Vector) Structure {
	return Structure{
		ZCR: v[3] / structureWeight,
		Spectral: Spectral{
			Low:  v[4] / structureWeight,
			Mid:  v[5] / structureWeight,
			High: v[6] / structureWeight,
		},
		Jitter: v[7] / structureWeight,
	}
}

// Approximate inverts Build. Jitter saturates in Build, so values above the
// cap come back as the cap.
func Approximate(v Vector) RawMetrics {
	return RawMetrics{
		Energy:   v[0] / intensityWeight,
		Variance: v[1] / intensityWeight / varianceScale,
		Entropy:  v[2] / intensityWeight * entropyScale,
		ZCR:      v[3] / structureWeight,
		Low:      v[4] / structureWeight,
		Mid:      v[5] / structureWeight,
		High:     v[6] / structureWeight,
		Jitter:   v[7] / structureWeight * jitterScale,
	}
}
