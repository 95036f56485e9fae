package features

// Per-frame acoustic measurements.
//
// Every extractor is a pure function of one frame. None of them fail: degenerate
// input (empty frames, digital silence, frames too short for a measurement)
// yields a documented fallback value instead of an error.
//
// Temporal:
//   - Energy: mean of squared samples
//   - Variance: population variance of the samples
//   - Entropy: Shannon entropy (bits) of a 20-bin amplitude histogram
//   - ZCR: fraction of adjacent sample pairs whose sign differs
//
// Spectral (real-input DFT magnitudes):
//   - Low / Mid / High: share of summed magnitude at <=400 Hz, 400-2000 Hz, >2000 Hz
//
// Structural:
//   - Jitter: log(1 + variance of the gaps between envelope peaks)

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	EntropyBins = 20

	lowBandMaxHz = 400.0
	midBandMaxHz = 2000.0

	silenceFloor   = 1e-9
	minJitterFrame = 10
)

// RawMetrics are the unscaled measurements reported to clients.
type RawMetrics struct {
	Energy   float64 `json:"energy"`
	Variance float64 `json:"variance"`
	Entropy  float64 `json:"entropy"`
	ZCR      float64 `json:"zcr"`
	Low      float64 `json:"low"`
	Mid      float64 `json:"mid"`
	High     float64 `json:"high"`
	Jitter   float64 `json:"jitter"`
}

// Measure runs every extractor over frame.
func Measure(frame []float32, sampleRate int) RawMetrics {
	low, mid, high := SpectralRatios(frame, sampleRate)
	return RawMetrics{
		Energy:   Energy(frame),
		Variance: Variance(frame),
		Entropy:  Entropy(frame, EntropyBins),
		ZCR:      ZCR(frame),
		Low:      low,
		Mid:      mid,
		High:     high,
		Jitter:   MicroJitter(frame),
	}
}

func Energy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		x := float64(v)
		sum += x * x
	}
	return sum / float64(len(frame))
}

func Variance(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var mean float64
	for _, v := range frame {
		mean += float64(v)
	}
	mean /= float64(len(frame))

	var sum float64
	for _, v := range frame {
		d := float64(v) - mean
		sum += d * d
	}
	return sum / float64(len(frame))
}

// Entropy histograms the samples into bins equal-width bins spanning
// [min, max] and returns the Shannon entropy of the bin occupancy in bits.
// A constant frame is binned over [v-0.5, v+0.5].
func Entropy(frame []float32, bins int) float64 {
	if len(frame) == 0 || bins <= 0 {
		return 0
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	var absSum float64
	for _, v := range frame {
		x := float64(v)
		absSum += math.Abs(x)
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if absSum < silenceFloor {
		return 0
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	counts := make([]int, bins)
	scale := float64(bins) / (hi - lo)
	for _, v := range frame {
		idx := int((float64(v) - lo) * scale)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	total := float64(len(frame))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func sign(x float32) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// ZCR counts adjacent pairs with different signs (zero is its own sign) and
// divides by the number of pairs.
func ZCR(frame []float32) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 0; i < len(frame)-1; i++ {
		if sign(frame[i]) != sign(frame[i+1]) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

// fftPools holds one *sync.Pool of transforms per frame length. A
// fourier.FFT carries work buffers, so a pooled value is used by one caller
// at a time.
var fftPools sync.Map

func acquireFFT(n int) (*fourier.FFT, func()) {
	p, ok := fftPools.Load(n)
	if !ok {
		p, _ = fftPools.LoadOrStore(n, &sync.Pool{
			New: func() any { return fourier.NewFFT(n) },
		})
	}
	pool := p.(*sync.Pool)
	fft := pool.Get().(*fourier.FFT)
	return fft, func() { pool.Put(fft) }
}

// SpectralRatios splits the magnitude spectrum into low, mid and high bands and
// returns each band's share of the total. Near-silent frames report a flat
// (0.33, 0.33, 0.34); an empty frame reports zeros.
func SpectralRatios(frame []float32, sampleRate int) (low, mid, high float64) {
	n := len(frame)
	if n == 0 || sampleRate <= 0 {
		return 0, 0, 0
	}

	seq := make([]float64, n)
	for i, v := range frame {
		seq[i] = float64(v)
	}
	fft, release := acquireFFT(n)
	coeffs := fft.Coefficients(nil, seq)
	release()

	var total float64
	binHz := float64(sampleRate) / float64(n)
	for k, c := range coeffs {
		mag := cmplx.Abs(c)
		total += mag

		freq := float64(k) * binHz
		switch {
		case freq <= lowBandMaxHz:
			low += mag
		case freq <= midBandMaxHz:
			mid += mag
		default:
			high += mag
		}
	}

	if total < silenceFloor {
		return 0.33, 0.33, 0.34
	}
	return low / total, mid / total, high / total
}

// MicroJitter locates local maxima of |x| (points where the slope sign drops)
// and returns log(1 + variance of the distances between consecutive maxima).
func MicroJitter(frame []float32) float64 {
	n := len(frame)
	if n < minJitterFrame {
		return 0
	}

	slope := make([]int, n-1)
	for i := 0; i < n-1; i++ {
		d := math.Abs(float64(frame[i+1])) - math.Abs(float64(frame[i]))
		switch {
		case d > 0:
			slope[i] = 1
		case d < 0:
			slope[i] = -1
		}
	}

	var peaks []int
	for i := 0; i < len(slope)-1; i++ {
		if slope[i+1]-slope[i] < 0 {
			peaks = append(peaks, i+1)
		}
	}
	if len(peaks) < 2 {
		return 0
	}

	gaps := make([]float64, len(peaks)-1)
	var mean float64
	for i := range gaps {
		gaps[i] = float64(peaks[i+1] - peaks[i])
		mean += gaps[i]
	}
	mean /= float64(len(gaps))

	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))

	return math.Log1p(variance)
}
