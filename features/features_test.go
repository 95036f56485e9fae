package features

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"noise-lab/audio"
)

const (
	testRate  = 44100
	testFrame = 4096
)

// binFreq returns a frequency that falls exactly on DFT bin k.
func binFreq(k int) float64 {
	return float64(k) * testRate / testFrame
}

func TestSilentFrame(t *testing.T) {
	t.Parallel()

	m := Measure(audio.Silence(testFrame), testRate)
	if m.Energy != 0 || m.Variance != 0 || m.Entropy != 0 || m.ZCR != 0 || m.Jitter != 0 {
		t.Fatalf("silence should measure zero, got %+v", m)
	}
	if m.Low != 0.33 || m.Mid != 0.33 || m.High != 0.34 {
		t.Fatalf("silence should report flat spectral ratios, got %.2f/%.2f/%.2f", m.Low, m.Mid, m.High)
	}
}

func TestEmptyFrame(t *testing.T) {
	t.Parallel()

	m := Measure(nil, testRate)
	if m != (RawMetrics{}) {
		t.Fatalf("empty frame should measure all zeros, got %+v", m)
	}
}

func TestPureToneEnergy(t *testing.T) {
	t.Parallel()

	frame := audio.Sine(1000, 0.5, testRate, testFrame)
	if e := Energy(frame); math.Abs(e-0.125) > 2e-3 {
		t.Errorf("expected energy ~0.125 for a 0.5 amplitude sine, got %f", e)
	}
	if v := Variance(frame); math.Abs(v-0.125) > 2e-3 {
		t.Errorf("expected variance ~0.125 for a zero-mean sine, got %f", v)
	}
}

func TestSpectralBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bin  int
		band int
	}{
		{"low", 10, 0},
		{"mid", 93, 1},
		{"high", 300, 2},
	}

	for _, tt := range tests {
		frame := audio.Sine(binFreq(tt.bin), 0.5, testRate, testFrame)
		low, mid, high := SpectralRatios(frame, testRate)
		ratios := []float64{low, mid, high}
		if ratios[tt.band] < 0.99 {
			t.Errorf("%s tone at %.1f Hz: expected band share > 0.99, got %v", tt.name, binFreq(tt.bin), ratios)
		}
	}
}

func TestSpectralRatiosSumToOne(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	frame := audio.WhiteNoise(0.4, testFrame, rng)
	low, mid, high := SpectralRatios(frame, testRate)
	if sum := low + mid + high; math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected ratios to sum to 1, got %f", sum)
	}
	if high < mid || high < low {
		t.Errorf("white noise should be dominated by the wide high band, got %.3f/%.3f/%.3f", low, mid, high)
	}
}

func TestZCR(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame []float32
		want  float64
	}{
		{"single sample", []float32{1}, 0},
		{"alternating", []float32{1, -1, 1, -1}, 1},
		{"constant", []float32{1, 1, 1, 1}, 0},
		{"through zero", []float32{1, 0, -1}, 1},
		{"one crossing", []float32{1, 1, -1, -1, -1}, 0.25},
	}
	for _, tt := range tests {
		if got := ZCR(tt.frame); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, got)
		}
	}
}

func TestEntropy(t *testing.T) {
	t.Parallel()

	constant := make([]float32, 100)
	for i := range constant {
		constant[i] = 0.5
	}
	if got := Entropy(constant, EntropyBins); got != 0 {
		t.Errorf("constant frame: expected 0, got %f", got)
	}

	spread := make([]float32, 20)
	for i := range spread {
		spread[i] = float32(i) / 19
	}
	if got := Entropy(spread, EntropyBins); math.Abs(got-math.Log2(20)) > 1e-9 {
		t.Errorf("one sample per bin: expected %f, got %f", math.Log2(20), got)
	}

	square := []float32{-0.5, 0.5, -0.5, 0.5}
	if got := Entropy(square, EntropyBins); math.Abs(got-1) > 1e-9 {
		t.Errorf("two equally used bins: expected 1 bit, got %f", got)
	}

	if got := Entropy(audio.Silence(64), EntropyBins); got != 0 {
		t.Errorf("silence: expected 0, got %f", got)
	}
}

func TestMicroJitter(t *testing.T) {
	t.Parallel()

	if got := MicroJitter([]float32{0, 1, 0, 1, 0}); got != 0 {
		t.Errorf("short frame: expected 0, got %f", got)
	}

	regular := audio.Sine(testRate/20, 1, testRate, 400)
	if got := MicroJitter(regular); got != 0 {
		t.Errorf("evenly spaced peaks: expected 0, got %f", got)
	}

	// peaks at 1, 3 and 7: gaps 2 and 4, variance 1
	irregular := []float32{0, 1, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0}
	if got := MicroJitter(irregular); math.Abs(got-math.Ln2) > 1e-12 {
		t.Errorf("gaps 2 and 4: expected ln 2, got %f", got)
	}
}

func TestMeasureIsDeterministic(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	frame := audio.WhiteNoise(0.2, testFrame, rng)

	a := Measure(frame, testRate)
	b := Measure(frame, testRate)
	if a != b {
		t.Fatalf("measurements differ between runs: %+v vs %+v", a, b)
	}
}

// Transforms are pooled per frame length; interleaving lengths across
// goroutines must give the same answers as serial calls.
func TestSpectralRatiosConcurrentFrameSizes(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(13, 17))
	frames := [][]float32{
		audio.WhiteNoise(0.3, testFrame, rng),
		audio.Sine(binFreq(5), 0.5, testRate, testFrame),
		audio.WhiteNoise(0.3, 1000, rng),
		audio.Sine(3000, 0.5, testRate, 2048),
	}

	type ratios struct{ low, mid, high float64 }
	want := make([]ratios, len(frames))
	for i, f := range frames {
		l, m, h := SpectralRatios(f, testRate)
		want[i] = ratios{l, m, h}
	}

	var wg sync.WaitGroup
	errs := make(chan string, 8*len(frames))
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < 20; r++ {
				i := (w + r) % len(frames)
				l, m, h := SpectralRatios(frames[i], testRate)
				if (ratios{l, m, h}) != want[i] {
					errs <- fmt.Sprintf("frame %d changed under concurrent use", i)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}
