package noise

import (
	"math"
	"math/rand/v2"
	"testing"

	"noise-lab/audio"
)

func TestUpdateClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		intensity, jitter         float64
		wantIntensity, wantJitter float64
	}{
		{0.5, 0.2, 0.5, 0.2},
		{-1, 2, 0, 1},
		{3, -0.5, 1, 0},
	}

	n := NewInjector(nil)
	for _, tt := range tests {
		n.Update(tt.intensity, tt.jitter)
		gotI, gotJ := n.Params()
		if gotI != tt.wantIntensity || gotJ != tt.wantJitter {
			t.Errorf("Update(%v, %v): expected (%v, %v), got (%v, %v)",
				tt.intensity, tt.jitter, tt.wantIntensity, tt.wantJitter, gotI, gotJ)
		}
	}
}

func TestDisabledInjectorIsIdentity(t *testing.T) {
	t.Parallel()

	frame := audio.Sine(440, 0.5, 44100, 512)
	out := NewInjector(nil).Apply(frame)
	for i := range frame {
		if out[i] != frame[i] {
			t.Fatalf("sample %d changed: %v -> %v", i, frame[i], out[i])
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	frame := audio.Sine(440, 0.5, 44100, 512)
	orig := append([]float32(nil), frame...)

	n := NewInjector(rand.New(rand.NewPCG(1, 1)))
	n.Update(1, 1)
	n.Apply(frame)

	for i := range frame {
		if frame[i] != orig[i] {
			t.Fatalf("input sample %d was modified", i)
		}
	}
}

func TestAmplitudePerturbation(t *testing.T) {
	t.Parallel()

	ones := make([]float32, 20000)
	for i := range ones {
		ones[i] = 1
	}

	n := NewInjector(rand.New(rand.NewPCG(42, 7)))
	n.Update(0.3, 0)
	out := n.Apply(ones)

	var mean, sq float64
	for _, v := range out {
		mean += float64(v)
	}
	mean /= float64(len(out))
	for _, v := range out {
		d := float64(v) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(out)))

	if math.Abs(mean-1) > 0.02 {
		t.Errorf("expected mean gain ~1, got %f", mean)
	}
	if math.Abs(std-0.3) > 0.02 {
		t.Errorf("expected spread ~0.3, got %f", std)
	}
}

func TestJitterIsBoundedRotation(t *testing.T) {
	t.Parallel()

	frame := make([]float32, 64)
	for i := range frame {
		frame[i] = float32(i)
	}

	n := NewInjector(rand.New(rand.NewPCG(9, 9)))
	n.Update(0, 1)

	for trial := 0; trial < 50; trial++ {
		out := n.Apply(frame)
		// out[0] holds frame[-shift mod n]
		shift := (len(frame) - int(out[0])) % len(frame)
		if shift > MaxShift && shift < len(frame)-MaxShift {
			t.Fatalf("shift %d outside [-%d, %d]", shift, MaxShift, MaxShift)
		}
		for i := range out {
			want := frame[((i-shift)%len(frame)+len(frame))%len(frame)]
			if out[i] != want {
				t.Fatalf("trial %d: not a rotation at %d: got %v want %v", trial, i, out[i], want)
			}
		}
	}
}

func TestRoll(t *testing.T) {
	t.Parallel()

	s := []float32{1, 2, 3, 4, 5}
	tests := []struct {
		shift int
		want  []float32
	}{
		{0, []float32{1, 2, 3, 4, 5}},
		{2, []float32{4, 5, 1, 2, 3}},
		{-1, []float32{2, 3, 4, 5, 1}},
		{5, []float32{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		got := roll(s, tt.shift)
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("roll(%d): expected %v, got %v", tt.shift, tt.want, got)
				break
			}
		}
	}
}
