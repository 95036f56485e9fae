package audio

import (
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/wav"
)

const resampleQuality = 6

// LoadWAV decodes a WAV file into mono samples at targetRate. Stereo input is
// averaged down; targetRate <= 0 keeps the file's own rate.
func LoadWAV(path string, targetRate int) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	var source beep.Streamer = effects.Mono(streamer)
	rate := int(format.SampleRate)
	if targetRate > 0 && targetRate != rate {
		source = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(targetRate), source)
		rate = targetRate
	}

	samples := make([]float32, 0, streamer.Len())
	buf := make([][2]float64, 4096)
	for {
		n, ok := source.Stream(buf)
		for i := 0; i < n; i++ {
			samples = append(samples, float32(buf[i][0]))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}

	return samples, rate, nil
}
