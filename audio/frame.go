package audio

// Frame decoding for the streaming transports.
//
// Clients send each analysis frame as a packed little-endian float32 array
// (the browser's Float32Array buffer). Payloads are checked here, before the
// clustering core sees them, so the core can assume well-formed input:
//   - empty payloads are rejected
//   - byte lengths must be a multiple of 4
//   - when a frame size is configured the sample count must match it
//   - NaN and Inf samples are rejected

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const bytesPerSample = 4

var (
	ErrEmptyPayload      = errors.New("empty audio payload")
	ErrMisalignedPayload = errors.New("payload length is not a multiple of 4 bytes")
	ErrFrameSize         = errors.New("unexpected frame size")
	ErrNonFinite         = errors.New("frame contains NaN or Inf samples")
)

// DecodeFrame converts a raw payload into samples. frameSize <= 0 accepts any
// non-empty length.
func DecodeFrame(raw []byte, frameSize int) ([]float32, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(raw)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMisalignedPayload, len(raw))
	}

	count := len(raw) / bytesPerSample
	if frameSize > 0 && count != frameSize {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", ErrFrameSize, frameSize, count)
	}

	frame := make([]float32, count)
	for i := range frame {
		v := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerSample:]))
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: sample %d", ErrNonFinite, i)
		}
		frame[i] = v
	}
	return frame, nil
}

// EncodeFrame packs samples the way clients send them.
func EncodeFrame(frame []float32) []byte {
	raw := make([]byte, len(frame)*bytesPerSample)
	for i, v := range frame {
		binary.LittleEndian.PutUint32(raw[i*bytesPerSample:], math.Float32bits(v))
	}
	return raw
}

// SplitFrames cuts samples into consecutive frames of frameSize samples. A
// trailing partial frame is dropped.
func SplitFrames(samples []float32, frameSize int) [][]float32 {
	if frameSize <= 0 {
		return nil
	}

	frames := make([][]float32, 0, len(samples)/frameSize)
	for start := 0; start+frameSize <= len(samples); start += frameSize {
		frames = append(frames, samples[start:start+frameSize])
	}
	return frames
}
