package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"noise-lab/audio"
	"noise-lab/identity"
	"noise-lab/metrics"
	"noise-lab/models"
	"noise-lab/noise"
)

var ErrUnknownMessage = errors.New("unknown control message")

// Session is one connected audio stream. It owns the stream's noise
// parameters; the identity model is shared by every session.
type Session struct {
	ID        string
	Transport string
	StartedAt time.Time

	model     *identity.Model
	injector  *noise.Injector
	frameSize int
	minEnergy float64
	metrics   *metrics.Metrics
	logger    *slog.Logger

	frames   atomic.Int64
	rejected atomic.Int64
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	StartedAt time.Time `json:"started_at"`
	Frames    int64     `json:"frames"`
	Rejected  int64     `json:"rejected"`
	Intensity float64   `json:"intensity"`
	Jitter    float64   `json:"jitter"`
}

// HandleFrame decodes a raw payload and processes it. Malformed payloads are
// counted and returned as errors without touching the model.
func (s *Session) HandleFrame(raw []byte) (identity.Result, error) {
	frame, err := audio.DecodeFrame(raw, s.frameSize)
	if err != nil {
		s.rejected.Add(1)
		s.metrics.RecordRejectedFrame(rejectReason(err))
		return identity.Result{}, fmt.Errorf("decode frame: %w", err)
	}
	return s.ProcessFrame(frame), nil
}

// ProcessFrame perturbs frame with the session's noise and runs it through
// the model.
func (s *Session) ProcessFrame(frame []float32) identity.Result {
	noisy := s.injector.Apply(frame)

	started := time.Now()
	res := s.model.Process(noisy)
	s.metrics.RecordFrame(res, res.Features.Energy <= s.minEnergy, time.Since(started))
	s.frames.Add(1)

	if res.MatchedID != "" {
		s.logger.Debug("frame matched identity",
			slog.String("sessionID", s.ID),
			slog.String("identityID", res.MatchedID),
			slog.Float64("confidence", res.Confidence),
		)
	}
	return res
}

// HandleConfig applies a {"type":"config"} message.
func (s *Session) HandleConfig(raw []byte) error {
	var msg models.ConfigMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse control message: %w", err)
	}
	if msg.Type != models.MessageTypeConfig {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	s.Configure(msg.Intensity, msg.Jitter)
	return nil
}

// Configure updates the session's noise parameters.
func (s *Session) Configure(intensity, jitter float64) {
	s.injector.Update(intensity, jitter)
	intensity, jitter = s.injector.Params()
	s.logger.Info("noise parameters updated",
		slog.String("sessionID", s.ID),
		slog.Float64("intensity", intensity),
		slog.Float64("jitter", jitter),
	)
}

func (s *Session) Info() Info {
	intensity, jitter := s.injector.Params()
	return Info{
		ID:        s.ID,
		Transport: s.Transport,
		StartedAt: s.StartedAt,
		Frames:    s.frames.Load(),
		Rejected:  s.rejected.Load(),
		Intensity: intensity,
		Jitter:    jitter,
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, audio.ErrEmptyPayload):
		return "empty"
	case errors.Is(err, audio.ErrMisalignedPayload):
		return "misaligned"
	case errors.Is(err, audio.ErrFrameSize):
		return "frame_size"
	case errors.Is(err, audio.ErrNonFinite):
		return "non_finite"
	default:
		return "other"
	}
}
