package stream

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noise-lab/audio"
	"noise-lab/identity"
	"noise-lab/metrics"
)

const frameSize = 4096

func newTestManager(t *testing.T) (*Manager, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewManager(identity.New(identity.Config{}), frameSize, m), m
}

func tone() []float32 {
	return audio.Sine(93*44100.0/frameSize, 0.5, 44100, frameSize)
}

func TestHandleFrame(t *testing.T) {
	mgr, m := newTestManager(t)
	s := mgr.Open("sock1", "websocket")

	res, err := s.HandleFrame(audio.EncodeFrame(tone()))
	require.NoError(t, err)
	assert.Equal(t, 1, res.PendingCount)
	assert.InDelta(t, 0.125, res.Features.Energy, 1e-3)

	_, err = s.HandleFrame(audio.EncodeFrame(tone()[:100]))
	assert.True(t, errors.Is(err, audio.ErrFrameSize))

	_, err = s.HandleFrame([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, audio.ErrMisalignedPayload))

	info := s.Info()
	assert.Equal(t, int64(1), info.Frames)
	assert.Equal(t, int64(2), info.Rejected)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesRejected.WithLabelValues("frame_size")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesRejected.WithLabelValues("misaligned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingIdentities))
}

func TestSilentFramesAreCounted(t *testing.T) {
	mgr, m := newTestManager(t)
	s := mgr.Open("", "socketio")
	assert.Len(t, s.ID, 8)

	res := s.ProcessFrame(audio.Silence(frameSize))
	assert.Zero(t, res.PendingCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SilentFrames))
}

func TestHandleConfig(t *testing.T) {
	mgr, _ := newTestManager(t)
	s := mgr.Open("sock1", "websocket")

	require.NoError(t, s.HandleConfig([]byte(`{"type":"config","intensity":0.4,"jitter":3}`)))
	info := s.Info()
	assert.Equal(t, 0.4, info.Intensity)
	assert.Equal(t, 1.0, info.Jitter)

	require.NoError(t, s.HandleConfig([]byte(`{"type":"config"}`)))
	info = s.Info()
	assert.Zero(t, info.Intensity)
	assert.Zero(t, info.Jitter)

	err := s.HandleConfig([]byte(`{"type":"hello"}`))
	assert.True(t, errors.Is(err, ErrUnknownMessage))

	assert.Error(t, s.HandleConfig([]byte(`not json`)))
}

func TestSessionsShareOneModel(t *testing.T) {
	mgr, _ := newTestManager(t)
	a := mgr.Open("a", "websocket")
	b := mgr.Open("b", "socketio")

	a.ProcessFrame(tone())
	res := b.ProcessFrame(tone())
	assert.Equal(t, 1, res.PendingCount, "the second stream matches the first stream's pending identity")

	status := mgr.Model().Snapshot()
	require.Len(t, status.Pending, 1)
	assert.Equal(t, 2, status.Pending[0].Observations)
}

func TestNoiseIsPerSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	a := mgr.Open("a", "websocket")
	b := mgr.Open("b", "websocket")

	a.Configure(0.5, 0.5)
	ia := a.Info()
	ib := b.Info()
	assert.Equal(t, 0.5, ia.Intensity)
	assert.Zero(t, ib.Intensity)

	require.NoError(t, b.HandleConfig([]byte(`{"type":"config","intensity":0.2,"jitter":0.1}`)))
	assert.Equal(t, 0.5, a.Info().Intensity, "a config message only affects its own stream")
	assert.Equal(t, 0.5, a.Info().Jitter)

	c := mgr.Open("c", "socketio")
	assert.Zero(t, c.Info().Intensity, "new streams start without noise")
	assert.Zero(t, c.Info().Jitter)
}

func TestManagerLifecycle(t *testing.T) {
	mgr, m := newTestManager(t)

	mgr.Open("a", "websocket")
	mgr.Open("b", "socketio")
	assert.Equal(t, 2, mgr.Count())

	_, ok := mgr.Get("a")
	assert.True(t, ok)

	infos := mgr.Sessions()
	require.Len(t, infos, 2)

	mgr.Close("a")
	mgr.Close("a")
	mgr.Close("missing")
	assert.Equal(t, 1, mgr.Count())
	_, ok = mgr.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("websocket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("socketio")))

	mgr.Open("b", "socketio")
	assert.Equal(t, 1, mgr.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("socketio")))
}
