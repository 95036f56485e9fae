package stream

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"noise-lab/identity"
	"noise-lab/metrics"
	"noise-lab/noise"
	"noise-lab/utils"
)

// Manager tracks the open sessions feeding one shared model.
type Manager struct {
	model     *identity.Model
	frameSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	newRNG    func() *rand.Rand

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. frameSize <= 0 accepts frames of any length.
func NewManager(model *identity.Model, frameSize int, m *metrics.Metrics) *Manager {
	return &Manager{
		model:     model,
		frameSize: frameSize,
		metrics:   m,
		logger:    utils.GetLogger(),
		newRNG:    func() *rand.Rand { return nil },
		sessions:  make(map[string]*Session),
	}
}

func (m *Manager) Model() *identity.Model {
	return m.model
}

// Open registers a new session. An empty id gets a generated one; reopening
// an existing id replaces the old session.
func (m *Manager) Open(id, transport string) *Session {
	if id == "" {
		id = utils.NewShortID()
	}

	s := &Session{
		ID:        id,
		Transport: transport,
		StartedAt: time.Now(),
		model:     m.model,
		injector:  noise.NewInjector(m.newRNG()), // noise settings are per stream
		frameSize: m.frameSize,
		minEnergy: m.model.Config().MinEnergy,
		metrics:   m.metrics,
		logger:    m.logger,
	}

	m.mu.Lock()
	old, replaced := m.sessions[id]
	m.sessions[id] = s
	m.mu.Unlock()

	if replaced {
		m.metrics.RecordStreamClosed(old.Transport, time.Since(old.StartedAt).Seconds())
	}
	m.metrics.RecordStreamOpened(transport)
	m.logger.Info("stream opened",
		slog.String("sessionID", id),
		slog.String("transport", transport),
	)
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes a session. Unknown ids are ignored.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}

	duration := time.Since(s.StartedAt)
	m.metrics.RecordStreamClosed(s.Transport, duration.Seconds())
	info := s.Info()
	m.logger.Info("stream closed",
		slog.String("sessionID", id),
		slog.String("transport", s.Transport),
		slog.Duration("duration", duration),
		slog.Int64("frames", info.Frames),
		slog.Int64("rejected", info.Rejected),
	)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions lists open sessions, oldest first.
func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}
