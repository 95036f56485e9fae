// Package identity discovers recurring acoustic identities in a stream of
// audio frames with online nearest-centroid matching.
//
// Every non-silent frame is compared against the confirmed (Active)
// identities. A close enough match pulls that centroid toward the frame and
// reinforces it; every other Active identity decays and is dropped once its
// strength reaches zero. Frames that match nothing are tracked as Pending
// identities, which an operator can approve into Active ones or reject.
// Pending identities that go unmatched for PendingTTL are forgotten.
//
// # Usage
//
//	m := identity.New(identity.Config{}, identity.WithObserver(journal))
//
//	res := m.Process(frame)          // once per frame
//	newID, ok := m.Approve(pendingID) // operator action
//	status := m.Snapshot()
//
// All methods are safe for concurrent use. They are serialized by a single
// mutex, so frames from several streams interleave but are never processed
// concurrently.
package identity

import (
	"math"
	"sync"
	"time"

	"noise-lab/features"
	"noise-lab/utils"
)

type Option func(*Model)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithIDGenerator replaces the random short id generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Model) { m.newID = gen }
}

// WithLearning sets the initial learning flag. Learning is on by default.
func WithLearning(enabled bool) Option {
	return func(m *Model) { m.learning = enabled }
}

func WithObserver(o Observer) Option {
	return func(m *Model) { m.observers = append(m.observers, o) }
}

// Model owns the Active and Pending populations.
type Model struct {
	mu        sync.Mutex
	cfg       Config
	now       func() time.Time
	newID     func() string
	learning  bool
	seq       uint64 // bumped by every frame and every admin change
	active    []*Active
	pending   []*Pending
	observers []Observer
}

func New(cfg Config, opts ...Option) *Model {
	cfg.defaults()
	m := &Model{
		cfg:      cfg,
		now:      time.Now,
		newID:    utils.NewShortID,
		learning: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration, defaults applied.
func (m *Model) Config() Config {
	return m.cfg
}

// AddObserver registers o for lifecycle events.
func (m *Model) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Process runs one frame through matching, learning, decay and pruning and
// reports the model state afterwards.
func (m *Model) Process(frame []float32) Result {
	m.mu.Lock()

	now := m.now()
	m.seq++
	vec, raw := features.Extract(frame, m.cfg.SampleRate)

	var events []Event
	var matched *Active
	closest := math.Inf(1)

	if raw.Energy > m.cfg.MinEnergy {
		for _, a := range m.active {
			d := features.Distance(a.Centroid, vec)
			if d < closest {
				closest = d
				if d < m.cfg.MatchThreshold {
					matched = a
				}
			}
		}

		switch {
		case matched != nil && m.learning:
			matched.absorb(vec, m.cfg.ActiveLearningRate, now)
		case matched == nil && m.learning:
			if e, ok := m.learnPendingLocked(vec, closest, now); ok {
				events = append(events, e)
			}
		}
	}

	events = append(events, m.decayLocked(matched, now)...)
	events = append(events, m.prunePendingLocked(now)...)

	res := m.resultLocked(raw, matched, closest)
	observers := m.observers
	m.mu.Unlock()

	notify(observers, events)
	return res
}

// learnPendingLocked matches vec against the Pending population, or starts a
// new Pending identity when vec is also far from every Active one.
func (m *Model) learnPendingLocked(vec features.Vector, closestActive float64, now time.Time) (Event, bool) {
	var hit *Pending
	closest := math.Inf(1)
	for _, p := range m.pending {
		d := features.Distance(p.Centroid, vec)
		if d < closest {
			closest = d
			if d < m.cfg.MatchThreshold {
				hit = p
			}
		}
	}

	if hit != nil {
		hit.absorb(vec, m.cfg.PendingLearningRate, now)
		return Event{}, false
	}
	if closestActive <= m.cfg.MatchThreshold {
		return Event{}, false
	}

	p := newPending(m.newID(), vec, now)
	m.pending = append(m.pending, p)
	return Event{Kind: EventPendingCreated, IdentityID: p.ID, Observations: 1, At: now}, true
}

func (m *Model) decayLocked(matched *Active, now time.Time) []Event {
	var events []Event
	kept := m.active[:0]
	for _, a := range m.active {
		if a != matched {
			a.decay(m.cfg.DecayRate)
		}
		if a.Strength > 0 {
			kept = append(kept, a)
			continue
		}
		events = append(events, Event{
			Kind:         EventActiveExpired,
			IdentityID:   a.ID,
			Observations: a.Observations,
			Strength:     a.Strength,
			At:           now,
		})
	}
	clear(m.active[len(kept):])
	m.active = kept
	return events
}

func (m *Model) prunePendingLocked(now time.Time) []Event {
	var events []Event
	kept := m.pending[:0]
	for _, p := range m.pending {
		if !p.expired(now, m.cfg.PendingTTL) {
			kept = append(kept, p)
			continue
		}
		events = append(events, Event{
			Kind:         EventPendingExpired,
			IdentityID:   p.ID,
			Observations: p.Observations,
			At:           now,
		})
	}
	clear(m.pending[len(kept):])
	m.pending = kept
	return events
}

func (m *Model) resultLocked(raw features.RawMetrics, matched *Active, closest float64) Result {
	res := Result{
		Features:     raw,
		ActiveCount:  len(m.active),
		Confidence:   1 - math.Min(closest, 1),
		PendingCount: len(m.pending),
		Seq:          m.seq,
	}
	for _, a := range m.active {
		res.Stability += a.Strength
	}
	if matched != nil {
		res.MatchedID = matched.ID
	}
	return res
}

// Approve promotes the Pending identity pendingID to a new Active identity
// and returns the new id. ok is false when no such Pending identity exists.
func (m *Model) Approve(pendingID string) (newID string, ok bool) {
	m.mu.Lock()

	idx := m.pendingIndexLocked(pendingID)
	if idx < 0 {
		m.mu.Unlock()
		return "", false
	}

	now := m.now()
	m.seq++
	p := m.pending[idx]
	a := p.promote(m.newID(), m.cfg.PromotedStrength, now)
	m.active = append(m.active, a)
	m.pending = append(m.pending[:idx], m.pending[idx+1:]...)

	e := Event{
		Kind:         EventPromoted,
		IdentityID:   a.ID,
		SourceID:     p.ID,
		Observations: a.Observations,
		Strength:     a.Strength,
		At:           now,
	}
	observers := m.observers
	m.mu.Unlock()

	notify(observers, []Event{e})
	return a.ID, true
}

// Reject discards the Pending identity pendingID. It reports whether one was
// removed.
func (m *Model) Reject(pendingID string) bool {
	m.mu.Lock()

	idx := m.pendingIndexLocked(pendingID)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}

	m.seq++
	p := m.pending[idx]
	m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
	e := Event{
		Kind:         EventPendingRejected,
		IdentityID:   p.ID,
		Observations: p.Observations,
		At:           m.now(),
	}
	observers := m.observers
	m.mu.Unlock()

	notify(observers, []Event{e})
	return true
}

// Reset forgets every identity. The learning flag is left alone.
func (m *Model) Reset() {
	m.mu.Lock()

	e := Event{
		Kind:         EventReset,
		Observations: len(m.active) + len(m.pending),
		At:           m.now(),
	}
	m.active = nil
	m.pending = nil
	m.seq++
	observers := m.observers
	m.mu.Unlock()

	notify(observers, []Event{e})
}

func (m *Model) SetLearning(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning = enabled
}

func (m *Model) Learning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.learning
}

func (m *Model) pendingIndexLocked(id string) int {
	for i, p := range m.pending {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func notify(observers []Observer, events []Event) {
	for _, e := range events {
		for _, o := range observers {
			o.Observe(e)
		}
	}
}
