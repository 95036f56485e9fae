package identity

import (
	"time"

	"noise-lab/features"
)

const (
	initialStrength  = 1.0
	staticStability  = 1.0
	strengthPerMatch = 1.0
)

// Active is a confirmed identity.
type Active struct {
	ID           string
	Centroid     features.Vector
	Strength     float64
	Stability    float64
	LastSeen     time.Time
	Observations int
}

func newActive(id string, centroid features.Vector, now time.Time) *Active {
	return &Active{
		ID:           id,
		Centroid:     centroid,
		Strength:     initialStrength,
		Stability:    staticStability,
		LastSeen:     now,
		Observations: 1,
	}
}

func (a *Active) absorb(v features.Vector, rate float64, now time.Time) {
	a.Centroid = a.Centroid.Blend(v, rate)
	a.Strength += strengthPerMatch
	a.Observations++
	a.LastSeen = now
}

func (a *Active) decay(rate float64) {
	a.Strength -= rate
}

// Pending is a provisional identity awaiting operator review.
type Pending struct {
	ID           string
	Centroid     features.Vector
	Observations int
	FirstSeen    time.Time
	LastSeen     time.Time
}

func newPending(id string, centroid features.Vector, now time.Time) *Pending {
	return &Pending{
		ID:           id,
		Centroid:     centroid,
		Observations: 1,
		FirstSeen:    now,
		LastSeen:     now,
	}
}

func (p *Pending) absorb(v features.Vector, rate float64, now time.Time) {
	p.Centroid = p.Centroid.Blend(v, rate)
	p.Observations++
	p.LastSeen = now
}

// promote builds the Active that replaces p. The centroid and observation
// count carry over.
func (p *Pending) promote(id string, strength float64, now time.Time) *Active {
	a := newActive(id, p.Centroid, now)
	a.Strength = strength
	a.Observations = p.Observations
	return a
}

func (p *Pending) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastSeen) >= ttl
}
