package identity

import "time"

// Config controls the clustering engine. Zero fields take their defaults.
type Config struct {
	// MatchThreshold is the strict upper bound on the Euclidean distance
	// between a frame vector and a centroid for the frame to count as a match.
	// Default: 0.35.
	MatchThreshold float64

	// MinEnergy is the energy at or below which a frame is treated as silence
	// and neither matched nor learned from. Default: 0.01. Zero reads as
	// unset, so a near-zero gate needs a small positive value.
	MinEnergy float64

	// DecayRate is subtracted from every unmatched Active identity's strength
	// per processed frame. Default: 0.005.
	DecayRate float64

	// SampleRate is used for spectral band edges. Default: 44100.
	SampleRate int

	// PendingTTL is how long a Pending identity survives without a match.
	// Default: 30s.
	PendingTTL time.Duration

	// ActiveLearningRate and PendingLearningRate are the EMA weights given to
	// a matching frame. Defaults: 0.1 and 0.2.
	ActiveLearningRate  float64
	PendingLearningRate float64

	// PromotedStrength is the starting strength of an approved identity.
	// Default: 5.0.
	PromotedStrength float64
}

func (c *Config) defaults() {
	if c.MatchThreshold == 0 {
		c.MatchThreshold = 0.35
	}
	if c.MinEnergy == 0 {
		c.MinEnergy = 0.01
	}
	if c.DecayRate == 0 {
		c.DecayRate = 0.005
	}
	if c.SampleRate == 0 {
		c.SampleRate = 44100
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = 30 * time.Second
	}
	if c.ActiveLearningRate == 0 {
		c.ActiveLearningRate = 0.1
	}
	if c.PendingLearningRate == 0 {
		c.PendingLearningRate = 0.2
	}
	if c.PromotedStrength == 0 {
		c.PromotedStrength = 5.0
	}
}
