package identity

import (
	"encoding/json"
	"time"

	"noise-lab/features"
)

// Result describes the model after one processed frame.
type Result struct {
	Features     features.RawMetrics `json:"features"`
	Stability    float64             `json:"stability"` // summed Active strength
	ActiveCount  int                 `json:"representation_count"`
	MatchedID    string              `json:"current_identity_id"`
	Confidence   float64             `json:"match_confidence"`
	PendingCount int                 `json:"pending_count"`

	// Seq orders results and snapshots of one model; a higher value reflects
	// a later state.
	Seq uint64 `json:"-"`
}

// MarshalJSON writes an unmatched frame's identity as null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	var id *string
	if r.MatchedID != "" {
		id = &r.MatchedID
	}
	return json.Marshal(struct {
		plain
		MatchedID *string `json:"current_identity_id"`
	}{plain(r), id})
}

type ActiveView struct {
	ID           string             `json:"id"`
	Strength     float64            `json:"strength"`
	Stability    float64            `json:"stability"`
	Observations int                `json:"observations"`
	LastSeen     float64            `json:"last_seen"` // unix seconds
	Structure    features.Structure `json:"structure"`
}

type PendingView struct {
	ID           string             `json:"id"`
	Observations int                `json:"observations"`
	AgeSeconds   float64            `json:"age_seconds"`
	LastSeen     float64            `json:"last_seen"`
	Structure    features.Structure `json:"structure"`
}

// Status is a consistent copy of both populations.
type Status struct {
	Active          []ActiveView  `json:"active_identities"`
	Pending         []PendingView `json:"pending_identities"`
	LearningEnabled bool          `json:"learning_enabled"`
	Seq             uint64        `json:"-"`
}

// Profile is the full record of a single identity.
type Profile struct {
	ID           string             `json:"id"`
	State        string             `json:"state"`
	Centroid     features.Vector    `json:"centroid"`
	Structure    features.Structure `json:"structure"`
	Observations int                `json:"observations"`
	Strength     float64            `json:"strength,omitempty"`
	AgeSeconds   float64            `json:"age_seconds,omitempty"`
}

const (
	StateActive  = "active"
	StatePending = "pending"
)

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Snapshot copies the current populations in creation order.
func (m *Model) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	status := Status{
		Active:          make([]ActiveView, 0, len(m.active)),
		Pending:         make([]PendingView, 0, len(m.pending)),
		LearningEnabled: m.learning,
		Seq:             m.seq,
	}
	for _, a := range m.active {
		status.Active = append(status.Active, ActiveView{
			ID:           a.ID,
			Strength:     a.Strength,
			Stability:    a.Stability,
			Observations: a.Observations,
			LastSeen:     unixSeconds(a.LastSeen),
			Structure:    features.StructureOf(a.Centroid),
		})
	}
	for _, p := range m.pending {
		status.Pending = append(status.Pending, PendingView{
			ID:           p.ID,
			Observations: p.Observations,
			AgeSeconds:   now.Sub(p.FirstSeen).Seconds(),
			LastSeen:     unixSeconds(p.LastSeen),
			Structure:    features.StructureOf(p.Centroid),
		})
	}
	return status
}

// Lookup returns the identity with the given id, Active or Pending.
func (m *Model) Lookup(id string) (Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.active {
		if a.ID == id {
			return Profile{
				ID:           a.ID,
				State:        StateActive,
				Centroid:     a.Centroid,
				Structure:    features.StructureOf(a.Centroid),
				Observations: a.Observations,
				Strength:     a.Strength,
			}, true
		}
	}
	for _, p := range m.pending {
		if p.ID == id {
			return Profile{
				ID:           p.ID,
				State:        StatePending,
				Centroid:     p.Centroid,
				Structure:    features.StructureOf(p.Centroid),
				Observations: p.Observations,
				AgeSeconds:   m.now().Sub(p.FirstSeen).Seconds(),
			}, true
		}
	}
	return Profile{}, false
}
