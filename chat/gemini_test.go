package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"noise-lab/features"
	"noise-lab/identity"
)

func TestBuildIdentityPrompt(t *testing.T) {
	t.Parallel()

	p := identity.Profile{
		ID:           "ab12cd34",
		State:        identity.StateActive,
		Observations: 42,
		Strength:     7.5,
		Centroid: features.Build(features.RawMetrics{
			Energy: 0.125, Variance: 0.125, Entropy: 3.5, ZCR: 0.05,
			Low: 0.9, Mid: 0.08, High: 0.02, Jitter: 1.2,
		}),
	}

	prompt := buildIdentityPrompt(p)
	for _, want := range []string{
		"Identity ab12cd34 (active), 42 observations, strength 7.50",
		"energy (mean square amplitude): 0.1250",
		"below 400 Hz: 90.0%",
		"400-2000 Hz: 8.0%",
		"above 2000 Hz: 2.0%",
		"zero crossing rate: 0.050",
		"jitter (log scale, capped at 10): 1.20",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPendingPromptOmitsStrength(t *testing.T) {
	t.Parallel()

	prompt := buildIdentityPrompt(identity.Profile{ID: "p1", State: identity.StatePending, Observations: 3})
	if strings.Contains(prompt, "strength") {
		t.Errorf("pending prompt should not mention strength:\n%s", prompt)
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGeminiClient(context.Background(), "", "")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
