package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"noise-lab/features"
	"noise-lab/identity"
)

const DefaultModel = "gemini-2.5-flash"

var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")

const systemPrompt = `You are the listening assistant of an acoustic identity lab.
The lab clusters short audio frames by a handful of signal measurements and
keeps a centroid per recurring sound source. Given one centroid, say in plain
language what kind of sound it most likely is (hum, speech, music, hiss,
clicks, tone, ...) and which measurements support that guess.

Keep it under 120 words. Do not invent measurements that are not given.`

// GeminiClient describes identities in plain language.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// DescribeIdentity asks the model for a short description of p.
func (g *GeminiClient) DescribeIdentity(ctx context.Context, p identity.Profile) (string, error) {
	userContent := genai.NewContentFromText(buildIdentityPrompt(p), genai.RoleUser)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleModel),
		Temperature:       genai.Ptr(float32(0.4)),
		TopP:              genai.Ptr(float32(0.8)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   int32(256),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{userContent}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(strings.ReplaceAll(resp.Text(), "*", ""))
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

func buildIdentityPrompt(p identity.Profile) string {
	m := features.Approximate(p.Centroid)

	var b strings.Builder
	fmt.Fprintf(&b, "Identity %s (%s), %d observations", p.ID, p.State, p.Observations)
	if p.State == identity.StateActive {
		fmt.Fprintf(&b, ", strength %.2f", p.Strength)
	}
	b.WriteString(".\n\nCentroid measurements (frames of ~93 ms):\n")
	fmt.Fprintf(&b, "- energy (mean square amplitude): %.4f\n", m.Energy)
	fmt.Fprintf(&b, "- variance: %.4f\n", m.Variance)
	fmt.Fprintf(&b, "- amplitude histogram entropy: %.2f bits of max 4.32\n", m.Entropy)
	fmt.Fprintf(&b, "- zero crossing rate: %.3f\n", m.ZCR)
	fmt.Fprintf(&b, "- spectral share below 400 Hz: %.1f%%\n", m.Low*100)
	fmt.Fprintf(&b, "- spectral share 400-2000 Hz: %.1f%%\n", m.Mid*100)
	fmt.Fprintf(&b, "- spectral share above 2000 Hz: %.1f%%\n", m.High*100)
	fmt.Fprintf(&b, "- envelope peak jitter (log scale, capped at 10): %.2f\n", m.Jitter)
	return b.String()
}
