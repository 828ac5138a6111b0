// Package enrichment implements the Enrichment Worker: a three-step
// pipeline (combined embedding -> LLM audience profile -> persona
// embedding) run over pending SubredditMetadata documents, on a cron tick
// (spec §4.5).
package enrichment

import "context"

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, string, error)
}

// ChatProvider turns a prompt into an audience-profile completion.
type ChatProvider interface {
	GenerateAudienceProfile(ctx context.Context, prompt string) (*AudienceProfile, error)
}

// AudienceProfile is the chat provider's structured JSON reply, grounded
// on meows' GenerateContentTyped[T] generic-response pattern.
type AudienceProfile struct {
	AudienceProfile string   `json:"audience_profile"`
	AudienceTypes   []string `json:"audience_types"`
	UserIntents     []string `json:"user_intents"`
	PainPoints      []string `json:"pain_points"`
	ContentThemes   []string `json:"content_themes"`
}
