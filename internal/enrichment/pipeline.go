package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/reddit-fleet/controller/internal/errorreporting"
	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage"
)

// Pipeline runs the three-step enrichment over one pending document:
// combined embedding (required) -> LLM audience profile (best-effort) ->
// persona embedding (best-effort), per spec §4.5.
type Pipeline struct {
	store    storage.StorageInterface
	embedder EmbeddingProvider
	chat     ChatProvider
	log      *slog.Logger
}

// NewPipeline builds a Pipeline. chat may be nil, in which case the LLM
// audience-profile and persona-embedding steps are skipped entirely.
func NewPipeline(store storage.StorageInterface, embedder EmbeddingProvider, chat ChatProvider) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		chat:     chat,
		log:      logger.WithComponent("enrichment"),
	}
}

// Run executes the pipeline for a single document. The combined embedding
// is required for the document to reach EmbeddingComplete; LLM enrichment
// and the persona embedding are attempted best-effort and never block
// completion (spec §4.5: "combined_embedding required for complete, the
// other two best-effort").
func (p *Pipeline) Run(ctx context.Context, doc *models.SubredditMetadata) error {
	combinedText := combineTextFields(doc)
	vector, model, err := p.embedder.Embed(ctx, combinedText)
	if err != nil {
		p.log.Error("combined embedding failed", "subreddit", doc.SubredditName, "error", err)
		errorreporting.CaptureError(err, map[string]string{"component": "enrichment", "step": "combined_embedding"})
		return p.store.MarkEmbeddingFailed(ctx, doc.SubredditName, err.Error())
	}

	combined := models.Embedding{Vector: vector, Model: model, Dimensions: len(vector), GeneratedAt: now()}
	if err := p.store.SetCombinedEmbedding(ctx, doc.SubredditName, combined); err != nil {
		return err
	}
	doc.Embeddings.CombinedEmbedding = &combined

	if p.chat != nil {
		p.runLLMEnrichment(ctx, doc)
		p.runPersonaEmbedding(ctx, doc)
	}

	return p.store.MarkEmbeddingComplete(ctx, doc.SubredditName)
}

func (p *Pipeline) runLLMEnrichment(ctx context.Context, doc *models.SubredditMetadata) {
	prompt := buildAudiencePrompt(doc)
	profile, err := p.chat.GenerateAudienceProfile(ctx, prompt)
	if err != nil {
		p.log.Warn("llm audience enrichment failed, continuing best-effort", "subreddit", doc.SubredditName, "error", err)
		errorreporting.CaptureError(err, map[string]string{"component": "enrichment", "step": "llm_enrichment"})
		return
	}

	enrichment := models.LLMEnrichment{
		AudienceProfile: profile.AudienceProfile,
		AudienceTypes:   profile.AudienceTypes,
		UserIntents:     profile.UserIntents,
		PainPoints:      profile.PainPoints,
		ContentThemes:   profile.ContentThemes,
		GeneratedAt:     now(),
	}
	if err := p.store.SetLLMEnrichment(ctx, doc.SubredditName, enrichment); err != nil {
		p.log.Warn("failed to persist llm enrichment", "subreddit", doc.SubredditName, "error", err)
		return
	}
	doc.LLMEnrichment = &enrichment
}

func (p *Pipeline) runPersonaEmbedding(ctx context.Context, doc *models.SubredditMetadata) {
	if doc.LLMEnrichment == nil {
		return
	}

	text := combineTextForPersonaEmbedding(doc)
	vector, model, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.log.Warn("persona embedding failed, continuing best-effort", "subreddit", doc.SubredditName, "error", err)
		errorreporting.CaptureError(err, map[string]string{"component": "enrichment", "step": "persona_embedding"})
		return
	}

	persona := models.Embedding{Vector: vector, Model: model, Dimensions: len(vector), GeneratedAt: now()}
	if err := p.store.SetPersonaEmbedding(ctx, doc.SubredditName, persona); err != nil {
		p.log.Warn("failed to persist persona embedding", "subreddit", doc.SubredditName, "error", err)
	}
}

// now is a seam so tests can stub out the clock without reaching for
// time.Now directly in the pipeline body.
var now = time.Now
