package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage/storagemock"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, string, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, string, error) {
	return m.embedFunc(ctx, text)
}

type mockChat struct {
	generateFunc func(ctx context.Context, prompt string) (*AudienceProfile, error)
}

func (m *mockChat) GenerateAudienceProfile(ctx context.Context, prompt string) (*AudienceProfile, error) {
	return m.generateFunc(ctx, prompt)
}

func testDoc() *models.SubredditMetadata {
	return &models.SubredditMetadata{
		SubredditName:     "golang",
		Title:             "Go Programming",
		PublicDescription: "A subreddit for Go developers",
		SamplePostsTitles: []string{"generics are here", "new release"},
	}
}

func TestPipelineRunMarksCompleteWhenAllStepsSucceed(t *testing.T) {
	var setCombinedCalled, setLLMCalled, setPersonaCalled, markCompleteCalled bool

	store := &storagemock.Store{
		SetCombinedEmbeddingFunc: func(ctx context.Context, name string, e models.Embedding) error {
			setCombinedCalled = true
			if len(e.Vector) != 3 {
				t.Fatalf("expected combined embedding vector length 3, got %d", len(e.Vector))
			}
			return nil
		},
		SetLLMEnrichmentFunc: func(ctx context.Context, name string, e models.LLMEnrichment) error {
			setLLMCalled = true
			return nil
		},
		SetPersonaEmbeddingFunc: func(ctx context.Context, name string, e models.Embedding) error {
			setPersonaCalled = true
			return nil
		},
		MarkEmbeddingCompleteFunc: func(ctx context.Context, name string) error {
			markCompleteCalled = true
			return nil
		},
	}

	embedder := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, string, error) {
		return []float32{0.1, 0.2, 0.3}, "text-embedding-004", nil
	}}
	chat := &mockChat{generateFunc: func(ctx context.Context, prompt string) (*AudienceProfile, error) {
		return &AudienceProfile{AudienceProfile: "Go developers", AudienceTypes: []string{"engineers"}}, nil
	}}

	pipeline := NewPipeline(store, embedder, chat)
	if err := pipeline.Run(context.Background(), testDoc()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !setCombinedCalled || !setLLMCalled || !setPersonaCalled || !markCompleteCalled {
		t.Fatalf("expected all steps to run: combined=%v llm=%v persona=%v complete=%v",
			setCombinedCalled, setLLMCalled, setPersonaCalled, markCompleteCalled)
	}
}

func TestPipelineRunFailsDocumentWhenCombinedEmbeddingErrors(t *testing.T) {
	var failedCalled bool
	store := &storagemock.Store{
		MarkEmbeddingFailedFunc: func(ctx context.Context, name string, errMsg string) error {
			failedCalled = true
			if errMsg == "" {
				t.Fatalf("expected non-empty error message")
			}
			return nil
		},
	}

	embedder := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, string, error) {
		return nil, "", errors.New("provider unavailable")
	}}

	pipeline := NewPipeline(store, embedder, nil)
	if err := pipeline.Run(context.Background(), testDoc()); err != nil {
		t.Fatalf("Run should surface MarkEmbeddingFailed's return, not its own error: %v", err)
	}
	if !failedCalled {
		t.Fatalf("expected MarkEmbeddingFailed to be called")
	}
}

func TestPipelineRunCompletesDespiteLLMEnrichmentFailure(t *testing.T) {
	var markCompleteCalled, setPersonaCalled bool
	store := &storagemock.Store{
		SetCombinedEmbeddingFunc: func(ctx context.Context, name string, e models.Embedding) error { return nil },
		SetPersonaEmbeddingFunc: func(ctx context.Context, name string, e models.Embedding) error {
			setPersonaCalled = true
			return nil
		},
		MarkEmbeddingCompleteFunc: func(ctx context.Context, name string) error {
			markCompleteCalled = true
			return nil
		},
	}

	embedder := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, string, error) {
		return []float32{0.1}, "text-embedding-004", nil
	}}
	chat := &mockChat{generateFunc: func(ctx context.Context, prompt string) (*AudienceProfile, error) {
		return nil, errors.New("llm timed out")
	}}

	pipeline := NewPipeline(store, embedder, chat)
	if err := pipeline.Run(context.Background(), testDoc()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !markCompleteCalled {
		t.Fatalf("expected MarkEmbeddingComplete to be called despite LLM failure")
	}
	if setPersonaCalled {
		t.Fatalf("persona embedding should be skipped when LLM enrichment fails")
	}
}

func TestPipelineRunSkipsLLMStepsWhenChatProviderIsNil(t *testing.T) {
	var markCompleteCalled bool
	store := &storagemock.Store{
		SetCombinedEmbeddingFunc: func(ctx context.Context, name string, e models.Embedding) error { return nil },
		MarkEmbeddingCompleteFunc: func(ctx context.Context, name string) error {
			markCompleteCalled = true
			return nil
		},
	}
	embedder := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, string, error) {
		return []float32{0.1}, "text-embedding-004", nil
	}}

	pipeline := NewPipeline(store, embedder, nil)
	if err := pipeline.Run(context.Background(), testDoc()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !markCompleteCalled {
		t.Fatalf("expected MarkEmbeddingComplete to be called")
	}
}
