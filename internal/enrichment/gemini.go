package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const (
	geminiMaxRetries     = 3
	geminiBaseDelay      = 1 * time.Second
	geminiRequestTimeout = 30 * time.Second
)

// geminiClientHolder lazily constructs the shared *genai.Client behind a
// sync.Once, grounded on original_source's embedding_worker.py
// `_embedding_client_lock` double-checked-lazy pattern.
type geminiClientHolder struct {
	apiKey string
	once   sync.Once
	client *genai.Client
	err    error
}

func (h *geminiClientHolder) get(ctx context.Context) (*genai.Client, error) {
	h.once.Do(func() {
		h.client, h.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  h.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if h.err != nil {
			h.err = fmt.Errorf("create genai client: %w", h.err)
		}
	})
	return h.client, h.err
}

// GeminiEmbeddingProvider embeds text via Models.EmbedContent.
type GeminiEmbeddingProvider struct {
	holder *geminiClientHolder
	model  string
}

// NewGeminiEmbeddingProvider builds a provider; the underlying client is
// not constructed until the first Embed call.
func NewGeminiEmbeddingProvider(apiKey, model string) *GeminiEmbeddingProvider {
	return &GeminiEmbeddingProvider{holder: &geminiClientHolder{apiKey: apiKey}, model: model}
}

func (p *GeminiEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, string, error) {
	client, err := p.holder.get(ctx)
	if err != nil {
		return nil, "", err
	}

	var lastErr error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, "", err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, geminiRequestTimeout)
		result, err := client.Models.EmbedContent(reqCtx, p.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: embed content: %w", attempt+1, err)
			continue
		}
		if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
			lastErr = fmt.Errorf("attempt %d: empty embedding response", attempt+1)
			continue
		}

		return result.Embeddings[0].Values, p.model, nil
	}

	return nil, "", fmt.Errorf("all %d embedding attempts failed: %w", geminiMaxRetries, lastErr)
}

// GeminiChatProvider generates the audience-profile JSON via
// Models.GenerateContent, grounded on gemini.go's GenerateContentTyped.
type GeminiChatProvider struct {
	holder *geminiClientHolder
	model  string
}

func NewGeminiChatProvider(apiKey, model string) *GeminiChatProvider {
	return &GeminiChatProvider{holder: &geminiClientHolder{apiKey: apiKey}, model: model}
}

func (p *GeminiChatProvider) GenerateAudienceProfile(ctx context.Context, prompt string) (*AudienceProfile, error) {
	client, err := p.holder.get(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	var lastErr error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, geminiRequestTimeout)
		result, err := client.Models.GenerateContent(reqCtx, p.model, genai.Text(prompt), config)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: generate content: %w", attempt+1, err)
			continue
		}

		text := result.Text()
		if text == "" {
			lastErr = fmt.Errorf("attempt %d: empty response from API", attempt+1)
			continue
		}

		clean := sanitizeJSONResponse(text)
		var profile AudienceProfile
		if err := json.Unmarshal([]byte(clean), &profile); err != nil {
			slog.Error("failed to unmarshal gemini audience profile",
				"attempt", attempt+1, "error", err, "raw_response", text)
			lastErr = fmt.Errorf("attempt %d: parse JSON response: %w", attempt+1, err)
			continue
		}

		return &profile, nil
	}

	return nil, fmt.Errorf("all %d chat attempts failed: %w", geminiMaxRetries, lastErr)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	delay := geminiBaseDelay * time.Duration(1<<uint(attempt-1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// sanitizeJSONResponse strips markdown code-fence wrappers Gemini commonly
// adds around JSON replies, grounded on gemini.go's sanitizeJSONResponse.
func sanitizeJSONResponse(text string) string {
	text = strings.TrimSpace(text)

	if strings.Contains(text, "```json") {
		if start := strings.Index(text, "```json"); start != -1 {
			text = text[start+len("```json"):]
			if end := strings.Index(text, "```"); end != -1 {
				text = text[:end]
			}
			text = strings.TrimSpace(text)
		}
	} else if strings.Contains(text, "```") {
		if start := strings.Index(text, "```"); start != -1 {
			text = text[start+3:]
			if end := strings.Index(text, "```"); end != -1 {
				text = text[:end]
			}
			text = strings.TrimSpace(text)
		}
	}

	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		if start := strings.Index(text, "{"); start != -1 {
			text = text[start:]
		}
	}

	return text
}
