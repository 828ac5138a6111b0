package enrichment

import (
	"strings"
	"testing"

	"github.com/reddit-fleet/controller/internal/models"
)

func TestCombineTextFieldsFallsBackToBareNameWhenEmpty(t *testing.T) {
	doc := &models.SubredditMetadata{SubredditName: "golang"}
	got := combineTextFields(doc)
	if got != "Subreddit: golang" {
		t.Fatalf("expected bare fallback, got %q", got)
	}
}

func TestCombineTextFieldsJoinsPopulatedFields(t *testing.T) {
	doc := &models.SubredditMetadata{
		SubredditName:      "golang",
		Title:              "Go Programming",
		Description:        "All things Go",
		PublicDescription:  "A place for Go devs\nwith multiple lines",
		AdvertiserCategory: "technology",
	}
	got := combineTextFields(doc)
	if !strings.Contains(got, "Title: Go Programming") {
		t.Fatalf("expected title in combined text, got %q", got)
	}
	if strings.Contains(got, "\nwith multiple lines") {
		t.Fatalf("expected About field newlines stripped, got %q", got)
	}
	if !strings.Contains(got, "Category: technology") {
		t.Fatalf("expected category in combined text, got %q", got)
	}
}

func TestCombineTextForPersonaEmbeddingPrefersLLMSignals(t *testing.T) {
	doc := &models.SubredditMetadata{
		SubredditName: "golang",
		LLMEnrichment: &models.LLMEnrichment{
			AudienceProfile: "Go developers learning the language",
			AudienceTypes:   []string{"students", "professionals"},
		},
	}
	got := combineTextForPersonaEmbedding(doc)
	if !strings.HasPrefix(got, "Audience: Go developers learning the language") {
		t.Fatalf("expected audience profile to lead persona text, got %q", got)
	}
	if !strings.Contains(got, "User types: students, professionals") {
		t.Fatalf("expected audience types joined, got %q", got)
	}
}

func TestCombineTextForPersonaEmbeddingWithoutEnrichmentUsesTopicContextOnly(t *testing.T) {
	doc := &models.SubredditMetadata{SubredditName: "golang", PublicDescription: "about go"}
	got := combineTextForPersonaEmbedding(doc)
	if !strings.HasPrefix(got, "Subreddit: golang") {
		t.Fatalf("expected topic context to lead when no LLM enrichment present, got %q", got)
	}
}

func TestBuildAudiencePromptIncludesSubredditAndFieldLabels(t *testing.T) {
	doc := &models.SubredditMetadata{
		SubredditName:     "golang",
		Title:             "Go Programming",
		PublicDescription: "A subreddit for Go",
		SamplePostsTitles: []string{"post one", "post two"},
		RulesText:         "Be civil",
	}
	prompt := buildAudiencePrompt(doc)
	if !strings.Contains(prompt, "Subreddit: r/golang") {
		t.Fatalf("expected subreddit line, got %q", prompt)
	}
	if !strings.Contains(prompt, "\"audience_profile\"") {
		t.Fatalf("expected JSON schema hint in prompt, got %q", prompt)
	}
}
