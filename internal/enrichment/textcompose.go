package enrichment

import (
	"strings"

	"github.com/reddit-fleet/controller/internal/models"
)

// truncate cuts s to at most n runes, the way embedding_worker.py's
// `text[:n]` slicing does.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stripNewlines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sampleTitles(titles []string, limit int) string {
	if len(titles) > limit {
		titles = titles[:limit]
	}
	return strings.Join(titles, ", ")
}

// combineTextFields builds the text the combined embedding is computed
// over, grounded on original_source/embedding_worker.py's
// combine_text_fields: Title/Description/About/Guidelines/Rules/Topics/Category
// joined by newlines, falling back to "Subreddit: {name}" when empty.
func combineTextFields(doc *models.SubredditMetadata) string {
	var parts []string

	if doc.Title != "" {
		parts = append(parts, "Title: "+doc.Title)
	}
	if doc.Description != "" {
		parts = append(parts, "Description: "+doc.Description)
	}
	if about := doc.PublicDescription; about != "" {
		parts = append(parts, "About: "+stripNewlines(truncate(about, 500)))
	}
	if guidelines := doc.GuidelinesText; guidelines != "" {
		parts = append(parts, "Guidelines: "+stripNewlines(truncate(guidelines, 500)))
	}
	if doc.RulesText != "" {
		parts = append(parts, "Rules: "+stripNewlines(truncate(doc.RulesText, 500)))
	}
	if len(doc.SamplePostsTitles) > 0 {
		parts = append(parts, "Topics: "+truncate(sampleTitles(doc.SamplePostsTitles, 20), 1000))
	}
	if doc.AdvertiserCategory != "" {
		parts = append(parts, "Category: "+doc.AdvertiserCategory)
	}

	if len(parts) == 0 {
		return "Subreddit: " + doc.SubredditName
	}
	return strings.Join(parts, "\n")
}

func topN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// combineTextForPersonaEmbedding builds the text the persona embedding is
// computed over, grounded on embedding_worker.py's
// combine_text_for_persona_embedding: LLM-enriched signals first, then
// topic context, same join/fallback pattern as combineTextFields.
func combineTextForPersonaEmbedding(doc *models.SubredditMetadata) string {
	var parts []string

	if enrichment := doc.LLMEnrichment; enrichment != nil {
		if enrichment.AudienceProfile != "" {
			parts = append(parts, "Audience: "+enrichment.AudienceProfile)
		}
		if len(enrichment.AudienceTypes) > 0 {
			parts = append(parts, "User types: "+strings.Join(topN(enrichment.AudienceTypes, 6), ", "))
		}
		if len(enrichment.UserIntents) > 0 {
			parts = append(parts, "They come here to: "+strings.Join(topN(enrichment.UserIntents, 6), ", "))
		}
		if len(enrichment.PainPoints) > 0 {
			parts = append(parts, "Pain points: "+strings.Join(topN(enrichment.PainPoints, 6), ", "))
		}
		if len(enrichment.ContentThemes) > 0 {
			parts = append(parts, "Content themes: "+strings.Join(topN(enrichment.ContentThemes, 6), ", "))
		}
	}

	parts = append(parts, "Subreddit: "+doc.SubredditName)
	if about := doc.PublicDescription; about != "" {
		parts = append(parts, "About: "+stripNewlines(truncate(about, 300)))
	}
	if len(doc.SamplePostsTitles) > 0 {
		parts = append(parts, "Topics: "+truncate(sampleTitles(doc.SamplePostsTitles, 20), 500))
	}
	if doc.AdvertiserCategory != "" {
		parts = append(parts, "Category: "+doc.AdvertiserCategory)
	}

	if len(parts) == 0 {
		return "Subreddit: " + doc.SubredditName
	}
	return strings.Join(parts, "\n")
}

// buildAudiencePrompt renders the LLM enrichment prompt, grounded on
// original_source/discovery/llm_enrichment.py's _build_prompt.
func buildAudiencePrompt(doc *models.SubredditMetadata) string {
	var excerpt string
	if len(doc.SamplePostsTitles) > 0 {
		excerpt = truncate(sampleTitles(doc.SamplePostsTitles, 5), 600)
	}

	var b strings.Builder
	b.WriteString("Analyze this subreddit and extract audience information.\n\n")
	b.WriteString("Subreddit: r/" + doc.SubredditName + "\n")
	b.WriteString("Title: " + doc.Title + "\n")
	b.WriteString("Description: " + doc.PublicDescription + "\n")
	b.WriteString("Sample post titles: " + truncate(sampleTitles(doc.SamplePostsTitles, 20), 600) + "\n")
	b.WriteString("Sample post content: " + excerpt + "\n")
	b.WriteString("Rules: " + truncate(doc.RulesText, 400) + "\n\n")
	b.WriteString("Based on this information, identify:\n")
	b.WriteString("1. Who uses this subreddit (the target audience)\n")
	b.WriteString("2. What types of users frequent it\n")
	b.WriteString("3. What they come here to do\n")
	b.WriteString("4. What problems/pain points they discuss\n")
	b.WriteString("5. Common content themes\n\n")
	b.WriteString("Return a JSON object with these fields:\n")
	b.WriteString(`{
  "audience_profile": "A single sentence describing who uses this subreddit and why",
  "audience_types": ["list", "of", "user", "types"],
  "user_intents": ["what", "users", "come", "here", "to", "do"],
  "pain_points": ["problems", "users", "discuss"],
  "content_themes": ["common", "discussion", "themes"]
}`)
	b.WriteString("\n\nKeep each list to 3-6 items. Be specific and actionable.")
	return b.String()
}
