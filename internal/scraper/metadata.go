package scraper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/redditclient"
)

type rawAboutData struct {
	Title              string `json:"title"`
	PublicDescription  string `json:"public_description"`
	Description        string `json:"description"`
	SubmitText         string `json:"submit_text"`
	AdvertiserCategory string `json:"advertiser_category"`
}

type rawRule struct {
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
}

// parseSubredditMetadata builds a models.SubredditMetadata from the about,
// rules, and sample-posts responses (spec §4.3 Phase C).
func parseSubredditMetadata(subreddit string, aboutData, rulesData, sampleData json.RawMessage) (*models.SubredditMetadata, error) {
	var about struct {
		Data rawAboutData `json:"data"`
	}
	if err := json.Unmarshal(aboutData, &about); err != nil {
		return nil, fmt.Errorf("parse about JSON: %w", err)
	}

	var rulesText string
	if len(rulesData) > 0 {
		var rules struct {
			Rules []rawRule `json:"rules"`
		}
		if err := json.Unmarshal(rulesData, &rules); err == nil {
			var parts []string
			for _, r := range rules.Rules {
				parts = append(parts, fmt.Sprintf("%s: %s", r.ShortName, r.Description))
			}
			rulesText = strings.Join(parts, "\n")
		}
	}

	var sampleTitles []string
	if len(sampleData) > 0 {
		posts, _, err := redditclient.ParseListing(sampleData, subreddit, "top")
		if err == nil {
			for i, p := range posts {
				if i >= 20 {
					break
				}
				sampleTitles = append(sampleTitles, p.Title)
			}
		}
	}

	return &models.SubredditMetadata{
		SubredditName:      subreddit,
		Title:              about.Data.Title,
		PublicDescription:  about.Data.PublicDescription,
		Description:        about.Data.Description,
		GuidelinesText:     about.Data.SubmitText,
		RulesText:          rulesText,
		SamplePostsTitles:  sampleTitles,
		AdvertiserCategory: about.Data.AdvertiserCategory,
	}, nil
}
