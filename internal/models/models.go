// Package models holds the bson/json-tagged document shapes shared across
// the fleet controller's collections.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScraperStatus is the lifecycle state of a Scraper Instance.
type ScraperStatus string

const (
	StatusStarting   ScraperStatus = "starting"
	StatusRunning    ScraperStatus = "running"
	StatusStopped    ScraperStatus = "stopped"
	StatusFailed     ScraperStatus = "failed"
	StatusError      ScraperStatus = "error"
	StatusRestarting ScraperStatus = "restarting"
)

// ScraperType distinguishes the two kinds of scraper instance.
type ScraperType string

const (
	ScraperTypePosts    ScraperType = "posts"
	ScraperTypeComments ScraperType = "comments"
)

// ScraperInstance is identified by (SubredditPrimary, ScraperType).
type ScraperInstance struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SubredditPrimary string             `bson:"subreddit_primary" json:"subreddit_primary"`
	ScraperType      ScraperType        `bson:"scraper_type" json:"scraper_type"`
	Subreddits       []string           `bson:"subreddits" json:"subreddits"`

	PostsLimit      int      `bson:"posts_limit" json:"posts_limit"`
	Interval        int      `bson:"interval_seconds" json:"interval_seconds"`
	CommentBatch    int      `bson:"comment_batch" json:"comment_batch"`
	SortingMethods  []string `bson:"sorting_methods" json:"sorting_methods"`
	MaxCommentDepth int      `bson:"max_comment_depth" json:"max_comment_depth"`

	CredentialHandle string `bson:"credential_handle" json:"credential_handle"`
	AutoRestart      bool   `bson:"auto_restart" json:"auto_restart"`

	Status          ScraperStatus `bson:"status" json:"status"`
	ContainerHandle string        `bson:"container_handle,omitempty" json:"container_handle,omitempty"`
	RestartCount    int           `bson:"restart_count" json:"restart_count"`
	LastError       string        `bson:"last_error,omitempty" json:"last_error,omitempty"`

	PendingScrape []string `bson:"pending_scrape,omitempty" json:"pending_scrape,omitempty"`

	Metrics ScraperMetrics `bson:"metrics" json:"metrics"`

	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	LastUpdated time.Time `bson:"last_updated" json:"last_updated"`
}

// ScraperMetrics is the worker-owned embedded metrics document (§3:
// "the Worker is the sole writer of metrics.*").
type ScraperMetrics struct {
	TotalPostsCollected    int64     `bson:"total_posts_collected" json:"total_posts_collected"`
	TotalCommentsCollected int64     `bson:"total_comments_collected" json:"total_comments_collected"`
	CycleCount             int64     `bson:"cycle_count" json:"cycle_count"`
	LastCyclePosts         int       `bson:"last_cycle_posts" json:"last_cycle_posts"`
	LastCycleComments      int       `bson:"last_cycle_comments" json:"last_cycle_comments"`
	AvgCycleDurationMS     float64   `bson:"avg_cycle_duration_ms" json:"avg_cycle_duration_ms"`
	PostsPerHour           float64   `bson:"posts_per_hour" json:"posts_per_hour"`
	CommentsPerHour        float64   `bson:"comments_per_hour" json:"comments_per_hour"`
	LastCycleAt            time.Time `bson:"last_cycle_at" json:"last_cycle_at"`
}

// Post is a Reddit submission, keyed on the Reddit-assigned PostID.
type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PostID    string             `bson:"post_id" json:"post_id"`
	Subreddit string             `bson:"subreddit" json:"subreddit"`
	Author    string             `bson:"author" json:"author"`
	Title     string             `bson:"title" json:"title"`
	Body      string             `bson:"body" json:"body"`
	Score     int                `bson:"score" json:"score"`
	NumComments int              `bson:"num_comments" json:"num_comments"`
	URL       string             `bson:"url" json:"url"`
	Flair     string             `bson:"flair,omitempty" json:"flair,omitempty"`
	SortMethod string            `bson:"sort_method" json:"sort_method"`

	CreatedUTC time.Time `bson:"created_utc" json:"created_utc"`
	ScrapedAt  time.Time `bson:"scraped_at" json:"scraped_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`

	// Comment-tracking fields: monotonic once true, see storage.UpsertPosts.
	CommentsScraped        bool       `bson:"comments_scraped" json:"comments_scraped"`
	InitialCommentsScraped bool       `bson:"initial_comments_scraped" json:"initial_comments_scraped"`
	LastCommentFetchTime   *time.Time `bson:"last_comment_fetch_time" json:"last_comment_fetch_time"`
	CommentsScrapedAt      *time.Time `bson:"comments_scraped_at" json:"comments_scraped_at"`
}

// ParentType names what a Comment's ParentID refers to.
type ParentType string

const (
	ParentTypePost    ParentType = "post"
	ParentTypeComment ParentType = "comment"
)

// Comment is keyed on the Reddit-assigned CommentID.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CommentID  string             `bson:"comment_id" json:"comment_id"`
	PostID     string             `bson:"post_id" json:"post_id"`
	ParentID   string             `bson:"parent_id" json:"parent_id"`
	ParentType ParentType         `bson:"parent_type" json:"parent_type"`
	Author     string             `bson:"author" json:"author"`
	Body       string             `bson:"body" json:"body"`
	Score      int                `bson:"score" json:"score"`
	Depth      int                `bson:"depth" json:"depth"`
	CreatedUTC time.Time          `bson:"created_utc" json:"created_utc"`
	ScrapedAt  time.Time          `bson:"scraped_at" json:"scraped_at"`
}

// EmbeddingStatus tracks progress of the Enrichment Worker's pipeline.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// SubredditMetadata is the community-descriptor + enrichment document.
type SubredditMetadata struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SubredditName string             `bson:"subreddit_name" json:"subreddit_name"`

	Title               string   `bson:"title" json:"title"`
	PublicDescription   string   `bson:"public_description" json:"public_description"`
	Description         string   `bson:"description" json:"description"`
	GuidelinesText       string   `bson:"guidelines_text" json:"guidelines_text"`
	RulesText            string   `bson:"rules_text" json:"rules_text"`
	SamplePostsTitles    []string `bson:"sample_posts_titles" json:"sample_posts_titles"`
	AdvertiserCategory   string   `bson:"advertiser_category" json:"advertiser_category"`

	EmbeddingStatus      EmbeddingStatus `bson:"embedding_status" json:"embedding_status"`
	EmbeddingRequestedAt time.Time       `bson:"embedding_requested_at" json:"embedding_requested_at"`
	EmbeddingRetryCount  int             `bson:"embedding_retry_count" json:"embedding_retry_count"`
	EmbeddingError       string          `bson:"embedding_error,omitempty" json:"embedding_error,omitempty"`

	Embeddings     Embeddings     `bson:"embeddings" json:"embeddings"`
	LLMEnrichment  *LLMEnrichment `bson:"llm_enrichment,omitempty" json:"llm_enrichment,omitempty"`

	LastUpdated time.Time `bson:"last_updated" json:"last_updated"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Embeddings holds the two vectors the Enrichment Worker produces.
type Embeddings struct {
	CombinedEmbedding *Embedding `bson:"combined_embedding,omitempty" json:"combined_embedding,omitempty"`
	PersonaEmbedding  *Embedding `bson:"persona_embedding,omitempty" json:"persona_embedding,omitempty"`
}

// Embedding is a vector plus the provenance needed to interpret it.
type Embedding struct {
	Vector     []float32 `bson:"vector" json:"vector"`
	Model      string    `bson:"model" json:"model"`
	Dimensions int       `bson:"dimensions" json:"dimensions"`
	GeneratedAt time.Time `bson:"generated_at" json:"generated_at"`
}

// LLMEnrichment is the chat-completion provider's audience-profile output.
type LLMEnrichment struct {
	AudienceProfile string    `bson:"audience_profile" json:"audience_profile"`
	AudienceTypes   []string  `bson:"audience_types" json:"audience_types"`
	UserIntents     []string  `bson:"user_intents" json:"user_intents"`
	PainPoints      []string  `bson:"pain_points" json:"pain_points"`
	ContentThemes   []string  `bson:"content_themes" json:"content_themes"`
	Model           string    `bson:"model" json:"model"`
	GeneratedAt     time.Time `bson:"generated_at" json:"generated_at"`
}

// ScrapeError is an append-only record of a failed or unverifiable operation.
type ScrapeError struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Subreddit  string             `bson:"subreddit" json:"subreddit"`
	PostID     string             `bson:"post_id,omitempty" json:"post_id,omitempty"`
	ErrorType  string             `bson:"error_type" json:"error_type"`
	Message    string             `bson:"message" json:"message"`
	RetryCount int                `bson:"retry_count" json:"retry_count"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	Resolved   bool               `bson:"resolved" json:"resolved"`
}

// Common ScrapeError.ErrorType values.
const (
	ErrorTypeTransient          = "transient"
	ErrorTypeVerificationFailed = "verification_failed"
	ErrorTypeBulkWritePartial   = "bulk_write_partial"
)

// APIUsageRecord is appended once per worker cycle.
type APIUsageRecord struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Subreddit         string             `bson:"subreddit" json:"subreddit"`
	ScraperType       ScraperType        `bson:"scraper_type" json:"scraper_type"`
	Timestamp         time.Time          `bson:"timestamp" json:"timestamp"`
	LogicalCallCount  int64              `bson:"logical_call_count" json:"logical_call_count"`
	ActualHTTPRequests int64             `bson:"actual_http_requests" json:"actual_http_requests"`
	AccuracyRatio     float64            `bson:"accuracy_ratio" json:"accuracy_ratio"`
	AvgResponseTimeMS float64            `bson:"avg_response_time_ms" json:"avg_response_time_ms"`
	ErrorCount        int64              `bson:"error_count" json:"error_count"`
	RateLimitRemaining int               `bson:"rate_limit_remaining" json:"rate_limit_remaining"`
	EstimatedCostUSD  float64            `bson:"estimated_cost_usd" json:"estimated_cost_usd"`
}

// Account holds Reddit OAuth credentials, addressed by AccountName.
type Account struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccountName   string             `bson:"account_name" json:"account_name"`
	ClientID      string             `bson:"client_id" json:"client_id"`
	ClientSecret  []byte             `bson:"client_secret" json:"-"`
	Username      string             `bson:"username" json:"username"`
	Password      []byte             `bson:"password" json:"-"`
	UserAgent     string             `bson:"user_agent" json:"user_agent"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// MaskedAccount is the control-plane-safe view of an Account.
type MaskedAccount struct {
	AccountName string `json:"account_name"`
	Username    string `json:"username"`
	UserAgent   string `json:"user_agent"`
	Secret      string `json:"client_secret"`
}

const secretMask = "********"

// Mask strips every credential field down to the constant sentinel.
func (a Account) Mask() MaskedAccount {
	return MaskedAccount{
		AccountName: a.AccountName,
		Username:    a.Username,
		UserAgent:   a.UserAgent,
		Secret:      secretMask,
	}
}

// SuggestedName is one proposed subreddit inside a SuggestionDocument.
type SuggestedName struct {
	Name string `bson:"name" json:"name"`
}

// SuggestionDocument is inserted by an external system and drained by the
// Suggestions Sync Worker.
type SuggestionDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Subreddits      []SuggestedName    `bson:"subreddits" json:"subreddits"`
	SyncedAt        *time.Time         `bson:"synced_at" json:"synced_at"`
	SyncedToScraper string             `bson:"synced_to_scraper,omitempty" json:"synced_to_scraper,omitempty"`
	InsertedAt      time.Time          `bson:"inserted_at" json:"inserted_at"`
}
