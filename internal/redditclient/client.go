// Package redditclient implements the Reddit listing/comment-tree HTTP
// surface the Scraper Worker depends on, wrapping the Rate Governor's
// counting transport.
package redditclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client issues Reddit API calls through an injected http.RoundTripper
// (normally a ratelimit.CountingTransport), grounded on
// regcyb1-Reddit_Ingestion/internal/client/reddit_client.go.
//
// The Rate Governor's CheckBudget gates calls on the account's remaining
// quota; the limiter here separately smooths call pacing so a burst of
// Scraper Worker goroutines doesn't hammer the same credential back to
// back even while quota is healthy.
type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	maxRetries int
	limiter    *rate.Limiter
}

// NewClient builds a Client over the given transport. requestsPerSecond<=0
// disables pacing (unlimited, gated only by the Rate Governor).
func NewClient(transport http.RoundTripper, userAgent, baseURL string, requestTimeout time.Duration, maxRetries int, requestsPerSecond float64) (*Client, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("reddit client: user agent is required")
	}
	if baseURL == "" {
		baseURL = "https://oauth.reddit.com"
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: requestTimeout},
		userAgent:  userAgent,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		limiter:    limiter,
	}, nil
}

// FetchJSON issues a single GET and returns the raw response body.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchJSON request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit API returned status %d for %s", resp.StatusCode, rawURL)
	}
	return body, nil
}

// GetSubredditURL builds the listing URL for one sort method over a
// subreddit (spec §4.3: the Scraper Worker cycles every configured sort).
// timeFilter is only meaningful for `top`/`controversial` and is emitted as
// the `t` query param, grounded on reddit_client.go's directParams handling.
func (c *Client) GetSubredditURL(subreddit, sortMethod string, limit int, after, timeFilter string) string {
	if sortMethod == "" {
		sortMethod = "new"
	}
	base := fmt.Sprintf("%s/r/%s/%s.json?raw_json=1", c.baseURL, subreddit, sortMethod)

	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if after != "" {
		params.Set("after", after)
	}
	if timeFilter != "" && (sortMethod == "top" || sortMethod == "controversial") {
		params.Set("t", timeFilter)
	}
	if encoded := params.Encode(); encoded != "" {
		base += "&" + encoded
	}
	return base
}

// GetSubredditAboutURL builds the community-descriptor endpoint used by
// Phase C (spec §4.3: "basic community descriptors").
func (c *Client) GetSubredditAboutURL(subreddit string) string {
	return fmt.Sprintf("%s/r/%s/about.json?raw_json=1", c.baseURL, subreddit)
}

// GetSubredditRulesURL builds the community-rules endpoint.
func (c *Client) GetSubredditRulesURL(subreddit string) string {
	return fmt.Sprintf("%s/r/%s/about/rules.json?raw_json=1", c.baseURL, subreddit)
}

// GetSubredditSearchURL builds Reddit's community-search endpoint, used by
// the control plane's discover/subreddits operation (spec §6).
func (c *Client) GetSubredditSearchURL(query string, limit int) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("raw_json", "1")
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	return fmt.Sprintf("%s/subreddits/search.json?%s", c.baseURL, params.Encode())
}

func (c *Client) GetPostURL(postID string) string {
	return fmt.Sprintf("%s/comments/%s.json?raw_json=1&sort=new", c.baseURL, postID)
}

func (c *Client) GetUserAboutURL(username string) string {
	return fmt.Sprintf("%s/user/%s/about.json?raw_json=1", c.baseURL, username)
}

func (c *Client) GetUserPostsURL(username, after string) string {
	base := fmt.Sprintf("%s/user/%s/submitted/new.json?raw_json=1&sort=new", c.baseURL, username)
	if after != "" {
		base += "&after=" + after
	}
	return base
}

func (c *Client) GetUserCommentsURL(username, after string) string {
	base := fmt.Sprintf("%s/user/%s/comments/.json?raw_json=1&limit=100", c.baseURL, username)
	if after != "" {
		base += "&after=" + after
	}
	return base
}

func (c *Client) GetSearchURL(subreddit, query, after string, limit int) string {
	base := fmt.Sprintf("%s/r/%s/search.json?raw_json=1&restrict_sr=1", c.baseURL, subreddit)
	params := url.Values{}
	params.Set("q", query)
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if after != "" {
		params.Set("after", after)
	}
	return base + "&" + params.Encode()
}

// FetchMoreComments fetches a batch of "load more" comment IDs for a post,
// with a manual 3-attempt exponential-backoff retry and special handling
// for 429s, grounded on reddit_client.go's FetchMoreComments.
func (c *Client) FetchMoreComments(ctx context.Context, postID string, commentIDs []string) (json.RawMessage, error) {
	if len(commentIDs) == 0 {
		return nil, nil
	}

	fullPostID := postID
	if !strings.HasPrefix(fullPostID, "t3_") {
		fullPostID = "t3_" + postID
	}

	endpoint := c.baseURL + "/api/morechildren"
	params := url.Values{
		"api_type":       {"json"},
		"link_id":        {fullPostID},
		"children":       {strings.Join(commentIDs, ",")},
		"limit_children": {"false"},
		"sort":           {"new"},
	}

	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait: %w", err)
			}
		}
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			lastErr = fmt.Errorf("create request: %w", err)
			continue
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("fetchMoreComments request: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (429)")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(30 * time.Second):
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("morechildren returned status %d", resp.StatusCode)
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded for post %s: %w", postID, lastErr)
}
