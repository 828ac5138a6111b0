package redditclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuthTransport wraps an inner RoundTripper (normally a
// ratelimit.CountingTransport) and attaches a Reddit OAuth2 "password"
// grant bearer token to every request, refreshing it shortly before
// expiry, grounded on subculture-collective-reddit-cluster-map's
// crawler/token_manager.go tokenManager.
type OAuthTransport struct {
	inner        http.RoundTripper
	clientID     string
	clientSecret string
	username     string
	password     string
	userAgent    string
	tokenURL     string

	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewOAuthTransport builds an OAuthTransport for one Account's credentials.
func NewOAuthTransport(inner http.RoundTripper, clientID, clientSecret, username, password, userAgent string) *OAuthTransport {
	return &OAuthTransport{
		inner:        inner,
		clientID:     clientID,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
		userAgent:    userAgent,
		tokenURL:     "https://www.reddit.com/api/v1/access_token",
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// RoundTrip attaches a valid bearer token then delegates to inner.
func (t *OAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokenFor(req.Context())
	if err != nil {
		return nil, fmt.Errorf("acquire oauth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return t.inner.RoundTrip(req)
}

func (t *OAuthTransport) tokenFor(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && time.Now().Add(60*time.Second).Before(t.expiresAt) {
		return t.accessToken, nil
	}
	return t.refreshLocked(ctx)
}

// refreshLocked performs the password grant. Must be called with mu held.
func (t *OAuthTransport) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", t.username)
	form.Set("password", t.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response had no access_token")
	}

	t.accessToken = body.AccessToken
	expiry := time.Duration(body.ExpiresIn) * time.Second
	if expiry > 120*time.Second {
		expiry -= 60 * time.Second
	} else if expiry > 0 {
		expiry /= 2
	}
	t.expiresAt = time.Now().Add(expiry)

	return t.accessToken, nil
}
