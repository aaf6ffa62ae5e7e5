package wecom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// DefaultAPIBaseURL is the WeCom first-party API root
	DefaultAPIBaseURL = "https://qyapi.weixin.qq.com/cgi-bin"

	// defaultTokenTTL applies when the token endpoint omits expires_in
	defaultTokenTTL = 7200 * time.Second

	// earlyRefreshMargin forces a refresh this long before the cached expiry
	earlyRefreshMargin = 5 * time.Minute
	// expirySafetyMargin is subtracted from the server TTL when caching
	expirySafetyMargin = 10 * time.Minute
)

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache obtains and caches one access token per (corpID, secret)
// pair. Concurrent callers during a refresh may each fetch redundantly;
// the last writer for a key wins and the slot is never corrupted.
type TokenCache struct {
	baseURL string
	client  *http.Client
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]tokenEntry
}

// NewTokenCache creates a token cache against the given API base URL.
// An empty baseURL selects the production WeCom endpoint.
func NewTokenCache(baseURL string, client *http.Client) *TokenCache {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenCache{
		baseURL: baseURL,
		client:  client,
		now:     time.Now,
		entries: make(map[string]tokenEntry),
	}
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// GetToken returns a cached token while it has more than five minutes of
// life left, fetching a fresh one otherwise. A freshly fetched token is
// cached with its server TTL reduced by a ten minute safety margin.
func (c *TokenCache) GetToken(ctx context.Context, corpID, secret string) (string, error) {
	key := cacheKey(corpID, secret)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && entry.expiresAt.After(c.now().Add(earlyRefreshMargin)) {
		return entry.token, nil
	}

	token, expiresAt, err := c.fetch(ctx, corpID, secret)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = tokenEntry{token: token, expiresAt: expiresAt}
	c.mu.Unlock()

	return token, nil
}

// Evict drops the cached token for the pair so the next call re-authenticates
func (c *TokenCache) Evict(corpID, secret string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(corpID, secret))
	c.mu.Unlock()
}

func (c *TokenCache) fetch(ctx context.Context, corpID, secret string) (string, time.Time, error) {
	endpoint := fmt.Sprintf("%s/gettoken?corpid=%s&corpsecret=%s",
		c.baseURL, url.QueryEscape(corpID), url.QueryEscape(secret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.ErrCode != 0 {
		return "", time.Time{}, &APIError{Code: body.ErrCode, Message: body.ErrMsg}
	}

	ttl := defaultTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn) * time.Second
	}
	expiresAt := c.now().Add(ttl - expirySafetyMargin)

	return body.AccessToken, expiresAt, nil
}

func cacheKey(corpID, secret string) string {
	return corpID + ":" + secret
}
