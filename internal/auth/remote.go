package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

// RemoteResolver asks the identity provider who owns a token
// (GET {base}/auth/v1/user). Positive answers are cached briefly, keyed by a
// hash of the token so raw credentials never sit in memory longer than the
// request.
type RemoteResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *cache.Cache
}

// NewRemoteResolver builds a resolver against a Supabase-style auth API.
// ttl <= 0 disables caching.
func NewRemoteResolver(baseURL, apiKey string, ttl time.Duration, client *http.Client) *RemoteResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := &RemoteResolver{baseURL: baseURL, apiKey: apiKey, client: client}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the user id for token, or ErrUnauthorized.
func (r *RemoteResolver) Resolve(ctx context.Context, token string) (string, error) {
	key := tokenKey(token)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(string), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: identity provider: %v", ErrUnauthorized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: identity provider status %d", ErrUnauthorized, resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil || user.ID == "" {
		return "", fmt.Errorf("%w: malformed identity response", ErrUnauthorized)
	}

	if r.cache != nil {
		r.cache.Set(key, user.ID, cache.DefaultExpiration)
	}
	return user.ID, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
