package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// ---- bearer ----

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		in    string
		token string
		ok    bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"Bearer a b", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		tok, ok := ExtractBearer(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.token, tok, "input %q", tc.in)
	}
}

// ---- JWT (HS256) ----

func signHS256(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTResolver_HS256(t *testing.T) {
	r, err := NewJWTResolver(context.Background(), JWTOptions{Secret: "s3cret", Audience: "authenticated"})
	require.NoError(t, err)

	good := signHS256(t, "s3cret", jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	uid, err := r.Resolve(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	bad := map[string]string{
		"wrong secret": signHS256(t, "other", jwt.RegisteredClaims{
			Subject: "user-1", Audience: jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}),
		"expired": signHS256(t, "s3cret", jwt.RegisteredClaims{
			Subject: "user-1", Audience: jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}),
		"no exp": signHS256(t, "s3cret", jwt.RegisteredClaims{
			Subject: "user-1", Audience: jwt.ClaimStrings{"authenticated"},
		}),
		"wrong audience": signHS256(t, "s3cret", jwt.RegisteredClaims{
			Subject: "user-1", Audience: jwt.ClaimStrings{"anon"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}),
		"missing sub": signHS256(t, "s3cret", jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}),
		"garbage": "not-a-jwt",
	}
	for name, tok := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tok)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestNewJWTResolver_RequiresKeyMaterial(t *testing.T) {
	_, err := NewJWTResolver(context.Background(), JWTOptions{})
	assert.Error(t, err)
}

// ---- JWT (JWKS) ----

func TestJWTResolver_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": "k1",
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, err := NewJWTResolver(ctx, JWTOptions{JWKSURL: srv.URL, Issuer: "https://proj.supabase.co/auth/v1"})
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user-rsa",
		Issuer:    "https://proj.supabase.co/auth/v1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	uid, err := r.Resolve(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "user-rsa", uid)

	// HS256 tokens are refused when the resolver expects asymmetric keys.
	hs := signHS256(t, "x", jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	_, err = r.Resolve(context.Background(), hs)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// ---- remote resolver ----

func TestRemoteResolver_ResolvesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-42","email":"a@b.c"}`))
	}))
	defer srv.Close()

	r := NewRemoteResolver(srv.URL, "anon-key", time.Minute, srv.Client())

	for i := 0; i < 3; i++ {
		uid, err := r.Resolve(context.Background(), "good")
		require.NoError(t, err)
		assert.Equal(t, "user-42", uid)
	}
	assert.EqualValues(t, 1, hits.Load(), "positive lookups must be cached")

	_, err := r.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 3, hits.Load(), "rejections must not be cached")
}

func TestRemoteResolver_MalformedBodyAndTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":""}`))
	}))
	r := NewRemoteResolver(srv.URL, "", 0, nil)
	_, err := r.Resolve(context.Background(), "t")
	assert.ErrorIs(t, err, ErrUnauthorized)

	srv.Close()
	_, err = r.Resolve(context.Background(), "t")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// ---- guard ----

type fakeResolver struct {
	users map[string]string
}

func (f fakeResolver) Resolve(_ context.Context, token string) (string, error) {
	if uid, ok := f.users[token]; ok {
		return uid, nil
	}
	return "", errors.New("unknown token")
}

type fakeSubs struct {
	rows map[string]*domain.Subscription
	err  error
}

func (f fakeSubs) GetActiveSubscription(_ context.Context, _ *gorm.DB, userID string) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.rows[userID]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func TestGuard_Authenticate(t *testing.T) {
	g := NewGuard(nil, fakeSubs{}, fakeResolver{users: map[string]string{"tok": "u1"}})

	uid, err := g.Authenticate(context.Background(), "Bearer tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	for _, h := range []string{"", "Bearer", "Token tok", "Bearer nope"} {
		_, err := g.Authenticate(context.Background(), h)
		assert.ErrorIs(t, err, ErrUnauthorized, "header %q", h)
	}
	_, err = g.AuthenticateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGuard_Entitle(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	subs := fakeSubs{rows: map[string]*domain.Subscription{
		"vip":     {UserID: "vip", PlanType: domain.PlanVIP, Status: domain.StatusActive},
		"expired": {UserID: "expired", PlanType: domain.PlanPremium, Status: domain.StatusActive, ExpiresAt: &past},
	}}
	g := NewGuard(nil, subs, fakeResolver{})

	sub, err := g.Entitle(context.Background(), "vip", now)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanVIP, sub.PlanType)

	_, err = g.Entitle(context.Background(), "expired", now)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = g.Entitle(context.Background(), "nobody", now)
	assert.ErrorIs(t, err, ErrForbidden)

	g.Subs = fakeSubs{err: errors.New("connection reset")}
	_, err = g.Entitle(context.Background(), "vip", now)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestRequirePlan(t *testing.T) {
	assert.NoError(t, RequirePlan(&domain.Subscription{PlanType: domain.PlanPremium}, domain.PlanPremium))
	assert.ErrorIs(t, RequirePlan(&domain.Subscription{PlanType: domain.PlanVIP}, domain.PlanPremium), ErrPlanRequired)
	assert.ErrorIs(t, RequirePlan(&domain.Subscription{PlanType: domain.PlanFree}, domain.PlanPremium), ErrPlanRequired)
	assert.ErrorIs(t, RequirePlan(nil, domain.PlanPremium), ErrForbidden)
}
