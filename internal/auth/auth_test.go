package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RadEZorack/augmego-core/internal/auth"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = state.Identity{ID: "u-alice", Name: "Alice", AvatarURL: "https://cdn/alice.png"}

func TestJWTResolver(t *testing.T) {
	secret := []byte("s3cret")
	resolver := auth.NewJWTResolver("augmego_session", secret)

	valid, err := auth.IssueToken(secret, alice, time.Hour)
	require.NoError(t, err)
	forged, err := auth.IssueToken([]byte("other"), alice, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken(secret, alice, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    *state.Identity
		invalid bool
	}{
		{"anonymous", func(r *http.Request) {}, nil, false},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "augmego_session", Value: valid}) }, &alice, false},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, &alice, false},
		{"wrong secret", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "augmego_session", Value: forged}) }, nil, true},
		{"expired", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "augmego_session", Value: expired}) }, nil, true},
		{"garbage", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "augmego_session", Value: "not-a-jwt"}) }, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.prepare(r)
			got, err := resolver.ResolveUser(r)
			if tt.invalid {
				assert.True(t, errors.Is(err, auth.ErrInvalidSession), "got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionResolverRoundTrip(t *testing.T) {
	resolver := auth.NewSessionResolver("augmego", "0123456789abcdef0123456789abcdef")

	rec := httptest.NewRecorder()
	require.NoError(t, resolver.Save(rec, httptest.NewRequest(http.MethodGet, "/login", nil), alice))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	got, err := resolver.ResolveUser(r)
	require.NoError(t, err)
	assert.Equal(t, &alice, got)

	anon, err := resolver.ResolveUser(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.NoError(t, err)
	assert.Nil(t, anon)

	tampered := httptest.NewRequest(http.MethodGet, "/ws", nil)
	tampered.AddCookie(&http.Cookie{Name: "augmego", Value: "tampered"})
	_, err = resolver.ResolveUser(tampered)
	assert.True(t, errors.Is(err, auth.ErrInvalidSession))
}

func TestNewSelectsMode(t *testing.T) {
	r, err := auth.New(config.AuthConfig{Mode: "jwt", JWTSecret: "x", CookieName: "c"})
	require.NoError(t, err)
	assert.IsType(t, &auth.JWTResolver{}, r)

	r, err = auth.New(config.AuthConfig{Mode: "cookie", SessionName: "s", SessionKeys: []string{"k"}})
	require.NoError(t, err)
	assert.IsType(t, &auth.SessionResolver{}, r)

	_, err = auth.New(config.AuthConfig{Mode: "cookie"})
	assert.Error(t, err)
	_, err = auth.New(config.AuthConfig{Mode: "oauth"})
	assert.Error(t, err)
}
