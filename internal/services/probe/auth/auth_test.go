package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

func newResolver(t *testing.T) (*Resolver, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	return NewResolver(http.DefaultClient, "test-agent", zap.New(core)), logs
}

func TestResolveNoneAndEmpty(t *testing.T) {
	r, logs := newResolver(t)
	for _, typ := range []monitor.AuthType{"", monitor.AuthNone} {
		creds, err := r.Resolve(context.Background(), monitor.AuthConfig{Type: typ})
		require.NoError(t, err)
		assert.Empty(t, creds.Headers)
		assert.Empty(t, creds.Cookie)
	}
	assert.Equal(t, 0, logs.Len())
}

func TestResolveUnknownFallsBackWithWarning(t *testing.T) {
	r, logs := newResolver(t)
	creds, err := r.Resolve(context.Background(), monitor.AuthConfig{Type: "oauth2"})
	require.NoError(t, err)
	assert.Empty(t, creds.Headers)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "oauth2", logs.All()[0].ContextMap()["auth_type"])
}

func TestResolveBasic(t *testing.T) {
	r, _ := newResolver(t)
	creds, err := r.Resolve(context.Background(), monitor.AuthConfig{Type: monitor.AuthBasic, Username: "user", Password: "pass"})
	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjpwYXNz", creds.Headers["Authorization"])

	_, err = r.Resolve(context.Background(), monitor.AuthConfig{Type: monitor.AuthBasic, Username: "user"})
	var cfgErr *check.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "password", cfgErr.Field)
}

func TestResolveToken(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"auth":{"access":"abc123"}}`))
	}))
	defer srv.Close()

	r, _ := newResolver(t)
	creds, err := r.Resolve(context.Background(), monitor.AuthConfig{
		Type:         monitor.AuthToken,
		Username:     "u",
		Password:     "p",
		TokenURL:     srv.URL,
		TokenPath:    "auth.access",
		HeaderName:   "X-Api-Key",
		HeaderPrefix: "Token",
	})
	require.NoError(t, err)
	assert.Equal(t, "Token abc123", creds.Headers["X-Api-Key"])
	assert.Equal(t, "u", got["username"])
	assert.Equal(t, "p", got["password"])
}

func TestResolveTokenDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":"t0k"}`))
	}))
	defer srv.Close()

	r, _ := newResolver(t)
	creds, err := r.Resolve(context.Background(), monitor.AuthConfig{Type: monitor.AuthToken, Username: "u", Password: "p", TokenURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t0k", creds.Headers["Authorization"])
}

func TestResolveTokenFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/denied" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"other":"x"}`))
	}))
	defer srv.Close()

	r, _ := newResolver(t)
	base := monitor.AuthConfig{Type: monitor.AuthToken, Username: "u", Password: "p"}

	_, err := r.Resolve(context.Background(), base)
	var cfgErr *check.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	cfg := base
	cfg.TokenURL = srv.URL + "/denied"
	_, err = r.Resolve(context.Background(), cfg)
	var authErr *check.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)

	cfg.TokenURL = srv.URL + "/ok"
	_, err = r.Resolve(context.Background(), cfg)
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, err.Error(), `no token at "token"`)
}

func TestResolveLoginCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "acme", body["tenant"])
		http.SetCookie(w, &http.Cookie{Name: "tracking", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cr3t"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, _ := newResolver(t)
	cfg := monitor.AuthConfig{
		Type:         monitor.AuthLogin,
		LoginURL:     srv.URL,
		Username:     "u",
		Password:     "p",
		LoginPayload: map[string]any{"tenant": "acme"},
		CookieName:   "sid",
	}
	creds, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sid=s3cr3t", creds.Cookie)

	cfg.CookieName = "absent"
	creds, err = r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "tracking=1", creds.Cookie)
}

func TestResolveLoginTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"jwt":"j.w.t"}}`))
	}))
	defer srv.Close()

	r, _ := newResolver(t)
	creds, err := r.Resolve(context.Background(), monitor.AuthConfig{Type: monitor.AuthLogin, LoginURL: srv.URL, TokenField: "data.jwt"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer j.w.t", creds.Headers["Authorization"])
}

func TestResolveLoginWithoutCredentialFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, _ := newResolver(t)
	_, err := r.Resolve(context.Background(), monitor.AuthConfig{Type: monitor.AuthLogin, LoginURL: srv.URL})
	var authErr *check.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "login", authErr.Variant)
}

func TestCredentialsApply(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	Credentials{Headers: map[string]string{"X-A": "1"}, Cookie: "sid=x"}.Apply(req)
	assert.Equal(t, "1", req.Header.Get("X-A"))
	assert.Equal(t, "sid=x", req.Header.Get("Cookie"))
}
