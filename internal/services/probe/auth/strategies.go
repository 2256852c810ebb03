package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/validation"
)

const maxAuthBody = 1 << 20

type None struct{}

func (None) Resolve(context.Context, monitor.AuthConfig) (Credentials, error) {
	return Credentials{}, nil
}

type Basic struct{}

func (Basic) Resolve(_ context.Context, cfg monitor.AuthConfig) (Credentials, error) {
	if cfg.Username == "" {
		return Credentials{}, &check.ConfigError{Variant: "basic", Field: "username"}
	}
	if cfg.Password == "" {
		return Credentials{}, &check.ConfigError{Variant: "basic", Field: "password"}
	}
	raw := cfg.Username + ":" + cfg.Password
	return Credentials{Headers: map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)),
	}}, nil
}

// Token exchanges username and password for a token at TokenURL.
type Token struct{ ex *exchanger }

func (t *Token) Resolve(ctx context.Context, cfg monitor.AuthConfig) (Credentials, error) {
	switch {
	case cfg.TokenURL == "":
		return Credentials{}, &check.ConfigError{Variant: "token", Field: "token_url"}
	case cfg.Username == "":
		return Credentials{}, &check.ConfigError{Variant: "token", Field: "username"}
	case cfg.Password == "":
		return Credentials{}, &check.ConfigError{Variant: "token", Field: "password"}
	}

	resp, body, err := t.ex.post(ctx, cfg.TokenURL, credentialsPayload(cfg))
	if err != nil {
		return Credentials{}, &check.AuthError{Variant: "token", URL: cfg.TokenURL, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return Credentials{}, &check.AuthError{Variant: "token", URL: cfg.TokenURL, Status: resp.StatusCode, Err: errors.New("token endpoint rejected credentials")}
	}
	tok, err := extractToken(body, cfg.TokenPathOrDefault())
	if err != nil {
		return Credentials{}, &check.AuthError{Variant: "token", URL: cfg.TokenURL, Status: resp.StatusCode, Err: err}
	}
	return bearer(cfg, tok), nil
}

// Login posts to LoginURL and takes either a token from the body or a
// session cookie from the response.
type Login struct{ ex *exchanger }

func (l *Login) Resolve(ctx context.Context, cfg monitor.AuthConfig) (Credentials, error) {
	if cfg.LoginURL == "" {
		return Credentials{}, &check.ConfigError{Variant: "login", Field: "login_url"}
	}

	resp, body, err := l.ex.post(ctx, cfg.LoginURL, credentialsPayload(cfg))
	if err != nil {
		return Credentials{}, &check.AuthError{Variant: "login", URL: cfg.LoginURL, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return Credentials{}, &check.AuthError{Variant: "login", URL: cfg.LoginURL, Status: resp.StatusCode, Err: errors.New("login rejected")}
	}

	if cfg.TokenField != "" {
		tok, err := extractToken(body, cfg.TokenField)
		if err != nil {
			return Credentials{}, &check.AuthError{Variant: "login", URL: cfg.LoginURL, Status: resp.StatusCode, Err: err}
		}
		return bearer(cfg, tok), nil
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return Credentials{}, &check.AuthError{Variant: "login", URL: cfg.LoginURL, Status: resp.StatusCode, Err: errors.New("no token or session cookie in response")}
	}
	picked := cookies[0]
	if cfg.CookieName != "" {
		for _, c := range cookies {
			if c.Name == cfg.CookieName {
				picked = c
				break
			}
		}
	}
	return Credentials{Cookie: picked.Name + "=" + picked.Value}, nil
}

type exchanger struct {
	client    *http.Client
	userAgent string
}

func (e *exchanger) post(ctx context.Context, url string, payload map[string]any) (*http.Response, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	client := e.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBody))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

func credentialsPayload(cfg monitor.AuthConfig) map[string]any {
	p := make(map[string]any, len(cfg.LoginPayload)+2)
	for k, v := range cfg.LoginPayload {
		p[k] = v
	}
	if cfg.Username != "" {
		p["username"] = cfg.Username
	}
	if cfg.Password != "" {
		p["password"] = cfg.Password
	}
	return p
}

func extractToken(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	v, ok := validation.Lookup(doc, path)
	if !ok || v == nil {
		return "", fmt.Errorf("no token at %q", path)
	}
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", fmt.Errorf("empty token at %q", path)
		}
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("token at %q is not a string", path)
	}
}

func bearer(cfg monitor.AuthConfig, token string) Credentials {
	value := token
	if p := cfg.HeaderPrefixOrDefault(); p != "" {
		value = p + " " + token
	}
	return Credentials{Headers: map[string]string{cfg.HeaderNameOrDefault(): value}}
}
