package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

// Credentials are attached to the outbound probe request.
type Credentials struct {
	Headers map[string]string
	Cookie  string
}

func (c Credentials) Apply(req *http.Request) {
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
}

type Strategy interface {
	Resolve(ctx context.Context, cfg monitor.AuthConfig) (Credentials, error)
}

type Resolver struct {
	strategies map[monitor.AuthType]Strategy
	fallback   Strategy
	log        *zap.Logger
}

// NewResolver wires one strategy per auth variant. The token and login
// variants send their secondary request through client.
func NewResolver(client *http.Client, userAgent string, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	ex := &exchanger{client: client, userAgent: userAgent}
	return &Resolver{
		strategies: map[monitor.AuthType]Strategy{
			monitor.AuthNone:  None{},
			monitor.AuthBasic: Basic{},
			monitor.AuthToken: &Token{ex: ex},
			monitor.AuthLogin: &Login{ex: ex},
		},
		fallback: None{},
		log:      log.With(zap.String("component", "probe.auth")),
	}
}

func (r *Resolver) Resolve(ctx context.Context, cfg monitor.AuthConfig) (Credentials, error) {
	if cfg.Type == "" {
		return r.fallback.Resolve(ctx, cfg)
	}
	s, ok := r.strategies[cfg.Type]
	if !ok {
		r.log.Warn("unknown auth type, probing without credentials", zap.String("auth_type", string(cfg.Type)))
		return r.fallback.Resolve(ctx, cfg)
	}
	return s.Resolve(ctx, cfg)
}
