package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/notification"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/probe/auth"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/validation"
)

var (
	mProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probe_requests_total", Help: "Executed probes by result",
	}, []string{"result"})
	mLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "probe_latency_seconds", Help: "Probe request latency",
		Buckets: prometheus.DefBuckets,
	})
)

type CredentialResolver interface {
	Resolve(ctx context.Context, cfg monitor.AuthConfig) (auth.Credentials, error)
}

type Executor struct {
	client *http.Client
	auth   CredentialResolver
	cfg    Config
	clock  notification.Clock
	log    *zap.Logger
}

func NewExecutor(client *http.Client, resolver CredentialResolver, cfg Config, log *zap.Logger) *Executor {
	cfg = cfg.withDefaults()
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		client: client,
		auth:   resolver,
		cfg:    cfg,
		clock:  notification.SystemClock{},
		log:    log.With(zap.String("component", "probe.executor")),
	}
}

func (e *Executor) WithClock(c notification.Clock) *Executor {
	cp := *e
	cp.clock = c
	return &cp
}

// Execute probes the monitor once. It never returns an error: every
// failure is folded into a failure outcome.
func (e *Executor) Execute(ctx context.Context, m *monitor.Monitor) *check.Outcome {
	ctx, span := otel.Tracer("probe").Start(ctx, "probe.execute",
		trace.WithAttributes(attribute.Int64("monitor.id", m.ID)),
	)
	defer span.End()

	out := &check.Outcome{
		MonitorID: m.ID,
		UserID:    m.UserID,
		Status:    check.ResultFailure,
		CheckedAt: e.clock.Now(),
	}
	defer func() {
		mProbes.WithLabelValues(string(out.Status)).Inc()
		span.SetAttributes(attribute.String("probe.result", string(out.Status)))
	}()

	target, err := parseTarget(m.URL)
	if err != nil {
		out.ErrorMessage = "Invalid URL: " + err.Error()
		out.Diagnostics = []string{"URL: " + m.URL}
		return out
	}

	var creds auth.Credentials
	if e.auth != nil {
		creds, err = e.auth.Resolve(ctx, m.Auth)
		if err != nil {
			out.ErrorMessage = "Authentication failed: " + err.Error()
			out.Diagnostics = authDiagnostics(m.Auth.Type, err)
			e.log.Debug("auth failed", zap.Int64("monitor_id", m.ID), zap.Error(err))
			return out
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		out.ErrorMessage = "Invalid request: " + err.Error()
		return out
	}
	creds.Apply(req)
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		out.LatencyMs = time.Since(start).Milliseconds()
		mLatency.Observe(time.Since(start).Seconds())
		te := classifyTransportError(err, target)
		out.ErrorMessage = "Request failed: " + te.Error()
		out.Diagnostics = te.Lines()
		span.RecordError(err)
		return out
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	elapsed := time.Since(start)
	out.LatencyMs = elapsed.Milliseconds()
	mLatency.Observe(elapsed.Seconds())

	code := resp.StatusCode
	out.StatusCode = &code
	out.ResponseSample = truncate(string(raw), check.MaxSampleChars)
	out.Meta = check.ResponseMeta{
		StatusText:    http.StatusText(code),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Server:        resp.Header.Get("Server"),
		Size:          len(raw),
	}

	if readErr != nil {
		te := classifyTransportError(readErr, target)
		out.ErrorMessage = fmt.Sprintf("HTTP %d: reading body failed: %s", code, te.Error())
		out.Diagnostics = append([]string{"Status: " + resp.Status}, te.Lines()...)
		return out
	}

	res := validation.Validate(validation.Response{
		StatusCode: code,
		Header:     resp.Header,
		Body:       validation.ParseBody(raw, out.Meta.ContentType),
		Raw:        string(raw),
	}, m.Validation)

	if !res.Valid {
		out.ValidationErrors = res.Errors
		out.ErrorMessage = "Validation failed: " + strings.Join(res.Errors, "; ")
		return out
	}
	out.Status = check.ResultSuccess
	return out
}

var invisible = strings.NewReplacer(
	"\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "", "\u00ad", "",
)

func parseTarget(raw string) (*url.URL, error) {
	s := strings.TrimSpace(invisible.Replace(raw))
	if s == "" {
		return nil, errors.New("empty URL")
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func authDiagnostics(variant monitor.AuthType, err error) []string {
	lines := []string{"Auth type: " + string(variant)}
	var (
		cfgErr  *check.ConfigError
		authErr *check.AuthError
	)
	switch {
	case errors.As(err, &cfgErr):
		lines = append(lines, "Missing field: "+cfgErr.Field)
	case errors.As(err, &authErr):
		if authErr.URL != "" {
			lines = append(lines, "Auth URL: "+authErr.URL)
		}
		if authErr.Status != 0 {
			lines = append(lines, fmt.Sprintf("Auth status: %d", authErr.Status))
		}
		if authErr.Err != nil {
			lines = append(lines, "Cause: "+authErr.Err.Error())
		}
	}
	return lines
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
