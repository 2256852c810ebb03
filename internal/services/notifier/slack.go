package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs/retry"
)

type SlackConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Slack posts alerts to an incoming webhook.
type Slack struct {
	webhook string
	client  *http.Client
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.WebhookURL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Slack{webhook: cfg.WebhookURL, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *Slack) Name() string { return "slack" }

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(slackPayload{Text: "*" + msg.Subject + "*\n" + msg.Body})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("slack webhook: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(b))
		if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}
