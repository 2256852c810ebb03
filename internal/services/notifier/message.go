package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

type Message struct {
	Type       alert.Type
	MonitorID  int64
	Subject    string
	Body       string
	Recipients []string
}

// Render builds the subject and plain-text body shared by all channels.
func Render(product string, t alert.Type, m *monitor.Monitor, o *check.Outcome, recipients []string) Message {
	name := m.Name
	if name == "" {
		name = m.URL
	}
	var b strings.Builder
	subject := fmt.Sprintf("[%s] DOWN: %s", product, name)
	if t == alert.TypeRecovery {
		subject = fmt.Sprintf("[%s] RECOVERED: %s", product, name)
		fmt.Fprintf(&b, "%s is back up.\n\n", name)
	} else {
		fmt.Fprintf(&b, "%s is down.\n\nReason: %s\n", name, o.Reason())
	}

	fmt.Fprintf(&b, "URL: %s\n", m.URL)
	if o.StatusCode != nil {
		fmt.Fprintf(&b, "Status code: %d\n", *o.StatusCode)
	}
	fmt.Fprintf(&b, "Response time: %d ms\n", o.LatencyMs)
	if !o.CheckedAt.IsZero() {
		fmt.Fprintf(&b, "Checked at: %s\n", o.CheckedAt.UTC().Format(time.RFC3339))
	}
	if t == alert.TypeFailure {
		if m.ConsecutiveFailures > 0 {
			fmt.Fprintf(&b, "Consecutive failures: %d\n", m.ConsecutiveFailures)
		}
		for _, v := range o.ValidationErrors {
			fmt.Fprintf(&b, "- %s\n", v)
		}
		if len(o.Diagnostics) > 0 {
			b.WriteString("\nDiagnostics:\n")
			for _, d := range o.Diagnostics {
				fmt.Fprintf(&b, "  %s\n", d)
			}
		}
	}
	return Message{
		Type:       t,
		MonitorID:  m.ID,
		Subject:    subject,
		Body:       b.String(),
		Recipients: recipients,
	}
}
