package check

import (
	"strconv"
	"time"
)

type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

const MaxSampleChars = 2000

type ResponseMeta struct {
	StatusText    string `json:"status_text,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ContentLength int64  `json:"content_length,omitempty"`
	Server        string `json:"server,omitempty"`
	Size          int    `json:"size"`
}

// Outcome is the record of one executed probe. It is not modified after
// the probe returns, apart from the ID assigned by the store.
type Outcome struct {
	ID               int64        `json:"id"`
	MonitorID        int64        `json:"monitor_id"`
	UserID           int64        `json:"user_id"`
	Status           Result       `json:"status"`
	StatusCode       *int         `json:"status_code,omitempty"`
	LatencyMs        int64        `json:"latency_ms"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	ValidationErrors []string     `json:"validation_errors,omitempty"`
	Diagnostics      []string     `json:"diagnostics,omitempty"`
	ResponseSample   string       `json:"response_sample,omitempty"`
	Meta             ResponseMeta `json:"meta"`
	CheckedAt        time.Time    `json:"checked_at"`
}

func (o *Outcome) Success() bool { return o != nil && o.Status == ResultSuccess }

// Reason is a one-line explanation of a failed outcome.
func (o *Outcome) Reason() string {
	switch {
	case o.ErrorMessage != "":
		return o.ErrorMessage
	case len(o.ValidationErrors) > 0:
		return o.ValidationErrors[0]
	case o.StatusCode != nil:
		return "HTTP " + strconv.Itoa(*o.StatusCode)
	default:
		return "unknown failure"
	}
}
