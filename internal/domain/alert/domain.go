package alert

import "time"

type Type string

const (
	TypeFailure  Type = "failure"
	TypeRecovery Type = "recovery"
)

// Intent is a detected status transition that somebody should hear about.
// Recipients may be empty, in which case nothing is sent but the intent is
// still recorded.
type Intent struct {
	MonitorID  int64     `json:"monitor_id"`
	UserID     int64     `json:"user_id"`
	Type       Type      `json:"type"`
	Message    string    `json:"message"`
	Recipients []string  `json:"recipients"`
	CreatedAt  time.Time `json:"created_at"`
}

type Record struct {
	ID int64 `json:"id"`
	Intent
	CheckResultID *int64 `json:"check_result_id,omitempty"`
	Sent          bool   `json:"sent"`
	Error         string `json:"error,omitempty"`
}
