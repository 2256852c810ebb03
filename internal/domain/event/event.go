package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

const TypeCheckCompleted = "check.completed"

// CheckEvents receives every completed probe. Implementations must not
// block the caller for long and never report errors back.
type CheckEvents interface {
	EmitCheckEvent(ctx context.Context, ownerID int64, m *monitor.Monitor, o *check.Outcome)
}

type CheckEvent struct {
	ID                  string         `json:"id"`
	Type                string         `json:"type"`
	OwnerID             int64          `json:"owner_id"`
	MonitorID           int64          `json:"monitor_id"`
	MonitorName         string         `json:"monitor_name"`
	MonitorStatus       monitor.Status `json:"monitor_status"`
	Result              check.Result   `json:"result"`
	StatusCode          int            `json:"status_code,omitempty"`
	LatencyMs           int64          `json:"latency_ms"`
	Error               string         `json:"error,omitempty"`
	ValidationErrors    []string       `json:"validation_errors,omitempty"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	CheckedAt           time.Time      `json:"checked_at"`
	// Origin names the engine instance that ran the check. Empty for
	// events that never left the process.
	Origin string `json:"origin,omitempty"`
}

func NewCheckEvent(ownerID int64, m *monitor.Monitor, o *check.Outcome) CheckEvent {
	ev := CheckEvent{
		ID:                  uuid.NewString(),
		Type:                TypeCheckCompleted,
		OwnerID:             ownerID,
		MonitorID:           m.ID,
		MonitorName:         m.Name,
		MonitorStatus:       m.Status,
		Result:              o.Status,
		LatencyMs:           o.LatencyMs,
		Error:               o.ErrorMessage,
		ValidationErrors:    o.ValidationErrors,
		ConsecutiveFailures: m.ConsecutiveFailures,
		CheckedAt:           o.CheckedAt,
	}
	if o.StatusCode != nil {
		ev.StatusCode = *o.StatusCode
	}
	return ev
}

// Fields flattens the event into plain values for generic encoders.
func (e CheckEvent) Fields() map[string]any {
	verrs := make([]any, 0, len(e.ValidationErrors))
	for _, v := range e.ValidationErrors {
		verrs = append(verrs, v)
	}
	return map[string]any{
		"id":                   e.ID,
		"type":                 e.Type,
		"owner_id":             e.OwnerID,
		"monitor_id":           e.MonitorID,
		"monitor_name":         e.MonitorName,
		"monitor_status":       string(e.MonitorStatus),
		"result":               string(e.Result),
		"status_code":          e.StatusCode,
		"latency_ms":           e.LatencyMs,
		"error":                e.Error,
		"validation_errors":    verrs,
		"consecutive_failures": e.ConsecutiveFailures,
		"checked_at":           e.CheckedAt.UTC().Format(time.RFC3339Nano),
		"origin":               e.Origin,
	}
}

var ErrBadFields = errors.New("bad check event fields")

// FromFields is the inverse of Fields for values that went through a
// generic encoder, where every number comes back as float64.
func FromFields(f map[string]any) (CheckEvent, error) {
	var e CheckEvent
	if t, _ := f["type"].(string); t != TypeCheckCompleted {
		return e, fmt.Errorf("%w: type %q", ErrBadFields, t)
	}
	owner, ok1 := f["owner_id"].(float64)
	mon, ok2 := f["monitor_id"].(float64)
	if !ok1 || !ok2 {
		return e, fmt.Errorf("%w: owner_id and monitor_id are required", ErrBadFields)
	}
	e = CheckEvent{
		Type:      TypeCheckCompleted,
		OwnerID:   int64(owner),
		MonitorID: int64(mon),
	}
	e.ID, _ = f["id"].(string)
	e.MonitorName, _ = f["monitor_name"].(string)
	e.Error, _ = f["error"].(string)
	e.Origin, _ = f["origin"].(string)
	if s, ok := f["monitor_status"].(string); ok {
		e.MonitorStatus = monitor.Status(s)
	}
	if s, ok := f["result"].(string); ok {
		e.Result = check.Result(s)
	}
	if n, ok := f["status_code"].(float64); ok {
		e.StatusCode = int(n)
	}
	if n, ok := f["latency_ms"].(float64); ok {
		e.LatencyMs = int64(n)
	}
	if n, ok := f["consecutive_failures"].(float64); ok {
		e.ConsecutiveFailures = int(n)
	}
	if vs, ok := f["validation_errors"].([]any); ok {
		for _, v := range vs {
			if s, ok := v.(string); ok {
				e.ValidationErrors = append(e.ValidationErrors, s)
			}
		}
	}
	if s, ok := f["checked_at"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return e, fmt.Errorf("%w: checked_at: %v", ErrBadFields, err)
		}
		e.CheckedAt = t
	}
	return e, nil
}

// Multi fans an event out to every sink.
type Multi []CheckEvents

func (m Multi) EmitCheckEvent(ctx context.Context, ownerID int64, mon *monitor.Monitor, o *check.Outcome) {
	for _, s := range m {
		if s == nil {
			continue
		}
		s.EmitCheckEvent(ctx, ownerID, mon, o)
	}
}

type Nop struct{}

func (Nop) EmitCheckEvent(context.Context, int64, *monitor.Monitor, *check.Outcome) {}
