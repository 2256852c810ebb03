package memory

import (
	"context"
	"sync"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
)

var (
	_ check.Repo     = (*Results)(nil)
	_ alert.Repo     = (*Alerts)(nil)
	_ alert.Settings = (*Settings)(nil)
)

type Results struct {
	mu     sync.Mutex
	items  []*check.Outcome
	nextID int64
}

func NewResults() *Results { return &Results{} }

func (r *Results) Create(_ context.Context, o *check.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	cp := *o
	r.items = append(r.items, &cp)
	return nil
}

// ListByMonitor returns the newest results first.
func (r *Results) ListByMonitor(_ context.Context, monitorID int64, limit int) ([]*check.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*check.Outcome
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].MonitorID != monitorID {
			continue
		}
		cp := *r.items[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type Alerts struct {
	mu     sync.Mutex
	items  []*alert.Record
	nextID int64
}

func NewAlerts() *Alerts { return &Alerts{} }

func (r *Alerts) Create(_ context.Context, rec *alert.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	cp := *rec
	cp.Recipients = append([]string(nil), rec.Recipients...)
	r.items = append(r.items, &cp)
	return nil
}

func (r *Alerts) ListByMonitor(_ context.Context, monitorID int64, limit int) ([]*alert.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*alert.Record
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].MonitorID != monitorID {
			continue
		}
		cp := *r.items[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every record in insertion order.
func (r *Alerts) All() []*alert.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*alert.Record, 0, len(r.items))
	for _, a := range r.items {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

type Settings struct {
	mu       sync.RWMutex
	def      string
	recovery bool
}

func NewSettings(defaultRecipient string, recovery bool) *Settings {
	return &Settings{def: defaultRecipient, recovery: recovery}
}

func (s *Settings) DefaultRecipient(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def, nil
}

func (s *Settings) RecoveryAlertsEnabled(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recovery, nil
}

func (s *Settings) Set(defaultRecipient string, recovery bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.def, s.recovery = defaultRecipient, recovery
}
