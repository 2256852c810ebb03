package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

var _ monitor.Repo = (*Monitors)(nil)

// Monitors keeps monitors in process. Reads return copies.
type Monitors struct {
	mu     sync.RWMutex
	byID   map[int64]*monitor.Monitor
	nextID int64
}

func NewMonitors() *Monitors {
	return &Monitors{byID: map[int64]*monitor.Monitor{}}
}

// Put inserts or replaces m. A zero ID gets the next free one.
func (r *Monitors) Put(m *monitor.Monitor) *monitor.Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := m.Clone()
	if cp.ID == 0 {
		r.nextID++
		cp.ID = r.nextID
	} else if cp.ID > r.nextID {
		r.nextID = cp.ID
	}
	if cp.Status == "" {
		cp.Status = monitor.StatusPending
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.byID[cp.ID] = cp
	return cp.Clone()
}

func (r *Monitors) FindDue(_ context.Context, q monitor.DueQuery) ([]*monitor.Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*monitor.Monitor
	for _, m := range r.byID {
		if !m.Enabled || m.NextCheckTime == nil || m.NextCheckTime.After(q.Now) {
			continue
		}
		if len(q.Owners) > 0 && !slices.Contains(q.Owners, m.UserID) {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextCheckTime.Equal(*out[j].NextCheckTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextCheckTime.Before(*out[j].NextCheckTime)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *Monitors) ClaimDue(_ context.Context, id int64, expected *time.Time, next time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return false, monitor.ErrNotFound
	}
	if !sameTime(m.NextCheckTime, expected) {
		return false, nil
	}
	m.NextCheckTime = &next
	m.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *Monitors) AdvanceNextCheck(_ context.Context, id int64, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return monitor.ErrNotFound
	}
	m.NextCheckTime = &next
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Monitors) UpdateStats(_ context.Context, id int64, u monitor.StatsUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return monitor.ErrNotFound
	}
	u.ApplyTo(m)
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Monitors) GetByID(_ context.Context, id int64) (*monitor.Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, monitor.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *Monitors) ListByOwner(_ context.Context, userID int64) ([]*monitor.Monitor, error) {
	return r.list(func(m *monitor.Monitor) bool { return m.UserID == userID }), nil
}

func (r *Monitors) ListEnabled(_ context.Context) ([]*monitor.Monitor, error) {
	return r.list(func(m *monitor.Monitor) bool { return m.Enabled }), nil
}

func (r *Monitors) list(keep func(*monitor.Monitor) bool) []*monitor.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*monitor.Monitor
	for _, m := range r.byID {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
