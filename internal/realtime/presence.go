package realtime

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Presence remembers owners with a live session. Entries expire unless
// refreshed, so a client that vanished without closing drops out on its own.
type Presence struct {
	lru *expirable.LRU[int64, time.Time]
}

func NewPresence(size int, ttl time.Duration) *Presence {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Presence{lru: expirable.NewLRU[int64, time.Time](size, nil, ttl)}
}

func (p *Presence) Touch(owner int64) { p.lru.Add(owner, time.Now()) }

func (p *Presence) Remove(owner int64) { p.lru.Remove(owner) }

func (p *Presence) IsActive(owner int64) bool {
	_, ok := p.lru.Get(owner)
	return ok
}

// ActiveOwners returns the owner ids in ascending order.
func (p *Presence) ActiveOwners(context.Context) ([]int64, error) {
	keys := p.lru.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}
