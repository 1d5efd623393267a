// Package presence keeps the in-memory directory of online couriers.
//
// Entries are keyed by courier identity but deleted by connection handle:
// a close arriving from a connection that no longer owns an entry must not
// remove the fresher registration made by a reconnect.
package presence

import (
	"cmp"
	"iter"
	"slices"
	"sync"

	"courier-dispatch/internal/domain"
)

// RegisterResult describes what Register changed.
type RegisterResult struct {
	// Created is true when the courier was offline before this call.
	Created bool
	// Replaced is the handle that owned the entry before, if it differs from the new one.
	Replaced domain.ConnHandle
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  map[domain.CourierID]domain.CourierPresence
	byHandle map[domain.ConnHandle]map[domain.CourierID]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[domain.CourierID]domain.CourierPresence),
		byHandle: make(map[domain.ConnHandle]map[domain.CourierID]struct{}),
	}
}

// Register inserts or replaces the entry for p.CourierID.
func (r *Registry) Register(p domain.CourierPresence) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res RegisterResult
	prev, ok := r.entries[p.CourierID]
	switch {
	case !ok:
		res.Created = true
	case prev.Handle != p.Handle:
		res.Replaced = prev.Handle
		r.unindex(prev.Handle, p.CourierID)
	}

	r.entries[p.CourierID] = p
	ids := r.byHandle[p.Handle]
	if ids == nil {
		ids = make(map[domain.CourierID]struct{}, 1)
		r.byHandle[p.Handle] = ids
	}
	ids[p.CourierID] = struct{}{}
	return res
}

// Lookup returns the current entry for id.
func (r *Registry) Lookup(id domain.CourierID) (domain.CourierPresence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[id]
	return p, ok
}

// List yields current entries ordered by courier id, restricted to partner
// when it is not empty. The snapshot is taken when iteration starts and is
// yielded without holding the lock.
func (r *Registry) List(partner domain.PartnerID) iter.Seq[domain.CourierPresence] {
	return func(yield func(domain.CourierPresence) bool) {
		for _, p := range r.snapshot(partner) {
			if !yield(p) {
				return
			}
		}
	}
}

func (r *Registry) snapshot(partner domain.PartnerID) []domain.CourierPresence {
	r.mu.RLock()
	out := make([]domain.CourierPresence, 0, len(r.entries))
	for _, p := range r.entries {
		if partner != "" && p.PartnerID != partner {
			continue
		}
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.CourierPresence) int {
		return cmp.Compare(a.CourierID, b.CourierID)
	})
	return out
}

// Evict removes every entry currently owned by h and returns them.
// Entries re-registered under another handle are left alone.
func (r *Registry) Evict(h domain.ConnHandle) []domain.CourierPresence {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, ok := r.byHandle[h]
	if !ok {
		return nil
	}
	delete(r.byHandle, h)

	evicted := make([]domain.CourierPresence, 0, len(ids))
	for id := range ids {
		p, ok := r.entries[id]
		if !ok || p.Handle != h {
			continue
		}
		delete(r.entries, id)
		evicted = append(evicted, p)
	}
	return evicted
}

// Len returns the number of online couriers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// unindex drops id from h's reverse index. Caller holds r.mu.
func (r *Registry) unindex(h domain.ConnHandle, id domain.CourierID) {
	ids := r.byHandle[h]
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.byHandle, h)
	}
}
