package engine

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/dm/crawlwatch/internal/model"
)

// Registry maps session ids to the most recent accepted snapshot.
// Reads are safe from any goroutine; only the engine loop mutates it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]model.Snapshot
	// forgotten holds, per removed session, the sequence number at removal.
	// Snapshots stamped at or before it are late responses and are dropped.
	forgotten map[string]uint64
}

func newRegistry() *Registry {
	return &Registry{
		entries:   make(map[string]model.Snapshot),
		forgotten: make(map[string]uint64),
	}
}

// Get returns the current snapshot for id.
func (r *Registry) Get(id string) (model.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[id]
	return s, ok
}

// Len returns the number of sessions in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// All returns every snapshot ordered by session id.
func (r *Registry) All() []model.Snapshot {
	r.mu.RLock()
	out := make([]model.Snapshot, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s)
	}
	r.mu.RUnlock()

	SortSnapshots(out)
	return out
}

// SortSnapshots orders snaps by session id: numeric ids first in numeric
// order, then the rest lexically.
func SortSnapshots(snaps []model.Snapshot) {
	slices.SortFunc(snaps, func(a, b model.Snapshot) int { return compareIDs(a.SessionID, b.SessionID) })
}

// apply installs s if it is at least as recent as the current entry.
// A discarded snapshot returns an error wrapping model.ErrStaleSnapshot.
func (r *Registry) apply(s model.Snapshot) (model.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mark, ok := r.forgotten[s.SessionID]; ok {
		if s.ObservedAt <= mark {
			return model.Change{}, fmt.Errorf("%w: session %s was forgotten at %d, snapshot at %d",
				model.ErrStaleSnapshot, s.SessionID, mark, s.ObservedAt)
		}
		delete(r.forgotten, s.SessionID)
	}

	change := model.Change{SessionID: s.SessionID, Current: s}
	if cur, ok := r.entries[s.SessionID]; ok {
		if s.ObservedAt < cur.ObservedAt {
			return model.Change{}, fmt.Errorf("%w: session %s at %d, have %d",
				model.ErrStaleSnapshot, s.SessionID, s.ObservedAt, cur.ObservedAt)
		}
		prev := cur
		change.Previous = &prev
		change.Unexpected = !model.ValidTransition(cur.Status, s.Status)
	}
	r.entries[s.SessionID] = s
	return change, nil
}

// remove drops id. Snapshots stamped at or before mark are ignored afterwards.
func (r *Registry) remove(id string, mark uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.forgotten[id] = mark
	return ok
}

// compareIDs orders numeric ids numerically and everything else lexically,
// numbers first.
func compareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
