package preload

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrCapacity is returned when the registry already holds its maximum number of coins
	ErrCapacity = errors.New("preload registry is full")
	// ErrAlreadyInFlight is returned when the coin is already being preloaded
	ErrAlreadyInFlight = errors.New("preload already in flight")
)

type slot struct {
	ticket   uint64
	added    time.Time
	deadline time.Time
}

// Entry describes one in-flight preload
type Entry struct {
	ID       string    `json:"id"`
	Added    time.Time `json:"added"`
	Deadline time.Time `json:"deadline"`
}

// Registry is the bounded set of coin IDs with a preload in flight.
// An ID is present at most once. Each admission gets a ticket; only the holder of the
// current ticket can release the slot, so a late finisher cannot free a newer entry.
type Registry struct {
	mu      sync.Mutex
	max     int
	slots   map[string]slot
	tickets uint64
	now     func() time.Time
}

// NewRegistry creates a registry admitting at most max concurrent IDs
func NewRegistry(max int) *Registry {
	if max < 1 {
		max = 1
	}
	return &Registry{
		max:   max,
		slots: make(map[string]slot, max),
		now:   time.Now,
	}
}

// TryAdd admits id until deadline. It fails without changing the registry
// when id is already present or the registry is full.
func (r *Registry) TryAdd(id string, deadline time.Time) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[id]; ok {
		return 0, ErrAlreadyInFlight
	}
	if len(r.slots) >= r.max {
		return 0, ErrCapacity
	}
	r.tickets++
	r.slots[id] = slot{ticket: r.tickets, added: r.now(), deadline: deadline}
	return r.tickets, nil
}

// Remove releases id if ticket still owns it
func (r *Registry) Remove(id string, ticket uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.ticket != ticket {
		return false
	}
	delete(r.slots, id)
	return true
}

// Contains reports whether id is in flight
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[id]
	return ok
}

// Reap releases every entry whose deadline passed and returns their IDs
func (r *Registry) Reap(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []string
	for id, s := range r.slots {
		if !s.deadline.IsZero() && now.After(s.deadline) {
			delete(r.slots, id)
			reaped = append(reaped, id)
		}
	}
	sort.Strings(reaped)
	return reaped
}

// Snapshot returns the in-flight entries ordered by admission
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	type ordered struct {
		Entry
		ticket uint64
	}
	all := make([]ordered, 0, len(r.slots))
	for id, s := range r.slots {
		all = append(all, ordered{Entry: Entry{ID: id, Added: s.added, Deadline: s.deadline}, ticket: s.ticket})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ticket < all[j].ticket })

	out := make([]Entry, len(all))
	for i, o := range all {
		out[i] = o.Entry
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *Registry) Max() int {
	return r.max
}
