// Package subscriber tracks chats that can receive opportunity notifications
// and their current mode.
package subscriber

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// ModeChangeFunc is called after a subscriber's mode changes.
type ModeChangeFunc func(sub domain.Subscriber, previous domain.Mode)

// Registry is the set of known subscribers. It is safe for concurrent use;
// List returns a copy so callers can iterate while modes change.
type Registry struct {
	subs      map[int64]domain.Subscriber
	listeners []ModeChangeFunc
	now       func() time.Time
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[int64]domain.Subscriber),
		now:  time.Now,
	}
}

// OnModeChange registers fn to run after every mode change. Listeners run
// synchronously, outside the registry lock.
func (r *Registry) OnModeChange(fn ModeChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Register adds a subscriber in suspended mode, or refreshes the username of
// an existing one without touching its mode.
func (r *Registry) Register(id int64, username string) domain.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[id]; ok {
		if username != "" {
			sub.Username = username
			r.subs[id] = sub
		}
		return sub
	}
	sub := domain.Subscriber{
		ID:            id,
		Username:      username,
		Mode:          domain.ModeSuspended,
		ModeChangedAt: r.now(),
	}
	r.subs[id] = sub
	return sub
}

// SetMode changes a subscriber's mode, registering it first if needed.
// Setting the current mode again is a no-op and does not notify listeners.
func (r *Registry) SetMode(id int64, mode domain.Mode) (domain.Subscriber, error) {
	if mode != domain.ModeAlerting && mode != domain.ModeSuspended {
		return domain.Subscriber{}, fmt.Errorf("subscriber: set mode %d: %w", int(mode), domain.ErrUnknownMode)
	}

	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		sub = domain.Subscriber{ID: id, Mode: domain.ModeSuspended}
	}
	previous := sub.Mode
	if ok && previous == mode {
		r.mu.Unlock()
		return sub, nil
	}
	sub.Mode = mode
	sub.ModeChangedAt = r.now()
	r.subs[id] = sub
	listeners := append([]ModeChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(sub, previous)
	}
	return sub, nil
}

// Get returns the subscriber with the given id.
func (r *Registry) Get(id int64) (domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return domain.Subscriber{}, fmt.Errorf("subscriber %d: %w", id, domain.ErrNotFound)
	}
	return sub, nil
}

// Remove forgets a subscriber and returns its last state. Listeners see an
// alerting subscriber move to suspended.
func (r *Registry) Remove(id int64) (domain.Subscriber, error) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	listeners := append([]ModeChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	if !ok {
		return domain.Subscriber{}, fmt.Errorf("subscriber %d: %w", id, domain.ErrNotFound)
	}
	if sub.Mode == domain.ModeSuspended {
		return sub, nil
	}
	previous := sub.Mode
	sub.Mode = domain.ModeSuspended
	for _, fn := range listeners {
		fn(sub, previous)
	}
	return sub, nil
}

// List returns a snapshot of all subscribers ordered by id.
func (r *Registry) List() []domain.Subscriber {
	r.mu.RLock()
	out := make([]domain.Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of subscribers per mode.
func (r *Registry) Count() map[domain.Mode]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.Mode]int, len(domain.Modes))
	for _, sub := range r.subs {
		out[sub.Mode]++
	}
	return out
}
