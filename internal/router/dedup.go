package router

import (
	"sync"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// Dedup remembers, per subscriber, which opportunities were delivered in the
// previous cycle and when. An opportunity that is still present in the next
// cycle is suppressed; once it drops out of a cycle it is forgotten, so a
// reappearance is delivered again. It is safe for concurrent use.
type Dedup struct {
	// previous cycle's delivered keys per subscriber -> first delivery time
	seen        map[int64]map[domain.OpportunityKey]time.Time
	resendAfter time.Duration
	mu          sync.Mutex
}

// NewDedup creates a Dedup. A positive resendAfter re-delivers a persisting
// opportunity once that long has passed since it was last delivered.
func NewDedup(resendAfter time.Duration) *Dedup {
	return &Dedup{
		seen:        make(map[int64]map[domain.OpportunityKey]time.Time),
		resendAfter: resendAfter,
	}
}

// Suppress reports whether key was delivered to subscriber in the previous
// cycle and is not yet due for a resend. It also returns the time of that
// delivery.
func (d *Dedup) Suppress(subscriber int64, key domain.OpportunityKey, now time.Time) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sentAt, ok := d.seen[subscriber][key]
	if !ok {
		return time.Time{}, false
	}
	if d.resendAfter > 0 && now.Sub(sentAt) >= d.resendAfter {
		return sentAt, false
	}
	return sentAt, true
}

// Commit replaces subscriber's remembered set with delivered. Keys absent from
// delivered are forgotten.
func (d *Dedup) Commit(subscriber int64, delivered map[domain.OpportunityKey]time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(delivered) == 0 {
		delete(d.seen, subscriber)
		return
	}
	d.seen[subscriber] = delivered
}

// Forget drops everything remembered for subscriber.
func (d *Dedup) Forget(subscriber int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, subscriber)
}

// Retain drops state for subscribers not in keep. It bounds memory when
// subscribers disappear without a mode change.
func (d *Dedup) Retain(keep map[int64]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.seen {
		if _, ok := keep[id]; !ok {
			delete(d.seen, id)
		}
	}
}
