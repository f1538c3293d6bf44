package notify

import (
	"context"
	"sync"
	"time"
)

// DefaultFlashTTL is how long a confirmation stays visible.
const DefaultFlashTTL = 3 * time.Second

// defaultFlashCapacity bounds the number of retained events.
const defaultFlashCapacity = 32

// Flash keeps recent events for display and drops them once their TTL has
// elapsed. Expiry is evaluated on read; nothing runs in the background.
type Flash struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	events   []Event
}

// FlashOption customises a Flash.
type FlashOption func(*Flash)

// WithFlashClock overrides the clock used for expiry.
func WithFlashClock(now func() time.Time) FlashOption {
	return func(f *Flash) {
		if now != nil {
			f.now = now
		}
	}
}

// WithFlashCapacity bounds how many events are kept.
func WithFlashCapacity(n int) FlashOption {
	return func(f *Flash) {
		if n > 0 {
			f.capacity = n
		}
	}
}

// NewFlash constructs a Flash. A non-positive ttl selects DefaultFlashTTL.
func NewFlash(ttl time.Duration, opts ...FlashOption) *Flash {
	if ttl <= 0 {
		ttl = DefaultFlashTTL
	}
	f := &Flash{
		ttl:      ttl,
		capacity: defaultFlashCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Notify implements Notifier.
func (f *Flash) Notify(_ context.Context, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.At.IsZero() {
		event.At = f.now()
	}
	f.events = append(f.events, event)
	if over := len(f.events) - f.capacity; over > 0 {
		f.events = append([]Event(nil), f.events[over:]...)
	}
}

// Active returns the events still within their TTL, oldest first.
func (f *Flash) Active() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	return append([]Event(nil), f.events...)
}

// Dismiss removes every pending event.
func (f *Flash) Dismiss() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

func (f *Flash) pruneLocked() {
	cutoff := f.now().Add(-f.ttl)
	kept := f.events[:0]
	for _, e := range f.events {
		if e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}
	f.events = kept
}
