// Package util holds helpers shared by the long running loops.
package util

import (
	"sync"
	"time"
)

// Throttler reports whether enough time has passed since it last said yes.
// It is safe for concurrent use.
type Throttler struct {
	mu   sync.Mutex
	d    time.Duration
	last time.Time
}

func NewThrottler(d time.Duration) *Throttler {
	tt := &Throttler{d: d, last: time.Date(0, 0, 0, 0, 0, 0, 0, time.UTC)}
	return tt
}

func (tt *Throttler) Ok() bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	now := time.Now()
	if now.Before(tt.last.Add(tt.d)) {
		return false
	}
	tt.last = now
	return true
}
