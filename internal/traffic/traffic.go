// Package traffic keeps a sliding window of upstream call outcomes for the
// weather proxy. It feeds the window gauges exposed on /metrics and never
// influences responses.
package traffic

import (
	"sync"
	"time"
)

// maxAge is the minimum retention. Retain extends it for longer windows.
const maxAge = 5 * time.Minute

var defaultTracker Tracker

// RecordSuccess records a successful upstream call.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a failed upstream call (network error, timeout, bad status, bad body).
func RecordError() {
	defaultTracker.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Retain keeps outcomes for at least window so ErrorRate(window) sees all of them.
func Retain(window time.Duration) {
	defaultTracker.Retain(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps. The zero value is ready to use.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	retain       time.Duration
	now          func() time.Time
}

// Retain raises the retention period to window when it exceeds the current one.
func (t *Tracker) Retain(window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if window > t.retain {
		t.retain = window
	}
}

// RecordSuccess records a successful outcome.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordError records a failed outcome.
func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) within the window; totalCount is successes + errors.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	successCount := countInWindow(t.successTimes, cutoff)
	return errCount, errCount + successCount
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention period. Slices are append-only in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	keep := maxAge
	if t.retain > keep {
		keep = t.retain
	}
	cutoff := now.Add(-keep)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
}
