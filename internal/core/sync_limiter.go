package core

// sync_limiter.go bounds how many sync runs execute at once.
//
// A run holds a feed request and, when persisting, a store connection for its
// whole duration. Callers beyond the limit wait up to maxWait for a slot and
// then fail with ErrTooManySyncs. WaitForDrain lets shutdown wait for
// in-flight runs.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManySyncs is returned when all sync slots are occupied and the wait
// timeout expires.
var ErrTooManySyncs = errors.New("too many concurrent syncs, please try again later")

// DefaultMaxConcurrentSyncs is the default limit for parallel sync runs.
const DefaultMaxConcurrentSyncs = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// SyncLimiter is a semaphore over sync runs.
type SyncLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewSyncLimiter creates a limiter that allows at most maxConcurrent simultaneous runs.
func NewSyncLimiter(maxConcurrent int, maxWait time.Duration) *SyncLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSyncs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &SyncLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot.
// Returns ErrTooManySyncs if none frees up within maxWait, or ctx.Err()
// if ctx ends first. The caller must call Release after a successful Acquire.
func (l *SyncLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-timer.C:
		return ErrTooManySyncs

	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *SyncLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *SyncLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running syncs.
func (l *SyncLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent syncs.
func (l *SyncLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *SyncLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active syncs complete or ctx is cancelled.
func (l *SyncLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SyncLimiterStatus is a snapshot of the limiter's state.
type SyncLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *SyncLimiter) Status() SyncLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return SyncLimiterStatus{
		Active:        active,
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
