package reconcile

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Serializer runs at most one persist operation per list at a time. Callers
// waiting for a list give up when their context ends.
type Serializer struct {
	mu    sync.Mutex
	locks map[string]*listLock
}

type listLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewSerializer() *Serializer {
	return &Serializer{locks: map[string]*listLock{}}
}

func (s *Serializer) Do(ctx context.Context, listID string, fn func(ctx context.Context) error) error {
	lock := s.acquireRef(listID)
	defer s.releaseRef(listID, lock)

	if err := lock.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for list %s: %w", listID, err)
	}
	defer lock.sem.Release(1)
	return fn(ctx)
}

// Active returns the number of lists with a running or waiting operation.
func (s *Serializer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *Serializer) acquireRef(listID string) *listLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[listID]
	if !ok {
		lock = &listLock{sem: semaphore.NewWeighted(1)}
		s.locks[listID] = lock
	}
	lock.refs++
	return lock
}

func (s *Serializer) releaseRef(listID string, lock *listLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, listID)
	}
}
