package syncengine

import "sync"

type GuardState[K comparable] struct {
	InFlightKey      K
	LastCompletedKey K
}

// FetchGuard refuses to start a fetch for a key that is already in flight or
// already completed. The zero key is never started. It only keeps books; it
// never cancels anything.
type FetchGuard[K comparable] struct {
	mu    sync.Mutex
	state GuardState[K]
}

func NewFetchGuard[K comparable]() *FetchGuard[K] {
	return &FetchGuard[K]{}
}

func (g *FetchGuard[K]) ShouldStart(key K) bool {
	var zero K
	if key == zero {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return key != g.state.InFlightKey && key != g.state.LastCompletedKey
}

// MarkStarted replaces the in-flight key even if another key is still in flight.
func (g *FetchGuard[K]) MarkStarted(key K) {
	g.mu.Lock()
	g.state.InFlightKey = key
	g.mu.Unlock()
}

// MarkCompleted clears the in-flight marker only when it still names key, so
// a late completion cannot clear a newer fetch.
func (g *FetchGuard[K]) MarkCompleted(key K) {
	var zero K
	g.mu.Lock()
	g.state.LastCompletedKey = key
	if g.state.InFlightKey == key {
		g.state.InFlightKey = zero
	}
	g.mu.Unlock()
}

func (g *FetchGuard[K]) Invalidate() {
	var zero K
	g.mu.Lock()
	g.state.LastCompletedKey = zero
	g.mu.Unlock()
}

// Reset forgets both markers.
func (g *FetchGuard[K]) Reset() {
	g.mu.Lock()
	g.state = GuardState[K]{}
	g.mu.Unlock()
}

func (g *FetchGuard[K]) Snapshot() GuardState[K] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
