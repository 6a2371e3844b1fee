// Package scope holds the currently selected property and announces changes
// to it on the event bus.
package scope

import (
	"strings"
	"sync"

	"github.com/g960059/hostkeep/internal/events"
)

// Change is published on Changed whenever the selection moves. An empty
// Current means nothing is selected.
type Change struct {
	Previous string
	Current  string
}

var Changed = events.NewTopic[Change]("scope.changed")

type Selector struct {
	bus *events.Bus

	// publish serializes announcements so subscribers see changes in the
	// order they were made.
	publish sync.Mutex
	mu      sync.Mutex
	current string
}

func NewSelector(bus *events.Bus) *Selector {
	return &Selector{bus: bus}
}

func (s *Selector) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Select makes key the current scope and reports whether it changed.
// Selecting the current key again publishes nothing.
func (s *Selector) Select(key string) bool {
	key = strings.TrimSpace(key)
	s.publish.Lock()
	defer s.publish.Unlock()

	s.mu.Lock()
	prev := s.current
	if prev == key {
		s.mu.Unlock()
		return false
	}
	s.current = key
	s.mu.Unlock()

	if s.bus != nil {
		events.Publish(s.bus, Changed, Change{Previous: prev, Current: key})
	}
	return true
}

func (s *Selector) Clear() bool {
	return s.Select("")
}

// Subscribe calls fn for every selection change.
func (s *Selector) Subscribe(fn func(Change)) (cancel func()) {
	return events.Subscribe(s.bus, Changed, func(ev events.Event[Change]) {
		fn(ev.Payload)
	})
}
