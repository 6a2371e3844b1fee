package syncengine

import (
	"slices"
	"sync"
)

type subscription[S any] struct {
	id uint64
	fn func(S)
}

// broadcaster delivers published values to subscribers in publish order.
// Whichever goroutine finds the queue idle drains it; values published by
// a subscriber while it runs are queued behind the current batch, so
// subscribers may call back into their publisher.
type broadcaster[S any] struct {
	mu          sync.Mutex
	subs        []subscription[S]
	nextID      uint64
	pending     []S
	dispatching bool
}

func (b *broadcaster[S]) subscribe(fn func(S)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[S]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(s subscription[S]) bool { return s.id == id })
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster[S]) enqueue(v S) {
	b.mu.Lock()
	b.pending = append(b.pending, v)
	b.mu.Unlock()
}

func (b *broadcaster[S]) flush() {
	b.mu.Lock()
	if b.dispatching {
		b.mu.Unlock()
		return
	}
	b.dispatching = true
	for len(b.pending) > 0 {
		batch := b.pending
		b.pending = nil
		subs := slices.Clone(b.subs)
		b.mu.Unlock()
		for _, v := range batch {
			for _, s := range subs {
				s.fn(v)
			}
		}
		b.mu.Lock()
	}
	b.dispatching = false
	b.mu.Unlock()
}
