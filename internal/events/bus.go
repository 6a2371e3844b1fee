// Package events is a typed publish/subscribe channel between components
// that do not know about each other. Subscriptions are explicit and
// revocable.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/logging"
)

// Topic names a stream of payloads of type T.
type Topic[T any] struct {
	name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() string {
	return t.name
}

type Event[T any] struct {
	ID      string
	Topic   string
	At      time.Time
	Payload T
}

type subscription struct {
	id      uint64
	deliver func(any)
}

type Bus struct {
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscription
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logging.OrNop(logger).Named(logging.ComponentEvents),
		now:    func() time.Time { return time.Now().UTC() },
		topics: map[string][]subscription{},
	}
}

// Subscribe registers fn for topic. Handlers run synchronously on the
// publishing goroutine in subscription order. cancel is idempotent.
func Subscribe[T any](b *Bus, topic Topic[T], fn func(Event[T])) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic.name] = append(b.topics[topic.name], subscription{
		id: id,
		deliver: func(v any) {
			fn(v.(Event[T]))
		},
	})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.topics[topic.name]
			for i, s := range subs {
				if s.id == id {
					b.topics[topic.name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.topics[topic.name]) == 0 {
				delete(b.topics, topic.name)
			}
		})
	}
}

// Publish delivers payload to every current subscriber of topic and returns
// the number of handlers that ran without panicking. A panicking handler is
// logged and skipped.
func Publish[T any](b *Bus, topic Topic[T], payload T) int {
	ev := Event[T]{
		ID:      uuid.NewString(),
		Topic:   topic.name,
		At:      b.now(),
		Payload: payload,
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.topics[topic.name]...)
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if err := b.deliver(s, ev); err != nil {
			b.logger.Error("event handler failed",
				zap.String("topic", topic.name),
				zap.String("event_id", ev.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Bus) deliver(s subscription, ev any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	s.deliver(ev)
	return nil
}

// Subscribers returns the number of live subscriptions on a topic name.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
