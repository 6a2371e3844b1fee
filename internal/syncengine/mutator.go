package syncengine

import (
	"context"
	"fmt"

	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/metrics"
)

type Publisher[T any] interface {
	Publish(value T)
}

type PublishFunc[T any] func(value T)

func (f PublishFunc[T]) Publish(value T) {
	f(value)
}

// Mutator applies one optimistic edit at a time against a publisher.
//
// Callers must take current from the latest published state right before
// calling Apply. Two edits that start from the same stale snapshot can undo
// each other on rollback; the mutator has no log to prevent that.
type Mutator[T any] struct {
	name   string
	target Publisher[T]
	gate   *Gate
	logger *zap.Logger
}

func NewMutator[T any](name string, target Publisher[T], opts ...Option) *Mutator[T] {
	o := applyOptions(opts)
	return &Mutator[T]{
		name:   name,
		target: target,
		gate:   o.gate,
		logger: o.logger.With(zap.String("resource", name)),
	}
}

// Prepare snapshots current and computes the next value. transform receives
// its own copy, so editing it in place cannot leak into the rollback value.
func (m *Mutator[T]) Prepare(current T, transform func(T) T, commit CommitFunc[T]) (Intent[T], error) {
	var previous, working T
	if err := deepcopy.Copy(&previous, &current); err != nil {
		return Intent[T]{}, fmt.Errorf("%s: snapshot current value: %w", m.name, err)
	}
	if err := deepcopy.Copy(&working, &current); err != nil {
		return Intent[T]{}, fmt.Errorf("%s: copy current value: %w", m.name, err)
	}
	next := working
	if transform != nil {
		next = transform(working)
	}
	return Intent[T]{Previous: previous, Next: next, Commit: commit}, nil
}

// Run publishes intent.Next, commits it, and publishes intent.Previous again
// if the commit fails. On failure it returns intent.Previous and a
// *CommitError; the rollback has already been published by then. It never
// retries.
func (m *Mutator[T]) Run(ctx context.Context, intent Intent[T]) (T, error) {
	m.publish(intent.Next)
	if intent.Commit == nil {
		metrics.Mutation(m.name, metrics.OutcomeCommitted)
		return intent.Next, nil
	}
	if err := intent.Commit(ctx, intent.Next); err != nil {
		m.publish(intent.Previous)
		metrics.Mutation(m.name, metrics.OutcomeRolledBack)
		m.logger.Warn("commit failed, rolled back", zap.Error(err))
		return intent.Previous, &CommitError{Resource: m.name, Err: err}
	}
	metrics.Mutation(m.name, metrics.OutcomeCommitted)
	return intent.Next, nil
}

func (m *Mutator[T]) Apply(ctx context.Context, current T, transform func(T) T, commit CommitFunc[T]) (T, error) {
	intent, err := m.Prepare(current, transform, commit)
	if err != nil {
		return current, err
	}
	return m.Run(ctx, intent)
}

func (m *Mutator[T]) publish(v T) {
	if !m.gate.IsMounted() {
		metrics.StaleDiscard(m.name)
		m.logger.Debug("view unmounted, dropping mutation publish")
		return
	}
	if m.target != nil {
		m.target.Publish(v)
	}
}
