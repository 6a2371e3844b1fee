package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/metrics"
)

// Loader publishes the LoadState of one resource for the scope key its view
// is bound to. It is owned by a single view.
type Loader[K comparable, T any] struct {
	name   string
	fetch  FetchFunc[K, T]
	guard  *FetchGuard[K]
	gate   *Gate
	base   *zap.Logger
	logger *zap.Logger
	out    broadcaster[LoadState[K, T]]

	life context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu         sync.Mutex
	status     *statusMachine
	state      LoadState[K, T]
	bound      K
	generation uint64
}

func NewLoader[K comparable, T any](name string, fetch FetchFunc[K, T], opts ...Option) *Loader[K, T] {
	o := applyOptions(opts)
	life, stop := context.WithCancel(context.Background())
	return &Loader[K, T]{
		name:   name,
		fetch:  fetch,
		guard:  NewFetchGuard[K](),
		gate:   o.gate,
		base:   o.logger,
		logger: o.logger.With(zap.String("resource", name)),
		life:   life,
		stop:   stop,
		status: newStatusMachine(),
		state:  LoadState[K, T]{Status: StatusIdle},
	}
}

func (l *Loader[K, T]) Name() string {
	return l.name
}

func (l *Loader[K, T]) State() LoadState[K, T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Key returns the scope key the loader is bound to.
func (l *Loader[K, T]) Key() K {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bound
}

func (l *Loader[K, T]) GuardState() GuardState[K] {
	return l.guard.Snapshot()
}

// Subscribe registers fn for every published state. fn runs outside the
// loader lock, in publish order, and may call back into the loader.
func (l *Loader[K, T]) Subscribe(fn func(LoadState[K, T])) (cancel func()) {
	return l.out.subscribe(fn)
}

// Load binds the loader to key and starts a fetch unless one for key is
// already in flight or already completed. It never blocks on the fetch.
// The fetch sees the values of ctx but is only canceled by Unmount.
func (l *Loader[K, T]) Load(ctx context.Context, key K) {
	l.mu.Lock()
	l.loadLocked(ctx, key, false)
	l.mu.Unlock()
	l.out.flush()
}

// Retry forgets the last completion and loads the bound key again. A fetch
// already in flight for that key is not duplicated.
func (l *Loader[K, T]) Retry(ctx context.Context) {
	l.mu.Lock()
	l.guard.Invalidate()
	l.loadLocked(ctx, l.bound, false)
	l.mu.Unlock()
	l.out.flush()
}

// InvalidateAndReload always starts a fresh fetch for the bound key. Any
// fetch already in flight becomes stale.
func (l *Loader[K, T]) InvalidateAndReload(ctx context.Context) {
	l.mu.Lock()
	l.guard.Invalidate()
	l.loadLocked(ctx, l.bound, true)
	l.mu.Unlock()
	l.out.flush()
}

// Unmount stops all further publishes and cancels in-flight fetches.
func (l *Loader[K, T]) Unmount() {
	l.gate.Unmount()
	l.stop()
}

// Wait blocks until every started fetch has returned and been handled.
func (l *Loader[K, T]) Wait() {
	l.wg.Wait()
}

func (l *Loader[K, T]) loadLocked(ctx context.Context, key K, force bool) {
	var zero K
	if key != l.bound {
		l.bound = key
		l.generation++
		l.guard.Reset()
	}
	if key == zero {
		if l.state.Status != StatusIdle || l.state.HasData || l.state.Key != zero {
			l.publishLocked(eventClear, LoadState[K, T]{Key: zero})
		}
		return
	}
	if !force && !l.guard.ShouldStart(key) {
		return
	}

	l.generation++
	gen := l.generation
	l.guard.MarkStarted(key)

	next := LoadState[K, T]{Key: key}
	if l.state.HasData && l.state.LastLoadedKey == key {
		next.Data = l.state.Data
		next.HasData = true
		next.LastLoadedKey = key
	}
	l.publishLocked(eventStart, next)
	metrics.LoadStarted(l.name)

	l.wg.Add(1)
	go l.run(ctx, key, gen)
}

func (l *Loader[K, T]) run(ctx context.Context, key K, gen uint64) {
	defer l.wg.Done()
	fetchCtx, cancel := l.detach(ctx)
	defer cancel()

	started := time.Now()
	data, err := l.fetch(fetchCtx, key)
	metrics.ObserveFetch(l.name, time.Since(started))

	l.mu.Lock()
	if !l.currentLocked(key, gen) {
		l.mu.Unlock()
		metrics.StaleDiscard(l.name)
		l.logger.Debug("discarding stale fetch result",
			zap.Any("key", key),
			zap.Uint64("generation", gen),
			zap.Error(err))
		return
	}
	l.guard.MarkCompleted(key)
	if err != nil {
		next := LoadState[K, T]{Key: key, Err: &FetchError{Resource: l.name, Key: key, Err: err}}
		if l.state.HasData && l.state.LastLoadedKey == key {
			next.Data = l.state.Data
			next.HasData = true
			next.LastLoadedKey = key
		}
		l.publishLocked(eventFail, next)
		l.mu.Unlock()
		metrics.LoadFailed(l.name)
		l.logger.Warn("fetch failed", zap.Any("key", key), zap.Error(err))
	} else {
		l.publishLocked(eventSucceed, LoadState[K, T]{Key: key, Data: data, HasData: true, LastLoadedKey: key})
		l.mu.Unlock()
	}
	l.out.flush()
}

// currentLocked reports whether a fetch started as generation gen may still
// commit its result.
func (l *Loader[K, T]) currentLocked(key K, gen uint64) bool {
	return l.gate.IsMounted() && gen == l.generation && key == l.bound
}

func (l *Loader[K, T]) publishLocked(event string, next LoadState[K, T]) {
	if !l.gate.IsMounted() {
		return
	}
	status, err := l.status.Fire(event)
	if err != nil {
		l.logger.Error("unexpected status transition", zap.Error(err))
	}
	next.Status = status
	l.state = next
	l.out.enqueue(next)
}

func (l *Loader[K, T]) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	release := context.AfterFunc(l.life, cancel)
	return fetchCtx, func() {
		release()
		cancel()
	}
}

// Replace publishes v as the data of the bound key without touching the
// status. Mutators use it to show optimistic values.
func (l *Loader[K, T]) Replace(v T) {
	l.mu.Lock()
	key := l.bound
	l.mu.Unlock()
	l.replace(key, v)
}

func (l *Loader[K, T]) replace(key K, v T) {
	l.mu.Lock()
	if key != l.bound || !l.gate.IsMounted() {
		l.mu.Unlock()
		metrics.StaleDiscard(l.name)
		l.logger.Debug("discarding stale mutation publish", zap.Any("key", key))
		return
	}
	next := l.state
	next.Data = v
	next.HasData = true
	next.LastLoadedKey = key
	l.state = next
	l.out.enqueue(next)
	l.mu.Unlock()
	l.out.flush()
}

// Mutator returns a mutator whose publishes land on the key bound right now.
// Publishes made after the view moved to another key are dropped.
func (l *Loader[K, T]) Mutator() *Mutator[T] {
	return l.mutatorFor(l.Key())
}

func (l *Loader[K, T]) mutatorFor(key K) *Mutator[T] {
	publish := PublishFunc[T](func(v T) { l.replace(key, v) })
	return NewMutator[T](l.name, publish, WithGate(l.gate), WithLogger(l.base))
}

// Mutate reads the latest published data and applies an optimistic edit to
// it. It fails with ErrNoData when nothing has been loaded for the bound key.
//
// A fetch for the key that is in flight when the edit starts, or that starts
// while the commit runs, may have read the store before the commit landed. Its
// result is discarded and the key is fetched again once the commit returns.
func (l *Loader[K, T]) Mutate(ctx context.Context, transform func(T) T, commit CommitFunc[T]) (T, error) {
	l.mu.Lock()
	st := l.state
	if !st.Current() {
		l.mu.Unlock()
		var zero T
		return zero, fmt.Errorf("%s: %w", l.name, ErrNoData)
	}
	superseded := l.guard.Snapshot().InFlightKey == st.Key
	l.generation++
	gen := l.generation
	l.mu.Unlock()

	v, err := l.mutatorFor(st.Key).Apply(ctx, st.Data, transform, commit)

	l.mu.Lock()
	if l.gate.IsMounted() && l.bound == st.Key && (superseded || l.generation != gen) {
		l.logger.Debug("reloading after mutation overtook a fetch", zap.Any("key", st.Key))
		l.guard.Invalidate()
		l.loadLocked(ctx, st.Key, true)
	}
	l.mu.Unlock()
	l.out.flush()
	return v, err
}
