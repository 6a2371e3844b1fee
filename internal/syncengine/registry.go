package syncengine

import "sync"

// Registry shares one loader per name between views that show the same
// resource at the same time. The loader is unmounted when its last holder
// releases it.
type Registry[K comparable, T any] struct {
	build func(name string) *Loader[K, T]

	mu      sync.Mutex
	entries map[string]*registryEntry[K, T]
}

type registryEntry[K comparable, T any] struct {
	loader *Loader[K, T]
	refs   int
}

func NewRegistry[K comparable, T any](build func(name string) *Loader[K, T]) *Registry[K, T] {
	return &Registry[K, T]{
		build:   build,
		entries: map[string]*registryEntry[K, T]{},
	}
}

// Acquire returns the shared loader for name and a release func. Release is
// safe to call more than once.
func (r *Registry[K, T]) Acquire(name string) (*Loader[K, T], func()) {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		entry = &registryEntry[K, T]{loader: r.build(name)}
		r.entries[name] = entry
	}
	entry.refs++
	r.mu.Unlock()

	var once sync.Once
	return entry.loader, func() {
		once.Do(func() {
			r.mu.Lock()
			entry.refs--
			last := entry.refs == 0
			if last {
				delete(r.entries, name)
			}
			r.mu.Unlock()
			if last {
				entry.loader.Unmount()
			}
		})
	}
}

func (r *Registry[K, T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
