package syncengine

import (
	"context"
	"errors"
	"fmt"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// LoadState is the published view of one loader. Key is the scope key the
// loader is bound to; LastLoadedKey is the key Data was fetched for.
type LoadState[K comparable, T any] struct {
	Status        Status
	Key           K
	Data          T
	HasData       bool
	Err           error
	LastLoadedKey K
}

// Current reports whether Data belongs to the bound key.
func (s LoadState[K, T]) Current() bool {
	return s.HasData && s.LastLoadedKey == s.Key
}

type FetchFunc[K comparable, T any] func(ctx context.Context, key K) (T, error)

type CommitFunc[T any] func(ctx context.Context, value T) error

// Intent records one optimistic edit: the value to roll back to, the value
// to show, and the write that confirms it.
type Intent[T any] struct {
	Previous T
	Next     T
	Commit   CommitFunc[T]
}

var (
	ErrFetchFailed  = errors.New("fetch failed")
	ErrCommitFailed = errors.New("commit failed")
	ErrNoData       = errors.New("no loaded data")
)

// FetchError is published in LoadState.Err when a fetch fails.
type FetchError struct {
	Resource string
	Key      any
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch %v: %v", e.Resource, e.Key, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// CommitError is returned by Mutator.Apply after the rollback was published.
type CommitError struct {
	Resource string
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s: commit: %v", e.Resource, e.Err)
}

func (e *CommitError) Unwrap() []error {
	return []error{ErrCommitFailed, e.Err}
}
