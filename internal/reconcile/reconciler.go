// Package reconcile turns a user-reordered list into persisted integer
// positions.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
)

// Base is the position given to the first item of a reconciled list.
const Base = 1

var ErrInvalidReorder = errors.New("invalid reorder")

// Ordered is implemented by list items that carry a stored position.
// WithPosition returns a copy; it must not modify the receiver.
type Ordered[T any] interface {
	OrderID() string
	OrderPosition() int
	WithPosition(position int) T
}

// Change is one position write. Changes are independent of each other and
// may be applied in any order.
type Change struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

type Result[T any] struct {
	Items   []T
	Changes []Change
}

// Reorder moves the item with movedID to targetIndex and renumbers the list
// from Base. Changes lists, in result order, every item whose position
// differs from the one it had before. The input slice is not modified.
func Reorder[T Ordered[T]](items []T, movedID string, targetIndex int) (Result[T], error) {
	from := -1
	for i, it := range items {
		if it.OrderID() == movedID {
			from = i
			break
		}
	}
	if from < 0 {
		return Result[T]{}, fmt.Errorf("%w: unknown id %q", ErrInvalidReorder, movedID)
	}
	if targetIndex < 0 || targetIndex >= len(items) {
		return Result[T]{}, fmt.Errorf("%w: target index %d outside [0, %d)", ErrInvalidReorder, targetIndex, len(items))
	}

	moved := make([]T, 0, len(items))
	moved = append(moved, items[:from]...)
	moved = append(moved, items[from+1:]...)
	moved = append(moved[:targetIndex], append([]T{items[from]}, moved[targetIndex:]...)...)
	return renumber(moved), nil
}

// Normalize sorts items by their stored position (ties keep slice order) and
// renumbers them from Base. It repairs lists with gaps or duplicate
// positions.
func Normalize[T Ordered[T]](items []T) Result[T] {
	sorted := append([]T(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderPosition() < sorted[j].OrderPosition()
	})
	return renumber(sorted)
}

// ApplyChanges writes changes onto items and returns them sorted by
// position. A change naming an unknown id fails the whole batch.
func ApplyChanges[T Ordered[T]](items []T, changes []Change) ([]T, error) {
	index := make(map[string]int, len(items))
	out := append([]T(nil), items...)
	for i, it := range out {
		index[it.OrderID()] = i
	}
	for _, c := range changes {
		i, ok := index[c.ID]
		if !ok {
			return nil, fmt.Errorf("%w: change for unknown id %q", ErrInvalidReorder, c.ID)
		}
		out[i] = out[i].WithPosition(c.Position)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderPosition() < out[j].OrderPosition()
	})
	return out, nil
}

func renumber[T Ordered[T]](items []T) Result[T] {
	res := Result[T]{Items: make([]T, len(items))}
	for i, it := range items {
		pos := i + Base
		if it.OrderPosition() != pos {
			res.Changes = append(res.Changes, Change{ID: it.OrderID(), Position: pos})
			it = it.WithPosition(pos)
		}
		res.Items[i] = it
	}
	return res
}
