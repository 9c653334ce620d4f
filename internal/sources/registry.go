package sources

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"quote-api/internal/models"
)

// Registry holds the ordered source list per data type. Readers always see a
// consistent immutable snapshot; the metrics sink's reorder task is the
// single writer and publishes a new snapshot per change (read-copy-update).
type Registry struct {
	mu    sync.Mutex // serializes writers
	lists map[models.DataType]*atomic.Pointer[[]Source]
}

// NewRegistry builds a registry from the given sources, ordered by each
// source's default priority (ascending; ties broken by id for determinism).
func NewRegistry(srcs ...Source) *Registry {
	byType := make(map[models.DataType][]Source)
	for _, s := range srcs {
		byType[s.DataType()] = append(byType[s.DataType()], s)
	}

	r := &Registry{lists: make(map[models.DataType]*atomic.Pointer[[]Source])}
	for _, dataType := range models.AllDataTypes {
		list := byType[dataType]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].DefaultPriority() != list[j].DefaultPriority() {
				return list[i].DefaultPriority() < list[j].DefaultPriority()
			}
			return list[i].ID() < list[j].ID()
		})
		ptr := &atomic.Pointer[[]Source]{}
		ptr.Store(&list)
		r.lists[dataType] = ptr
	}
	return r
}

// SourcesFor returns the current priority-ordered sources for a data type.
// The returned slice is a shared snapshot and must not be mutated.
func (r *Registry) SourcesFor(dataType models.DataType) []Source {
	ptr, ok := r.lists[dataType]
	if !ok {
		return nil
	}
	return *ptr.Load()
}

// Order returns the current source ids for a data type, in priority order.
func (r *Registry) Order(dataType models.DataType) []string {
	list := r.SourcesFor(dataType)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID()
	}
	return ids
}

// Reorder moves the source one position up (delta = +1) or down (delta = -1)
// in the data type's priority list. Moves are capped at one position per
// call so the evaluation loop cannot thrash the ordering.
func (r *Registry) Reorder(dataType models.DataType, sourceID string, delta int) error {
	if delta == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ptr, ok := r.lists[dataType]
	if !ok {
		return fmt.Errorf("registry: unknown data type %q", dataType)
	}

	current := *ptr.Load()
	idx := -1
	for i, s := range current {
		if s.ID() == sourceID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("registry: source %q not registered for %s", sourceID, dataType)
	}

	target := idx
	if delta > 0 {
		target = idx - 1 // promote toward the front
	} else {
		target = idx + 1
	}
	if target < 0 || target >= len(current) {
		return nil // already at the boundary
	}

	next := make([]Source, len(current))
	copy(next, current)
	next[idx], next[target] = next[target], next[idx]
	ptr.Store(&next)
	return nil
}
