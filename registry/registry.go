// Package registry implements the object arena of one connection.
//
// Every remote entity lives in a flat map keyed by guid. Tree edges are stored
// as guids, never as pointers, so there are no ownership cycles and disposing a
// subtree is a plain traversal over the map:
//
//	"" (root)
//	 └── "Playwright@1"
//	      ├── "browser-type@chromium"
//	      │    └── "browser@1"          Remove("browser-type@chromium") yields
//	      │         └── "context@1"     [browser-type@chromium, browser@1, context@1]
//	      └── "browser-type@firefox"
//
// A guid can be inserted once. The most recent DefaultTombstones removed guids
// are remembered so a late or replayed __create__ cannot resurrect them; older
// ones are forgotten and rely on the driver never reusing a guid.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicate      = errors.New("guid already registered")
	ErrReused         = errors.New("guid was already disposed")
	ErrParentNotFound = errors.New("parent not registered")
	ErrNotFound       = errors.New("guid not registered")
	ErrCycle          = errors.New("adoption would create a cycle")
)

// DefaultTombstones is how many removed guids an arena remembers.
const DefaultTombstones = 4096

type node[T any] struct {
	value    T
	parent   string
	children []string // insertion order
}

// Registry is safe for concurrent use. All mutations take the write lock, so
// two disposals of overlapping subtrees never remove a node twice.
type Registry[T any] struct {
	mu      sync.RWMutex
	root    string
	nodes   map[string]*node[T]
	removed map[string]struct{}
	closed  bool

	// tombstones is a ring over removed, oldest entry at next once full.
	tombstones []string
	next       int
	limit      int
}

// New creates an arena whose root is already registered under rootGUID.
func New[T any](rootGUID string, root T) *Registry[T] {
	return &Registry[T]{
		root:    rootGUID,
		nodes:   map[string]*node[T]{rootGUID: {value: root}},
		removed: make(map[string]struct{}),
		limit:   DefaultTombstones,
	}
}

// Insert registers value under parent. It fails if guid was ever registered or
// if parent is not currently registered.
func (r *Registry[T]) Insert(guid, parent string, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[guid]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, guid)
	}
	if _, ok := r.removed[guid]; ok {
		return fmt.Errorf("%w: %s", ErrReused, guid)
	}
	p, ok := r.nodes[parent]
	if !ok || r.closed {
		return fmt.Errorf("%w: %s (child %s)", ErrParentNotFound, parent, guid)
	}

	r.nodes[guid] = &node[T]{value: value, parent: parent}
	p.children = append(p.children, guid)
	return nil
}

// Lookup returns the value registered under guid.
func (r *Registry[T]) Lookup(guid string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[guid]
	if !ok {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Contains reports whether guid is currently registered.
func (r *Registry[T]) Contains(guid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[guid]
	return ok
}

// Parent returns the parent guid of guid. The root has no parent.
func (r *Registry[T]) Parent(guid string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[guid]
	if !ok || guid == r.root {
		return "", false
	}
	return n.parent, true
}

// Children returns a copy of the child guids of guid in insertion order.
func (r *Registry[T]) Children(guid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[guid]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}

// Len returns the number of registered entries, root included.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Remove unregisters guid and its whole subtree, detaches it from its parent and
// returns the removed values in pre-order. Removing an absent guid returns nil;
// the root cannot be removed this way (use Clear).
func (r *Registry[T]) Remove(guid string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[guid]
	if !ok || guid == r.root {
		return nil
	}
	if p, ok := r.nodes[n.parent]; ok {
		p.children = without(p.children, guid)
	}
	return r.removeSubtree(guid, nil)
}

// Adopt moves guid (with its subtree) under newParent. If newParent is not
// registered the moved subtree is removed instead and returned, so that the
// caller disposes it.
func (r *Registry[T]) Adopt(guid, newParent string) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[guid]
	if !ok || guid == r.root {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, guid)
	}
	np, ok := r.nodes[newParent]
	if !ok {
		if p, ok := r.nodes[n.parent]; ok {
			p.children = without(p.children, guid)
		}
		return r.removeSubtree(guid, nil), fmt.Errorf("%w: %s (adopting %s)", ErrParentNotFound, newParent, guid)
	}
	for g := newParent; g != r.root; g = r.nodes[g].parent {
		if g == guid {
			return nil, fmt.Errorf("%w: %s under %s", ErrCycle, guid, newParent)
		}
	}

	if op, ok := r.nodes[n.parent]; ok {
		op.children = without(op.children, guid)
	}
	n.parent = newParent
	np.children = append(np.children, guid)
	return nil, nil
}

// Clear removes every entry, root included, and refuses further inserts. It
// returns the removed values in pre-order starting at the root.
func (r *Registry[T]) Clear() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if _, ok := r.nodes[r.root]; !ok {
		return nil
	}
	return r.removeSubtree(r.root, nil)
}

// removeSubtree must be called with mu held.
func (r *Registry[T]) removeSubtree(guid string, out []T) []T {
	n, ok := r.nodes[guid]
	if !ok {
		return out
	}
	delete(r.nodes, guid)
	r.tombstone(guid)
	out = append(out, n.value)
	for _, child := range n.children {
		out = r.removeSubtree(child, out)
	}
	return out
}

// tombstone must be called with mu held.
func (r *Registry[T]) tombstone(guid string) {
	if r.limit <= 0 {
		return
	}
	if len(r.tombstones) < r.limit {
		r.tombstones = append(r.tombstones, guid)
	} else {
		delete(r.removed, r.tombstones[r.next])
		r.tombstones[r.next] = guid
		r.next = (r.next + 1) % r.limit
	}
	r.removed[guid] = struct{}{}
}

func without(list []string, guid string) []string {
	for i, g := range list {
		if g == guid {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
