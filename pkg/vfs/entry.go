package vfs

import (
	"weak"

	"scarlet/pkg/syncutil"
)

// Entry is a VfsEntry: a cached (parent, name) → node binding. Entries are cache, never ground truth — the Node layer is
// authoritative, and any Entry may be dropped and rebuilt via a fresh
// Lookup at any time.
//
// The original design calls for *both* parent and child links to be weak,
// so the bidirectional cache tree cannot leak under a naive
// reference-counted allocator, where a strong parent↔child cycle never
// gets collected. Go's garbage collector traces reachability rather
// than counting references, so a strong cycle is not a leak here — but
// losing the ability to resolve ".." when a weakly-held ancestor gets
// collected mid-walk would be a correctness bug, not a leak. This
// implementation therefore keeps the parent link strong (an Entry held
// alive — by a task's cwd, a mount pin, or the namespace root — keeps its
// whole ancestor chain alive and ".."-resolvable) and the forward
// (children) links weak, so subtrees nothing is pinning are still free
// to be collected: a bounded, self-pruning cache without the
// reference-cycle hazard.
type Entry struct {
	mu       syncutil.Mutex
	name     string
	parent   *Entry // strong; nil only for a namespace root
	node     *Node  // strong; authoritative identity lives here
	children map[string]weak.Pointer[Entry]

	// mount is non-nil when this entry is a mount point: path-walk
	// descending through it continues at mount.fs.Root() instead of at
	// node.
	mount *Mount
}

// newRootEntry returns a fresh, parentless entry wrapping node, used as a
// namespace root.
func newRootEntry(node *Node) *Entry {
	return &Entry{node: node}
}

// IsRoot reports whether e has no parent, which holds only for a
// namespace root: a mount point is an ordinary entry with a parent.
func (e *Entry) IsRoot() bool {
	return e.parent == nil
}

// Node returns e's current node, following a mount override if e is a
// mount point.
func (e *Entry) Node() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mount != nil {
		return e.mount.fs.Root()
	}
	return e.node
}

// Name returns the entry's component name ("" for a namespace root).
func (e *Entry) Name() string { return e.name }

// Parent returns e's parent entry, or e itself at a namespace root (".."
// at root is a no-op).
func (e *Entry) Parent() *Entry {
	if e.parent == nil {
		return e
	}
	return e.parent
}

// getChild returns the cached child entry for name, if the cache entry is
// still live. A cleared weak pointer is pruned from the map so repeated
// misses don't accumulate dead entries.
func (e *Entry) getChild(name string) (*Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wp, ok := e.children[name]
	if !ok {
		return nil, false
	}
	child := wp.Value()
	if child == nil {
		delete(e.children, name)
		return nil, false
	}
	return child, true
}

// spliceChild installs a freshly resolved child entry in the cache and
// returns it. If another goroutine won the race and already cached a
// live entry for name, that entry is returned instead so node identity
// stays stable across concurrent walkers.
func (e *Entry) spliceChild(name string, node *Node) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if wp, ok := e.children[name]; ok {
		if existing := wp.Value(); existing != nil {
			return existing
		}
	}
	child := &Entry{name: name, parent: e, node: node}
	if e.children == nil {
		e.children = make(map[string]weak.Pointer[Entry])
	}
	e.children[name] = weak.Make(child)
	return child
}

// invalidateChild drops any cached entry for name, forcing the next walk
// through it to re-resolve via Lookup.
func (e *Entry) invalidateChild(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.children, name)
}

// attachMount marks e as covering a mount, so walks descending through it
// continue into fs's root instead of e's own node.
func (e *Entry) attachMount(m *Mount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mount = m
}

// detachMount clears e's mount-point status.
func (e *Entry) detachMount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mount = nil
}

// mountPoint returns e's mount, if e is one.
func (e *Entry) mountPoint() (*Mount, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mount, e.mount != nil
}

// path reconstructs e's absolute path by walking parents. Used only for
// diagnostics and Busy-error reporting; never for correctness-critical
// resolution.
func (e *Entry) path() string {
	if e.IsRoot() {
		return "/"
	}
	var parts []string
	for cur := e; !cur.IsRoot(); cur = cur.parent {
		parts = append(parts, cur.name)
	}
	out := ""
	for i := len(parts) - 1; i >= 0; i-- {
		out += "/" + parts[i]
	}
	return out
}
