package vfs

import (
	"sync/atomic"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
)

// MountFlags carries the per-mount modifiers a Mount call accepts.
type MountFlags struct {
	ReadOnly bool
	Remount  bool
}

// Mount is a mount-tree node: the path it's mounted at,
// the backing filesystem instance, its flags, and the covered directory
// entry it replaces during path-walk.
type Mount struct {
	path    string
	fs      FileSystemOperations
	flags   MountFlags
	covered *Entry // the entry this mount shadows; nil only for the namespace root's own mount

	// refs counts open files currently resolved through this mount's
	// subtree. Unmount without force fails with kernerr.Busy while
	// refs > 0.
	refs atomic.Int64
}

// Path returns the absolute path this mount is attached at.
func (m *Mount) Path() string { return m.path }

// FS returns the mount's backing filesystem instance.
func (m *Mount) FS() FileSystemOperations { return m.fs }

func (m *Mount) acquire() { m.refs.Add(1) }
func (m *Mount) release() { m.refs.Add(-1) }

// Namespace is a VFS namespace: a per-task, shareable container of
// mounts over a filesystem instance tree. Namespace-wide mount-tree
// mutation (Mount/Unmount/BindMount/OverlayMount) takes the write lock;
// path-walks take the read lock.
type Namespace struct {
	mu        syncutil.RWMutex
	root      *Entry
	rootMount *Mount
	mounts    map[string]*Mount // keyed by absolute mount path
}

// NewNamespace returns a namespace whose root filesystem is rootFS.
func NewNamespace(rootFS FileSystemOperations) *Namespace {
	root := newRootEntry(rootFS.Root())
	rm := &Mount{path: "/", fs: rootFS, covered: root}
	root.mount = rm
	return &Namespace{
		root:      root,
		rootMount: rm,
		mounts:    map[string]*Mount{"/": rm},
	}
}

// Root returns the namespace's root entry.
func (ns *Namespace) Root() *Entry { return ns.root }

// owningMount returns the nearest mount covering e, walking up the parent
// chain. It always finds one: at worst, the namespace root's own mount.
func (ns *Namespace) owningMount(e *Entry) *Mount {
	for cur := e; ; cur = cur.parent {
		if m, ok := cur.mountPoint(); ok {
			return m
		}
		if cur.IsRoot() {
			return ns.rootMount
		}
	}
}

// Mount establishes a new mount at path: path must
// resolve to an existing directory that is not already a mount point,
// unless flags.Remount is set, in which case it must be one.
func (ns *Namespace) Mount(path string, fs FileSystemOperations, flags MountFlags) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	entry, err := ns.walkLocked(ns.root, path)
	if err != nil {
		return err
	}
	meta, err := entry.node.FS.Metadata(entry.node)
	if err != nil {
		return err
	}
	if meta.Kind != Directory {
		return kernerr.NotDirectory
	}
	// The namespace root always starts out covered by its own implicit
	// mount (see NewNamespace), so mounting something new at "/" is
	// always a remount regardless of flags — there is no "bare,
	// unmounted root" state to require first.
	isRoot := entry == ns.root
	_, alreadyMounted := entry.mountPoint()
	if !isRoot {
		if flags.Remount && !alreadyMounted {
			return kernerr.NotFound
		}
		if !flags.Remount && alreadyMounted {
			return kernerr.AlreadyExists
		}
	}

	m := &Mount{path: path, fs: fs, flags: flags, covered: entry}
	entry.attachMount(m)
	ns.mounts[path] = m
	if isRoot {
		ns.rootMount = m
	}
	return nil
}

// Unmount removes the mount at path. It fails with kernerr.Busy if any
// open file is currently resolved through the mount's subtree, unless
// force is set. It fails with kernerr.NotFound if path is not a mount
// point.
func (ns *Namespace) Unmount(path string, force bool) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	m, ok := ns.mounts[path]
	if !ok {
		return kernerr.NotFound
	}
	if m == ns.rootMount {
		return kernerr.PermissionDenied
	}
	if !force && m.refs.Load() > 0 {
		return kernerr.Busy
	}
	m.covered.detachMount()
	delete(ns.mounts, path)
	return nil
}

// BindMount resolves srcPath within srcNS (which may be ns itself, or a
// different namespace, since cross-namespace binds are permitted) to a
// directory node, and mounts a thin view at destPath in ns that
// delegates every operation to that node. The source node is
// strong-referenced for the bind mount's lifetime.
func (ns *Namespace) BindMount(srcNS *Namespace, srcPath, destPath string, flags MountFlags) error {
	srcEntry, err := srcNS.Walk(srcPath)
	if err != nil {
		return err
	}
	srcNode := srcEntry.Node()
	meta, err := srcNode.FS.Metadata(srcNode)
	if err != nil {
		return err
	}
	if meta.Kind != Directory {
		return kernerr.NotDirectory
	}
	bind := &bindFS{root: srcNode, underlying: srcNode.FS, readOnly: flags.ReadOnly}
	return ns.Mount(destPath, bind, flags)
}

// OverlayMount mounts a composed filesystem at destPath: lookups check
// upper first, then each of layersLowestFirst's reverse (i.e. highest
// priority lower first), falling through to lower layers; writes go to
// upper, with copy-up on first modification.
func (ns *Namespace) OverlayMount(destPath string, layersLowestFirst []FileSystemOperations, upper FileSystemOperations, flags MountFlags) error {
	lowers := make([]FileSystemOperations, len(layersLowestFirst))
	for i, l := range layersLowestFirst {
		lowers[len(layersLowestFirst)-1-i] = l // highest-priority lower first
	}
	ov := newOverlayFS(upper, lowers)
	return ns.Mount(destPath, ov, flags)
}

// bindFS is the thin view a bind mount presents: it owns no storage of
// its own and forwards every operation to the pinned source node's own
// filesystem instance.
type bindFS struct {
	root       *Node
	underlying FileSystemOperations
	readOnly   bool
}

func (b *bindFS) Root() *Node { return b.root }

func (b *bindFS) Lookup(dir *Node, name string) (*Node, error) {
	return b.underlying.Lookup(dir, name)
}

func (b *bindFS) Readdir(dir *Node) ([]DirEntry, error) {
	return b.underlying.Readdir(dir)
}

func (b *bindFS) Create(dir *Node, name string, kind Kind, perm Permissions) (*Node, error) {
	if b.readOnly {
		return nil, kernerr.ReadOnly
	}
	return b.underlying.Create(dir, name, kind, perm)
}

func (b *bindFS) Remove(dir *Node, name string) error {
	if b.readOnly {
		return kernerr.ReadOnly
	}
	return b.underlying.Remove(dir, name)
}

func (b *bindFS) Rename(oldDir *Node, oldName string, newDir *Node, newName string) error {
	if b.readOnly {
		return kernerr.ReadOnly
	}
	return b.underlying.Rename(oldDir, oldName, newDir, newName)
}

func (b *bindFS) Open(n *Node, flags OpenFlags) (FileImpl, error) {
	if b.readOnly && flags.Mode.writable() {
		return nil, kernerr.ReadOnly
	}
	return b.underlying.Open(n, flags)
}

func (b *bindFS) Metadata(n *Node) (Metadata, error) { return b.underlying.Metadata(n) }

func (b *bindFS) IsReadOnly() bool { return b.readOnly || b.underlying.IsReadOnly() }
