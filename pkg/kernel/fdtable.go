package kernel

import (
	"sync/atomic"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
	"scarlet/pkg/vfs"
)

// FDFlags are the per-descriptor modifiers attached to open-file syscalls,
// distinct from the vfs.OpenFlags the handle itself was opened with.
type FDFlags struct {
	CloseOnExec bool
}

// openFile wraps a vfs.File with a reference count so the open-file object
// can be shared across dup and fork — vfs.File itself has
// no refcount of its own (its Close is merely idempotent), so dup and
// fork share one openFile across however many descriptor-table slots
// point at it, and only the last Close actually tears down the vfs.File.
type openFile struct {
	file *vfs.File
	refs atomic.Int64
}

func newOpenFile(f *vfs.File) *openFile {
	of := &openFile{file: f}
	of.refs.Store(1)
	return of
}

func (of *openFile) incRef() { of.refs.Add(1) }

// decRef releases one reference, closing the underlying vfs.File once the
// last reference is gone.
func (of *openFile) decRef() error {
	if of.refs.Add(-1) == 0 {
		return of.file.Close()
	}
	return nil
}

type fdEntry struct {
	of    *openFile
	flags FDFlags
}

// FDTable is a task's open-file-descriptor table: a map from small
// integers to descriptors, each descriptor an (object, flags) pair, with
// fork duplicating the map and incrementing every entry's reference
// rather than reopening anything.
type FDTable struct {
	mu    syncutil.Mutex
	files map[int]*fdEntry
	next  int
}

// NewFDTable returns an empty descriptor table.
func NewFDTable() *FDTable {
	return &FDTable{files: make(map[int]*fdEntry)}
}

// Install adds f as a brand-new open file and returns the lowest unused
// descriptor number bound to it.
func (t *FDTable) Install(f *vfs.File, flags FDFlags) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.lowestFreeLocked()
	t.files[fd] = &fdEntry{of: newOpenFile(f), flags: flags}
	return fd
}

// DupTo binds newfd to the same open-file object as oldfd, closing out
// whatever previously occupied newfd — the primitive behind dup2, used
// to place a pipe end at a specific descriptor number (fd 1) in a child
// before exec.
func (t *FDTable) DupTo(oldfd, newfd int) error {
	if newfd < 0 {
		return kernerr.InvalidArgument
	}
	t.mu.Lock()
	e, ok := t.files[oldfd]
	if !ok {
		t.mu.Unlock()
		return kernerr.NotFound
	}
	if oldfd == newfd {
		t.mu.Unlock()
		return nil
	}
	e.of.incRef()
	old, hadOld := t.files[newfd]
	t.files[newfd] = &fdEntry{of: e.of, flags: FDFlags{}}
	t.mu.Unlock()
	if hadOld {
		return old.of.decRef()
	}
	return nil
}

func (t *FDTable) lowestFreeLocked() int {
	for fd := 0; ; fd++ {
		if _, ok := t.files[fd]; !ok {
			return fd
		}
	}
}

// Get returns the vfs.File bound to fd, or kernerr.NotFound.
func (t *FDTable) Get(fd int) (*vfs.File, FDFlags, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.files[fd]
	if !ok {
		return nil, FDFlags{}, kernerr.NotFound
	}
	return e.of.file, e.flags, nil
}

// Dup binds a new descriptor to the same open-file object as fd, sharing
// its position and reference count, and returns the new descriptor
// number.
func (t *FDTable) Dup(fd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.files[fd]
	if !ok {
		return 0, kernerr.NotFound
	}
	e.of.incRef()
	newFD := t.lowestFreeLocked()
	t.files[newFD] = &fdEntry{of: e.of, flags: FDFlags{}}
	return newFD, nil
}

// Close releases fd, closing the underlying vfs.File if no other
// descriptor (in this table or a forked sibling) still references it.
func (t *FDTable) Close(fd int) error {
	t.mu.Lock()
	e, ok := t.files[fd]
	if !ok {
		t.mu.Unlock()
		return kernerr.NotFound
	}
	delete(t.files, fd)
	t.mu.Unlock()
	return e.of.decRef()
}

// Fork returns a new table sharing every open-file object with t, one
// reference heavier each fork's "(b) open-file table by
// incrementing each open-file's reference count".
func (t *FDTable) Fork() *FDTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &FDTable{files: make(map[int]*fdEntry, len(t.files)), next: t.next}
	for fd, e := range t.files {
		e.of.incRef()
		out.files[fd] = &fdEntry{of: e.of, flags: e.flags}
	}
	return out
}

// CloseOnExec drops every descriptor flagged CloseOnExec, per exec's
// "preserves the open-file table modulo close-on-exec flags".
func (t *FDTable) CloseOnExec() error {
	t.mu.Lock()
	var toClose []*openFile
	for fd, e := range t.files {
		if e.flags.CloseOnExec {
			toClose = append(toClose, e.of)
			delete(t.files, fd)
		}
	}
	t.mu.Unlock()
	var firstErr error
	for _, of := range toClose {
		if err := of.decRef(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseAll releases every descriptor, the open-file-table half of task
// teardown's "walks all owned resources and releases each".
func (t *FDTable) CloseAll() error {
	t.mu.Lock()
	entries := make([]*openFile, 0, len(t.files))
	for fd, e := range t.files {
		entries = append(entries, e.of)
		delete(t.files, fd)
	}
	t.mu.Unlock()
	var firstErr error
	for _, of := range entries {
		if err := of.decRef(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
