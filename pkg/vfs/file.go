package vfs

import (
	"strings"

	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
)

// File is an open-file handle: a strong
// reference to a node, an access mode, and a stream vtable. Operations on
// the same handle are totally ordered by its own lock; a
// second handle on the same node is serialized by the owning FS driver.
type File struct {
	mu     syncutil.Mutex
	node   *Node
	impl   FileImpl
	flags  OpenFlags
	mount  *Mount
	closed bool
}

// NewPipeFile wraps impl — one of the two FileImpl values vfs.NewPipe
// returns — in an open File that has no backing Node or Mount, the
// representation gives a Pipe ("has no node or filesystem"):
// pipe() is a kernel-level syscall, not a path-walk, so there is no
// Namespace.Open call to produce the handle through the usual path.
func NewPipeFile(impl FileImpl, mode AccessMode) *File {
	return &File{impl: impl, flags: OpenFlags{Mode: mode}}
}

// Open resolves path (starting at start for a relative path, or the
// namespace root for an absolute one), honoring flags.Create/Exclusive,
// and returns an open handle.
func (ns *Namespace) Open(start *Entry, path string, flags OpenFlags, perm Permissions) (*File, error) {
	entry, err := ns.WalkFrom(start, path)
	if err == nil {
		if flags.Create && flags.Exclusive {
			return nil, kernerr.AlreadyExists
		}
		return ns.openEntry(entry, flags)
	}
	if !kernerr.Is(err, kernerr.KindNotFound) || !flags.Create {
		return nil, err
	}

	dirPath, name, ok := splitParent(path)
	if !ok {
		return nil, err
	}
	dirEntry, derr := ns.WalkFrom(start, dirPath)
	if derr != nil {
		return nil, derr
	}
	dirNode := dirEntry.Node()
	childNode, cerr := dirNode.FS.Create(dirNode, name, Regular, perm)
	if cerr != nil {
		return nil, cerr
	}
	entry = dirEntry.spliceChild(name, childNode)
	return ns.openEntry(entry, flags)
}

func (ns *Namespace) openEntry(entry *Entry, flags OpenFlags) (*File, error) {
	node := entry.Node()
	meta, err := node.FS.Metadata(node)
	if err != nil {
		return nil, err
	}
	if meta.Kind == Directory && flags.Mode.writable() {
		return nil, kernerr.IsDirectory
	}
	impl, err := node.FS.Open(node, flags)
	if err != nil {
		return nil, err
	}
	m := ns.owningMount(entry)
	m.acquire()
	return &File{node: node, impl: impl, flags: flags, mount: m}, nil
}

// splitParent splits path into its containing directory and final
// component, for Create's "resolve the parent, then create the leaf"
// path.
func splitParent(path string) (dir, base string, ok bool) {
	absolute, comps, _ := splitPath(path)
	if len(comps) == 0 {
		return "", "", false
	}
	base = comps[len(comps)-1]
	if base == ".." {
		return "", "", false
	}
	sep := ""
	if absolute {
		sep = "/"
	}
	dir = sep + strings.Join(comps[:len(comps)-1], "/")
	if dir == "" {
		dir = "."
	}
	return dir, base, true
}

// Node returns the file's underlying node.
func (f *File) Node() *Node { return f.node }

// Read reads into buf, failing with kernerr.PermissionDenied if the
// handle was not opened for reading.
func (f *File) Read(ctx context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, kernerr.InvalidArgument
	}
	if !f.flags.Mode.readable() {
		return 0, kernerr.PermissionDenied
	}
	return f.impl.Read(ctx, buf)
}

// Write writes buf, failing with kernerr.PermissionDenied if the handle
// was not opened for writing.
func (f *File) Write(ctx context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, kernerr.InvalidArgument
	}
	if !f.flags.Mode.writable() {
		return 0, kernerr.PermissionDenied
	}
	return f.impl.Write(ctx, buf)
}

// Seek repositions the handle. Non-seekable streams (pipes, char devices)
// fail with kernerr.NotSupported.
func (f *File) Seek(whence Whence, offset int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, kernerr.InvalidArgument
	}
	return f.impl.Seek(whence, offset)
}

// Metadata returns the underlying node's current metadata. A pipe handle
// (no backing node) fails with kernerr.NotSupported.
func (f *File) Metadata() (Metadata, error) {
	if f.node == nil {
		return Metadata{}, kernerr.NotSupported
	}
	return f.node.FS.Metadata(f.node)
}

// Close releases the handle. Idempotent: closing an already-closed
// handle is a no-op.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.mount != nil {
		f.mount.release()
	}
	return f.impl.Close()
}
