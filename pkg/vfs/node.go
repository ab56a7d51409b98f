package vfs

import "scarlet/pkg/context"

// Node is a VfsNode: the ground-truth file object describes.
// Its identity (pointer identity of the *Node value a driver hands back)
// is stable for the node's lifetime within its owning filesystem instance,
// independent of any path that happens to name it. The VFS layer never
// synthesizes a Node on its own; every Node in the system was returned by
// some FileSystemOperations call.
type Node struct {
	// FS is the filesystem instance this node belongs to; operations on
	// the node are always dispatched back through it.
	FS FileSystemOperations

	// Data is driver-private node representation. Drivers define their
	// own concrete type (e.g. *tmpfs.inode) and store a pointer to it
	// here; the VFS layer never inspects it.
	Data any
}

// FileSystemOperations is the driver contract of A
// filesystem instance is any value implementing it; drivers MUST return
// stable node identity across repeated lookups and MAY be read-only (in
// which case mutating operations fail with kernerr.ReadOnly) and MAY block
// on underlying storage.
type FileSystemOperations interface {
	// Root returns the filesystem's root node.
	Root() *Node

	// Lookup resolves one path component under dir, returning
	// kernerr.NotFound if name does not exist in dir.
	Lookup(dir *Node, name string) (*Node, error)

	// Readdir lists dir's entries. dir must be a directory node.
	Readdir(dir *Node) ([]DirEntry, error)

	// Create makes a new child of the given kind under dir and returns
	// its node. Fails with kernerr.AlreadyExists if name is taken, or
	// kernerr.ReadOnly on a read-only filesystem.
	Create(dir *Node, name string, kind Kind, perm Permissions) (*Node, error)

	// Remove unlinks name from dir.
	Remove(dir *Node, name string) error

	// Rename moves oldName under oldDir to newName under newDir,
	// replacing any existing entry at the destination.
	Rename(oldDir *Node, oldName string, newDir *Node, newName string) error

	// Open returns a stream implementation bound to n, honoring flags.
	Open(n *Node, flags OpenFlags) (FileImpl, error)

	// Metadata returns n's current {kind, size, perms, device name}.
	Metadata(n *Node) (Metadata, error)

	// IsReadOnly reports whether mutating operations on this filesystem
	// instance always fail with kernerr.ReadOnly.
	IsReadOnly() bool
}

// FileImpl is the stream vtable an Open call returns: the object behind an
// open file's read/write/seek/close operations. Non-seekable streams
// (pipes, char devices) return kernerr.NotSupported from Seek.
type FileImpl interface {
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, buf []byte) (int, error)
	Seek(whence Whence, offset int64) (int64, error)
	Close() error
}

// ReadlinkOperations is implemented by filesystem instances that support
// symlinks; drivers without symlinks (devfs) simply don't implement it,
// and path-walk treats any Symlink-kind node on such a driver as an
// internal inconsistency.
type ReadlinkOperations interface {
	Readlink(n *Node) (string, error)
}

// SymlinkOperations is implemented by filesystem instances that can
// create symlinks.
type SymlinkOperations interface {
	CreateSymlink(dir *Node, name string, target string) (*Node, error)
}
