// Package vfs implements the VFS v2 core: a path-resolving layer built
// from decoupled name-cache entries and file-content nodes, with per-task
// mount namespaces, bind and overlay mounts, and path-walk.
//
// The driver contract (FileSystemOperations) is deliberately small; actual
// filesystems (tmpfs, cpiofs, devfs) live under scarlet/pkg/fsimpl and
// import this package, never the reverse. The bind and overlay views are
// implemented in this package (mount.go, overlay.go).
package vfs

// Kind identifies the type of a VfsNode.
type Kind int

const (
	Regular Kind = iota
	Directory
	Symlink
	CharDevice
	BlockDevice
	Fifo
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case CharDevice:
		return "char-device"
	case BlockDevice:
		return "block-device"
	case Fifo:
		return "fifo"
	default:
		return "unknown"
	}
}

// Permissions is a minimal rwx permission set; the kernel does not model
// users or groups, only a single owner-class triple.
type Permissions uint8

const (
	PermRead Permissions = 1 << iota
	PermWrite
	PermExecute
)

// AccessMode is the read/write/append intent an Open call is made with.
type AccessMode uint8

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

func (m AccessMode) readable() bool { return m == ReadOnly || m == ReadWrite }
func (m AccessMode) writable() bool { return m == WriteOnly || m == ReadWrite }

// OpenFlags carries an AccessMode plus the creation/positioning
// modifiers an open(2)-style syscall accepts.
type OpenFlags struct {
	Mode      AccessMode
	Create    bool
	Exclusive bool
	Truncate  bool
	Append    bool
	CloseOnExec bool
}

// Metadata is the result of a Metadata() driver call: kind, size, perms,
// and device info where applicable.
type Metadata struct {
	Kind       Kind
	Size       int64
	Perm       Permissions
	DeviceName string // set only when Kind is CharDevice or BlockDevice
}

// DirEntry is one entry returned by Readdir: a name plus a kind hint, so
// callers can distinguish directories from files without a further
// lookup.
type DirEntry struct {
	Name string
	Kind Kind
}

// Whence selects the origin for Seek, mirroring io.Seeker's constants so
// stream implementations can delegate directly where convenient.
type Whence int

const (
	SeekStart   Whence = 0
	SeekCurrent Whence = 1
	SeekEnd     Whence = 2
)
