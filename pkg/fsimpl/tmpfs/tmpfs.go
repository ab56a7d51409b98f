// Package tmpfs implements a read-write, memory-backed
// FileSystemOperations driver, suitable for /tmp and for overlay mount
// upper layers.
//
// An FS/inode split carries an optional memory limit with simple
// byte accounting; each file's content and size are guarded together by
// a single dedicated mutex.
package tmpfs

import (
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
	"scarlet/pkg/vfs"
)

// inode is a tmpfs node: a directory's children map, or a regular file's
// content, or a symlink's target, guarded by its own mutex so that sibling
// nodes never contend on a shared filesystem-wide lock for ordinary
// read/write traffic.
type inode struct {
	mu syncutil.Mutex

	kind     vfs.Kind
	perm     vfs.Permissions
	content  []byte
	target   string // valid when kind == Symlink
	children map[string]*inode
}

// FS is a tmpfs instance. memoryLimit, when non-zero, bounds the aggregate
// size of all regular-file content across the instance (the original's
// "memory_limit" field); current is the running total.
type FS struct {
	mu          syncutil.Mutex
	root        *inode
	memoryLimit int64
	current     int64
}

// New returns an empty tmpfs instance. memoryLimit of 0 means unlimited.
func New(memoryLimit int64) *FS {
	return &FS{
		root:        &inode{kind: vfs.Directory, perm: vfs.PermRead | vfs.PermWrite | vfs.PermExecute, children: map[string]*inode{}},
		memoryLimit: memoryLimit,
	}
}

func wrap(n *inode, fs *FS) *vfs.Node { return &vfs.Node{FS: fs, Data: n} }

func asInode(n *vfs.Node) (*inode, error) {
	in, ok := n.Data.(*inode)
	if !ok {
		return nil, kernerr.New(kernerr.KindNotSupported, "node not owned by tmpfs")
	}
	return in, nil
}

func (fs *FS) Root() *vfs.Node { return wrap(fs.root, fs) }

func (fs *FS) Lookup(dir *vfs.Node, name string) (*vfs.Node, error) {
	d, err := asInode(dir)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kind != vfs.Directory {
		return nil, kernerr.NotDirectory
	}
	child, ok := d.children[name]
	if !ok {
		return nil, kernerr.NotFound
	}
	return wrap(child, fs), nil
}

func (fs *FS) Readdir(dir *vfs.Node) ([]vfs.DirEntry, error) {
	d, err := asInode(dir)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kind != vfs.Directory {
		return nil, kernerr.NotDirectory
	}
	out := make([]vfs.DirEntry, 0, len(d.children))
	for name, c := range d.children {
		out = append(out, vfs.DirEntry{Name: name, Kind: c.kind})
	}
	return out, nil
}

func (fs *FS) Create(dir *vfs.Node, name string, kind vfs.Kind, perm vfs.Permissions) (*vfs.Node, error) {
	d, err := asInode(dir)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kind != vfs.Directory {
		return nil, kernerr.NotDirectory
	}
	if _, exists := d.children[name]; exists {
		return nil, kernerr.AlreadyExists
	}
	n := &inode{kind: kind, perm: perm}
	if kind == vfs.Directory {
		n.children = map[string]*inode{}
	}
	d.children[name] = n
	return wrap(n, fs), nil
}

func (fs *FS) Remove(dir *vfs.Node, name string) error {
	d, err := asInode(dir)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kind != vfs.Directory {
		return kernerr.NotDirectory
	}
	victim, ok := d.children[name]
	if !ok {
		return kernerr.NotFound
	}
	if victim.kind == vfs.Directory && len(victim.children) > 0 {
		return kernerr.NotEmpty
	}
	if victim.kind == vfs.Regular {
		fs.releaseMemory(int64(len(victim.content)))
	}
	delete(d.children, name)
	return nil
}

func (fs *FS) Rename(oldDir *vfs.Node, oldName string, newDir *vfs.Node, newName string) error {
	od, err := asInode(oldDir)
	if err != nil {
		return err
	}
	nd, err := asInode(newDir)
	if err != nil {
		return err
	}
	od.mu.Lock()
	if od != nd {
		nd.mu.Lock()
	}
	defer func() {
		if od != nd {
			nd.mu.Unlock()
		}
		od.mu.Unlock()
	}()

	n, ok := od.children[oldName]
	if !ok {
		return kernerr.NotFound
	}
	delete(od.children, oldName)
	nd.children[newName] = n
	return nil
}

func (fs *FS) Open(n *vfs.Node, flags vfs.OpenFlags) (vfs.FileImpl, error) {
	in, err := asInode(n)
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.kind == vfs.Directory {
		return nil, kernerr.IsDirectory
	}
	if flags.Truncate {
		fs.releaseMemory(int64(len(in.content)))
		in.content = nil
	}
	pos := int64(0)
	if flags.Append {
		pos = int64(len(in.content))
	}
	return &file{fs: fs, inode: in, pos: pos}, nil
}

func (fs *FS) Metadata(n *vfs.Node) (vfs.Metadata, error) {
	in, err := asInode(n)
	if err != nil {
		return vfs.Metadata{}, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return vfs.Metadata{Kind: in.kind, Size: int64(len(in.content)), Perm: in.perm}, nil
}

func (fs *FS) IsReadOnly() bool { return false }

func (fs *FS) Readlink(n *vfs.Node) (string, error) {
	in, err := asInode(n)
	if err != nil {
		return "", err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.kind != vfs.Symlink {
		return "", kernerr.InvalidArgument
	}
	return in.target, nil
}

func (fs *FS) CreateSymlink(dir *vfs.Node, name string, target string) (*vfs.Node, error) {
	d, err := asInode(dir)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.children[name]; exists {
		return nil, kernerr.AlreadyExists
	}
	n := &inode{kind: vfs.Symlink, target: target}
	d.children[name] = n
	return wrap(n, fs), nil
}

// reserveMemory charges delta bytes against the instance's memory limit,
// failing with kernerr.NoSpace if it would be exceeded. delta may be
// negative, in which case it never fails.
func (fs *FS) reserveMemory(delta int64) error {
	if fs.memoryLimit == 0 || delta <= 0 {
		fs.mu.Lock()
		fs.current += delta
		fs.mu.Unlock()
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.current+delta > fs.memoryLimit {
		return kernerr.New(kernerr.KindNoSpace, "tmpfs memory limit exceeded")
	}
	fs.current += delta
	return nil
}

func (fs *FS) releaseMemory(n int64) {
	if n == 0 {
		return
	}
	fs.mu.Lock()
	fs.current -= n
	fs.mu.Unlock()
}

// file is the FileImpl a tmpfs Open call returns: a cursor over a
// shared inode's content, a position plus a mutex-guarded byte slice.
type file struct {
	fs    *FS
	inode *inode
	pos   int64
}

func (f *file) Read(ctx kctx.Context, buf []byte) (int, error) {
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()
	if f.pos >= int64(len(f.inode.content)) {
		return 0, nil
	}
	n := copy(buf, f.inode.content[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) Write(ctx kctx.Context, buf []byte) (int, error) {
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()

	end := f.pos + int64(len(buf))
	oldLen := int64(len(f.inode.content))
	if end > oldLen {
		if err := f.fs.reserveMemory(end - oldLen); err != nil {
			return 0, err
		}
		grown := make([]byte, end)
		copy(grown, f.inode.content)
		f.inode.content = grown
	}
	n := copy(f.inode.content[f.pos:end], buf)
	f.pos += int64(n)
	return n, nil
}

func (f *file) Seek(whence vfs.Whence, offset int64) (int64, error) {
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()

	var base int64
	switch whence {
	case vfs.SeekStart:
		base = 0
	case vfs.SeekCurrent:
		base = f.pos
	case vfs.SeekEnd:
		base = int64(len(f.inode.content))
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kernerr.InvalidArgument
	}
	f.pos = newPos
	return newPos, nil
}

func (f *file) Close() error { return nil }
