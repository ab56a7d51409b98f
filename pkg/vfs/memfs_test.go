package vfs

import (
	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
)

// memFS is a minimal in-memory FileSystemOperations used only by this
// package's own tests, exercising path-walk, mount, bind, overlay and
// pipe mechanics without depending on scarlet/pkg/fsimpl (which imports
// this package, and so cannot be imported back by an internal test file
// without an import cycle). The real tmpfs/cpiofs/devfs drivers under
// pkg/fsimpl are tested in their own packages.
type memFS struct {
	readOnly bool
	root     *memInode
	nodes    map[*memInode]*Node
}

type memInode struct {
	kind     Kind
	perm     Permissions
	content  []byte
	target   string // symlink target
	children map[string]*memInode
}

func newMemFS(readOnly bool) *memFS {
	return &memFS{readOnly: readOnly, root: &memInode{kind: Directory, children: map[string]*memInode{}}, nodes: map[*memInode]*Node{}}
}

// wrap returns the one Node for n, so repeated lookups hand back the same
// node identity, as FileSystemOperations requires.
func wrap(n *memInode, fs *memFS) *Node {
	if node, ok := fs.nodes[n]; ok {
		return node
	}
	node := &Node{FS: fs, Data: n}
	fs.nodes[n] = node
	return node
}

func (fs *memFS) Root() *Node { return wrap(fs.root, fs) }

func (fs *memFS) Lookup(dir *Node, name string) (*Node, error) {
	d := dir.Data.(*memInode)
	child, ok := d.children[name]
	if !ok {
		return nil, kernerr.NotFound
	}
	return wrap(child, fs), nil
}

func (fs *memFS) Readdir(dir *Node) ([]DirEntry, error) {
	d := dir.Data.(*memInode)
	out := make([]DirEntry, 0, len(d.children))
	for name, c := range d.children {
		out = append(out, DirEntry{Name: name, Kind: c.kind})
	}
	return out, nil
}

func (fs *memFS) Create(dir *Node, name string, kind Kind, perm Permissions) (*Node, error) {
	if fs.readOnly {
		return nil, kernerr.ReadOnly
	}
	d := dir.Data.(*memInode)
	if _, ok := d.children[name]; ok {
		return nil, kernerr.AlreadyExists
	}
	n := &memInode{kind: kind, perm: perm}
	if kind == Directory {
		n.children = map[string]*memInode{}
	}
	d.children[name] = n
	return wrap(n, fs), nil
}

func (fs *memFS) Remove(dir *Node, name string) error {
	if fs.readOnly {
		return kernerr.ReadOnly
	}
	d := dir.Data.(*memInode)
	if _, ok := d.children[name]; !ok {
		return kernerr.NotFound
	}
	delete(d.children, name)
	return nil
}

func (fs *memFS) Rename(oldDir *Node, oldName string, newDir *Node, newName string) error {
	if fs.readOnly {
		return kernerr.ReadOnly
	}
	od := oldDir.Data.(*memInode)
	nd := newDir.Data.(*memInode)
	n, ok := od.children[oldName]
	if !ok {
		return kernerr.NotFound
	}
	delete(od.children, oldName)
	nd.children[newName] = n
	return nil
}

func (fs *memFS) Open(n *Node, flags OpenFlags) (FileImpl, error) {
	if fs.readOnly && flags.Mode.writable() {
		return nil, kernerr.ReadOnly
	}
	inode := n.Data.(*memInode)
	if flags.Truncate {
		inode.content = nil
	}
	return &memFile{inode: inode, appendMode: flags.Append}, nil
}

func (fs *memFS) Metadata(n *Node) (Metadata, error) {
	inode := n.Data.(*memInode)
	return Metadata{Kind: inode.kind, Size: int64(len(inode.content)), Perm: inode.perm}, nil
}

func (fs *memFS) IsReadOnly() bool { return fs.readOnly }

func (fs *memFS) Readlink(n *Node) (string, error) {
	inode := n.Data.(*memInode)
	if inode.kind != Symlink {
		return "", kernerr.InvalidArgument
	}
	return inode.target, nil
}

func (fs *memFS) CreateSymlink(dir *Node, name string, target string) (*Node, error) {
	d := dir.Data.(*memInode)
	n := &memInode{kind: Symlink, target: target}
	d.children[name] = n
	return wrap(n, fs), nil
}

// mkdir/mkfile/symlink are test-only convenience constructors that bypass
// path-walk for fixture setup.
func (fs *memFS) mkdir(parent *memInode, name string) *memInode {
	n := &memInode{kind: Directory, children: map[string]*memInode{}}
	parent.children[name] = n
	return n
}

func (fs *memFS) mkfile(parent *memInode, name string, content string) *memInode {
	n := &memInode{kind: Regular, content: []byte(content), perm: PermRead | PermWrite}
	parent.children[name] = n
	return n
}

func (fs *memFS) symlink(parent *memInode, name, target string) *memInode {
	n := &memInode{kind: Symlink, target: target}
	parent.children[name] = n
	return n
}

type memFile struct {
	inode      *memInode
	pos        int64
	appendMode bool
}

func (f *memFile) Read(ctx context.Context, buf []byte) (int, error) {
	if f.pos >= int64(len(f.inode.content)) {
		return 0, nil
	}
	n := copy(buf, f.inode.content[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(ctx context.Context, buf []byte) (int, error) {
	if f.appendMode {
		f.pos = int64(len(f.inode.content))
	}
	end := f.pos + int64(len(buf))
	if end > int64(len(f.inode.content)) {
		grown := make([]byte, end)
		copy(grown, f.inode.content)
		f.inode.content = grown
	}
	n := copy(f.inode.content[f.pos:end], buf)
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Seek(whence Whence, offset int64) (int64, error) {
	var base int64
	switch whence {
	case SeekStart:
		base = 0
	case SeekCurrent:
		base = f.pos
	case SeekEnd:
		base = int64(len(f.inode.content))
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kernerr.InvalidArgument
	}
	f.pos = newPos
	return newPos, nil
}

func (f *memFile) Close() error { return nil }
