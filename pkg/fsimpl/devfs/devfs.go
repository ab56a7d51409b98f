// Package devfs implements a synthesized, read-only-directory-structure
// FileSystemOperations driver that mirrors scarlet/pkg/device's
// registry: each registered device appears as a file of kind
// CharDevice or BlockDevice, and opening it wires read/write straight to
// the device's own byte interface, in place of a real major/minor
// device-node model.
package devfs

import (
	"strings"

	kctx "scarlet/pkg/context"
	"scarlet/pkg/device"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/vfs"
)

type inode struct {
	name     string
	kind     vfs.Kind
	dev      *device.Device
	children map[string]*inode
}

// FS is a devfs instance, snapshotting registry at construction time.
// Like the real /dev, its directory shape is fixed once populated;
// device drivers that register after the snapshot do not appear until
// Refresh is called.
type FS struct {
	registry *device.Registry
	root     *inode
}

// New builds a devfs instance mirroring every device currently in reg.
func New(reg *device.Registry) *FS {
	fs := &FS{registry: reg, root: &inode{kind: vfs.Directory, children: map[string]*inode{}}}
	fs.Refresh()
	return fs
}

// Refresh rebuilds the directory tree from the registry's current
// contents. Device names containing "/" (e.g. "pts/0") synthesize
// intermediate directories, matching devtmpfs's own MkdirAllAt-before-
// MknodAt convention.
func (fs *FS) Refresh() {
	root := &inode{kind: vfs.Directory, children: map[string]*inode{}}
	for _, d := range fs.registry.List() {
		parts := strings.Split(d.Name, "/")
		dir := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := dir.children[p]
			if !ok {
				child = &inode{name: p, kind: vfs.Directory, children: map[string]*inode{}}
				dir.children[p] = child
			}
			dir = child
		}
		leaf := parts[len(parts)-1]
		kind := vfs.CharDevice
		if d.Kind == device.BlockDevice {
			kind = vfs.BlockDevice
		}
		dir.children[leaf] = &inode{name: leaf, kind: kind, dev: d}
	}
	fs.root = root
}

func wrap(n *inode, fs *FS) *vfs.Node { return &vfs.Node{FS: fs, Data: n} }

func asInode(n *vfs.Node) (*inode, error) {
	in, ok := n.Data.(*inode)
	if !ok {
		return nil, kernerr.New(kernerr.KindNotSupported, "node not owned by devfs")
	}
	return in, nil
}

func (fs *FS) Root() *vfs.Node { return wrap(fs.root, fs) }

func (fs *FS) Lookup(dir *vfs.Node, name string) (*vfs.Node, error) {
	d, err := asInode(dir)
	if err != nil {
		return nil, err
	}
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
	return nil, kernerr.ReadOnly
}

func (fs *FS) Remove(dir *vfs.Node, name string) error { return kernerr.ReadOnly }

func (fs *FS) Rename(oldDir *vfs.Node, oldName string, newDir *vfs.Node, newName string) error {
	return kernerr.ReadOnly
}

func (fs *FS) Open(n *vfs.Node, flags vfs.OpenFlags) (vfs.FileImpl, error) {
	in, err := asInode(n)
	if err != nil {
		return nil, err
	}
	switch in.kind {
	case vfs.Directory:
		return nil, kernerr.IsDirectory
	case vfs.CharDevice:
		return &charFile{dev: in.dev.Char}, nil
	case vfs.BlockDevice:
		return &blockFile{dev: in.dev.Block}, nil
	default:
		return nil, kernerr.NotSupported
	}
}

func (fs *FS) Metadata(n *vfs.Node) (vfs.Metadata, error) {
	in, err := asInode(n)
	if err != nil {
		return vfs.Metadata{}, err
	}
	m := vfs.Metadata{Kind: in.kind, Perm: vfs.PermRead | vfs.PermWrite}
	if in.dev != nil {
		m.DeviceName = in.dev.Name
		if in.kind == vfs.BlockDevice {
			m.Size = in.dev.Block.NumSectors() * int64(in.dev.Block.SectorSize())
		}
	}
	return m, nil
}

func (fs *FS) IsReadOnly() bool { return false }

// charFile wires a FileImpl directly onto a device.CharOps, the "opening
// the file yields an open-file whose read/write are wired to the device
// driver's byte interface" behavior names.
type charFile struct {
	dev device.CharOps
}

func (f *charFile) Read(ctx kctx.Context, buf []byte) (int, error)  { return f.dev.Read(buf) }
func (f *charFile) Write(ctx kctx.Context, buf []byte) (int, error) { return f.dev.Write(buf) }
func (f *charFile) Seek(whence vfs.Whence, offset int64) (int64, error) {
	return 0, kernerr.NotSupported
}
func (f *charFile) Close() error { return nil }

// blockFile exposes sector-addressed I/O through the byte-stream FileImpl
// contract: Read/Write operate at a byte position but round down to whole
// sectors, matching device.BlockOps' sector-granular contract.
type blockFile struct {
	dev device.BlockOps
	pos int64
}

func (f *blockFile) Read(ctx kctx.Context, buf []byte) (int, error) {
	sectorSize := f.dev.SectorSize()
	n := (len(buf) / sectorSize) * sectorSize
	if n == 0 {
		return 0, nil
	}
	lba := f.pos / int64(sectorSize)
	if err := f.dev.ReadSectors(lba, buf[:n]); err != nil {
		return 0, err
	}
	f.pos += int64(n)
	return n, nil
}

func (f *blockFile) Write(ctx kctx.Context, buf []byte) (int, error) {
	sectorSize := f.dev.SectorSize()
	n := (len(buf) / sectorSize) * sectorSize
	if n == 0 {
		return 0, kernerr.InvalidArgument
	}
	lba := f.pos / int64(sectorSize)
	if err := f.dev.WriteSectors(lba, buf[:n]); err != nil {
		return 0, err
	}
	f.pos += int64(n)
	return n, nil
}

func (f *blockFile) Seek(whence vfs.Whence, offset int64) (int64, error) {
	var base int64
	switch whence {
	case vfs.SeekStart:
		base = 0
	case vfs.SeekCurrent:
		base = f.pos
	case vfs.SeekEnd:
		base = f.dev.NumSectors() * int64(f.dev.SectorSize())
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kernerr.InvalidArgument
	}
	f.pos = newPos
	return newPos, nil
}

func (f *blockFile) Close() error { return nil }
