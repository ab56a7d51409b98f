// Package cpiofs implements a read-only FileSystemOperations driver that
// unpacks a CPIO newc archive (magic "070701") into an in-memory node
// tree at mount time, for use as an initial RAM disk mounted read-only
// as the initial root filesystem.
//
// Same fixed 110-byte newc header layout, the same 4-byte alignment of
// both the file-name and file-data regions, and the same "TRAILER!!!"
// terminator convention.
package cpiofs

import (
	"fmt"
	"strconv"
	"strings"

	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/vfs"
)

// headerSize is the fixed newc header length before the variable-length
// file name.
const headerSize = 110

type inode struct {
	name     string
	kind     vfs.Kind
	content  []byte
	children map[string]*inode
}

// FS is a CpioFS instance: an immutable node tree built once from an
// archive's bytes.
type FS struct {
	root *inode
}

// New parses data as a CPIO newc archive and returns a read-only
// filesystem instance over its contents.
func New(data []byte) (*FS, error) {
	root := &inode{name: "/", kind: vfs.Directory, children: map[string]*inode{}}
	fs := &FS{root: root}
	if err := fs.parse(data); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FS) parse(data []byte) error {
	offset := 0
	for offset+headerSize <= len(data) {
		if string(data[offset:offset+6]) != "070701" {
			break
		}
		mode, err := hexField(data, offset+14, 8)
		if err != nil {
			return err
		}
		nameSize, err := hexFieldInt(data, offset+94, 8)
		if err != nil {
			return err
		}
		fileSize, err := hexFieldInt(data, offset+54, 8)
		if err != nil {
			return err
		}

		nameStart := offset + headerSize
		nameEnd := nameStart + nameSize
		if nameEnd > len(data) || nameEnd == nameStart {
			break
		}
		name := string(data[nameStart : nameEnd-1]) // drop trailing NUL

		fileStart := align4(nameEnd)
		fileEnd := fileStart + fileSize
		if fileEnd > len(data) {
			break
		}
		if name == "TRAILER!!!" {
			break
		}

		kind := kindFromMode(uint32(mode))
		var content []byte
		if kind == vfs.Regular || kind == vfs.Symlink {
			content = append([]byte(nil), data[fileStart:fileEnd]...)
		}

		base := name
		parentPath := ""
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			base = name[idx+1:]
			parentPath = name[:idx]
		}
		if base == "." || base == ".." || base == "" {
			offset = align4(fileEnd)
			continue
		}

		parent := fs.ensureDir(parentPath)
		if existing, ok := parent.children[base]; ok && existing.kind == vfs.Directory && kind == vfs.Directory {
			// Already synthesized by ensureDir for an earlier child; keep
			// it so those children are not lost.
			offset = align4(fileEnd)
			continue
		}
		parent.children[base] = &inode{name: base, kind: kind, content: content, children: childMapIfDir(kind)}

		offset = align4(fileEnd)
	}
	return nil
}

func childMapIfDir(kind vfs.Kind) map[string]*inode {
	if kind == vfs.Directory {
		return map[string]*inode{}
	}
	return nil
}

// ensureDir walks/creates the intermediate directory chain for
// parentPath, so archives whose entries are not emitted in strict
// parent-before-child order still build a correct tree.
func (fs *FS) ensureDir(parentPath string) *inode {
	cur := fs.root
	if parentPath == "" {
		return cur
	}
	for _, part := range strings.Split(parentPath, "/") {
		if part == "" {
			continue
		}
		child, ok := cur.children[part]
		if !ok {
			child = &inode{name: part, kind: vfs.Directory, children: map[string]*inode{}}
			cur.children[part] = child
		}
		cur = child
	}
	return cur
}

func align4(n int) int { return (n + 3) &^ 3 }

func hexField(data []byte, start, length int) (uint64, error) {
	return strconv.ParseUint(string(data[start:start+length]), 16, 32)
}

func hexFieldInt(data []byte, start, length int) (int, error) {
	v, err := hexField(data, start, length)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func kindFromMode(mode uint32) vfs.Kind {
	switch mode & 0o170000 {
	case 0o040000:
		return vfs.Directory
	case 0o120000:
		return vfs.Symlink
	default:
		return vfs.Regular
	}
}

func wrap(n *inode, fs *FS) *vfs.Node { return &vfs.Node{FS: fs, Data: n} }

func asInode(n *vfs.Node) (*inode, error) {
	in, ok := n.Data.(*inode)
	if !ok {
		return nil, kernerr.New(kernerr.KindNotSupported, "node not owned by cpiofs")
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
		return nil, kernerr.New(kernerr.KindNotFound, fmt.Sprintf("%s: not found in cpiofs", name))
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
	if flags.Mode != vfs.ReadOnly {
		return nil, kernerr.ReadOnly
	}
	in, err := asInode(n)
	if err != nil {
		return nil, err
	}
	if in.kind == vfs.Directory {
		return nil, kernerr.IsDirectory
	}
	return &file{content: in.content}, nil
}

func (fs *FS) Metadata(n *vfs.Node) (vfs.Metadata, error) {
	in, err := asInode(n)
	if err != nil {
		return vfs.Metadata{}, err
	}
	return vfs.Metadata{Kind: in.kind, Size: int64(len(in.content)), Perm: vfs.PermRead}, nil
}

func (fs *FS) IsReadOnly() bool { return true }

func (fs *FS) Readlink(n *vfs.Node) (string, error) {
	in, err := asInode(n)
	if err != nil {
		return "", err
	}
	if in.kind != vfs.Symlink {
		return "", kernerr.InvalidArgument
	}
	return string(in.content), nil
}

type file struct {
	content []byte
	pos     int64
}

func (f *file) Read(ctx kctx.Context, buf []byte) (int, error) {
	if f.pos >= int64(len(f.content)) {
		return 0, nil
	}
	n := copy(buf, f.content[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) Write(ctx kctx.Context, buf []byte) (int, error) {
	return 0, kernerr.ReadOnly
}

func (f *file) Seek(whence vfs.Whence, offset int64) (int64, error) {
	var base int64
	switch whence {
	case vfs.SeekStart:
		base = 0
	case vfs.SeekCurrent:
		base = f.pos
	case vfs.SeekEnd:
		base = int64(len(f.content))
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kernerr.InvalidArgument
	}
	f.pos = newPos
	return newPos, nil
}

func (f *file) Close() error { return nil }
