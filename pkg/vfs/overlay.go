package vfs

import (
	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
)

// overlayFS is the composed filesystem an overlay_mount presents:
// lookups check upper first, then each lower layer in priority order,
// falling through; writes go to upper, with copy-up on first
// modification.
//
// Node identity must stay stable across repeated lookups,
// so overlayFS keeps its own cache of composed nodes keyed by (parent
// ovNode, name) — distinct from, and below, the VFS-wide weak entry cache
// in entry.go.
type overlayFS struct {
	mu       syncutil.Mutex
	upper    FileSystemOperations
	lowers   []FileSystemOperations // highest-priority lower first
	root     *Node
	children map[*ovNode]map[string]*Node
}

// ovNode is the driver-private node representation overlayFS stores in
// Node.Data: a composed view of the same logical path across the upper
// layer and every lower layer that has something there.
type ovNode struct {
	parent *ovNode
	name   string
	upper  *Node   // nil if this path doesn't exist in upper
	lowers []*Node // parallel to overlayFS.lowers; nil entries where absent
}

func newOverlayFS(upper FileSystemOperations, lowers []FileSystemOperations) *overlayFS {
	ov := &overlayFS{
		upper:    upper,
		lowers:   lowers,
		children: make(map[*ovNode]map[string]*Node),
	}
	rootOv := &ovNode{upper: upper.Root(), lowers: make([]*Node, len(lowers))}
	for i, l := range lowers {
		rootOv.lowers[i] = l.Root()
	}
	ov.root = &Node{FS: ov, Data: rootOv}
	return ov
}

func (ov *overlayFS) Root() *Node { return ov.root }

// layerFor returns the strongest-priority (node, fs) pair present at n:
// upper if present, else the first lower (in priority order) that has it.
func layerFor(n *ovNode, lowers []FileSystemOperations) (*Node, FileSystemOperations) {
	if n.upper != nil {
		return n.upper, nil // caller substitutes ov.upper
	}
	for i, l := range n.lowers {
		if l != nil {
			return l, lowers[i]
		}
	}
	return nil, nil
}

func (ov *overlayFS) resolveLayer(n *ovNode) (*Node, FileSystemOperations) {
	if n.upper != nil {
		return n.upper, ov.upper
	}
	node, fs := layerFor(n, ov.lowers)
	return node, fs
}

func (ov *overlayFS) Lookup(dir *Node, name string) (*Node, error) {
	parent := dir.Data.(*ovNode)

	ov.mu.Lock()
	if kids, ok := ov.children[parent]; ok {
		if existing, ok := kids[name]; ok {
			ov.mu.Unlock()
			return existing, nil
		}
	}
	ov.mu.Unlock()

	child := &ovNode{parent: parent, name: name, lowers: make([]*Node, len(ov.lowers))}
	found := false
	if parent.upper != nil {
		if n, err := ov.upper.Lookup(parent.upper, name); err == nil {
			child.upper = n
			found = true
		} else if !kernerr.Is(err, kernerr.KindNotFound) {
			return nil, err
		}
	}
	for i, lowerParent := range parent.lowers {
		if lowerParent == nil {
			continue
		}
		n, err := ov.lowers[i].Lookup(lowerParent, name)
		if err == nil {
			child.lowers[i] = n
			found = true
		} else if !kernerr.Is(err, kernerr.KindNotFound) {
			return nil, err
		}
	}
	if !found {
		return nil, kernerr.NotFound
	}

	node := &Node{FS: ov, Data: child}
	ov.mu.Lock()
	if ov.children[parent] == nil {
		ov.children[parent] = make(map[string]*Node)
	}
	if existing, ok := ov.children[parent][name]; ok {
		ov.mu.Unlock()
		return existing, nil
	}
	ov.children[parent][name] = node
	ov.mu.Unlock()
	return node, nil
}

func (ov *overlayFS) Readdir(dir *Node) ([]DirEntry, error) {
	n := dir.Data.(*ovNode)
	seen := map[string]DirEntry{}
	if n.upper != nil {
		ents, err := ov.upper.Readdir(n.upper)
		if err != nil {
			return nil, err
		}
		for _, e := range ents {
			seen[e.Name] = e
		}
	}
	for i, lowerNode := range n.lowers {
		if lowerNode == nil {
			continue
		}
		ents, err := ov.lowers[i].Readdir(lowerNode)
		if err != nil {
			return nil, err
		}
		for _, e := range ents {
			if _, ok := seen[e.Name]; !ok {
				seen[e.Name] = e
			}
		}
	}
	out := make([]DirEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	return out, nil
}

// ensureUpperDir returns n's node in the upper filesystem, creating the
// directory chain from the nearest already-materialized ancestor down to
// n if necessary — the directory half of overlay copy-up.
func (ov *overlayFS) ensureUpperDir(n *ovNode) (*Node, error) {
	if n.upper != nil {
		return n.upper, nil
	}
	if n.parent == nil {
		n.upper = ov.upper.Root()
		return n.upper, nil
	}
	parentUpper, err := ov.ensureUpperDir(n.parent)
	if err != nil {
		return nil, err
	}
	child, err := ov.upper.Create(parentUpper, n.name, Directory, PermRead|PermWrite|PermExecute)
	if err != nil && !kernerr.Is(err, kernerr.KindAlreadyExists) {
		return nil, err
	}
	if err != nil {
		child, err = ov.upper.Lookup(parentUpper, n.name)
		if err != nil {
			return nil, err
		}
	}
	n.upper = child
	return child, nil
}

func (ov *overlayFS) Create(dir *Node, name string, kind Kind, perm Permissions) (*Node, error) {
	parent := dir.Data.(*ovNode)
	parentUpper, err := ov.ensureUpperDir(parent)
	if err != nil {
		return nil, err
	}
	child, err := ov.upper.Create(parentUpper, name, kind, perm)
	if err != nil {
		return nil, err
	}
	node := &Node{FS: ov, Data: &ovNode{parent: parent, name: name, upper: child, lowers: make([]*Node, len(ov.lowers))}}
	ov.mu.Lock()
	if ov.children[parent] == nil {
		ov.children[parent] = make(map[string]*Node)
	}
	ov.children[parent][name] = node
	ov.mu.Unlock()
	return node, nil
}

func (ov *overlayFS) Remove(dir *Node, name string) error {
	parent := dir.Data.(*ovNode)
	parentUpper, err := ov.ensureUpperDir(parent)
	if err != nil {
		return err
	}
	if err := ov.upper.Remove(parentUpper, name); err != nil {
		return err
	}
	ov.mu.Lock()
	if kids, ok := ov.children[parent]; ok {
		delete(kids, name)
	}
	ov.mu.Unlock()
	return nil
}

func (ov *overlayFS) Rename(oldDir *Node, oldName string, newDir *Node, newName string) error {
	oldParent := oldDir.Data.(*ovNode)
	newParent := newDir.Data.(*ovNode)
	oldUpper, err := ov.ensureUpperDir(oldParent)
	if err != nil {
		return err
	}
	newUpper, err := ov.ensureUpperDir(newParent)
	if err != nil {
		return err
	}
	if err := ov.upper.Rename(oldUpper, oldName, newUpper, newName); err != nil {
		return err
	}
	ov.mu.Lock()
	if kids, ok := ov.children[oldParent]; ok {
		delete(kids, oldName)
	}
	ov.mu.Unlock()
	return nil
}

// copyUpFile materializes a regular file's content into upper the first
// time it's opened for writing while only present in a lower layer.
func (ov *overlayFS) copyUpFile(n *ovNode) error {
	if n.upper != nil {
		return nil
	}
	lowerNode, lowerFS := layerFor(n, ov.lowers)
	if lowerNode == nil {
		return kernerr.NotFound
	}
	parentUpper, err := ov.ensureUpperDir(n.parent)
	if err != nil {
		return err
	}
	meta, err := lowerFS.Metadata(lowerNode)
	if err != nil {
		return err
	}
	upperNode, err := ov.upper.Create(parentUpper, n.name, Regular, meta.Perm)
	if err != nil {
		return err
	}
	src, err := lowerFS.Open(lowerNode, OpenFlags{Mode: ReadOnly})
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := ov.upper.Open(upperNode, OpenFlags{Mode: WriteOnly, Truncate: true})
	if err != nil {
		return err
	}
	defer dst.Close()

	buf := make([]byte, 4096)
	ctx := context.Background()
	for {
		nr, rerr := src.Read(ctx, buf)
		if nr > 0 {
			if _, werr := dst.Write(ctx, buf[:nr]); werr != nil {
				return werr
			}
		}
		if rerr != nil || nr == 0 {
			break
		}
	}
	n.upper = upperNode
	return nil
}

func (ov *overlayFS) Open(n *Node, flags OpenFlags) (FileImpl, error) {
	on := n.Data.(*ovNode)
	if flags.Mode.writable() && on.upper == nil {
		if err := ov.copyUpFile(on); err != nil {
			return nil, err
		}
	}
	node, fs := ov.resolveLayer(on)
	if node == nil {
		return nil, kernerr.NotFound
	}
	return fs.Open(node, flags)
}

func (ov *overlayFS) Metadata(n *Node) (Metadata, error) {
	on := n.Data.(*ovNode)
	node, fs := ov.resolveLayer(on)
	if node == nil {
		return Metadata{}, kernerr.NotFound
	}
	return fs.Metadata(node)
}

func (ov *overlayFS) IsReadOnly() bool { return ov.upper.IsReadOnly() }
