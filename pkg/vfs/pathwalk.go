package vfs

import (
	"strings"

	"scarlet/pkg/errors/kernerr"
)

// maxSymlinkChain is the maximum number of symlink expansions a single
// walk will follow before failing with kernerr.LoopDetected.
const maxSymlinkChain = 40

// splitPath normalizes path: absolute paths are flagged, "." components
// are dropped, empty/repeated separators collapse, and a trailing
// separator on a non-empty path is remembered so the caller can demand
// the terminal component be a directory.
func splitPath(path string) (absolute bool, components []string, trailingSlash bool) {
	if strings.HasPrefix(path, "/") {
		absolute = true
	}
	trailingSlash = len(path) > 1 && strings.HasSuffix(path, "/")
	for _, c := range strings.Split(path, "/") {
		if c == "" || c == "." {
			continue
		}
		components = append(components, c)
	}
	return absolute, components, trailingSlash
}

// Walk resolves path starting at the namespace root (for an absolute
// path) — an absolute-path convenience over WalkFrom.
func (ns *Namespace) Walk(path string) (*Entry, error) {
	return ns.WalkFrom(ns.root, path)
}

// WalkFrom resolves path, starting at start if path is relative, or at
// the namespace root if path is absolute.
func (ns *Namespace) WalkFrom(start *Entry, path string) (*Entry, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.walkLocked(start, path)
}

func (ns *Namespace) walkLocked(start *Entry, path string) (*Entry, error) {
	absolute, components, trailingSlash := splitPath(path)
	cur := start
	if absolute {
		cur = ns.root
	}
	budget := maxSymlinkChain

	for i := 0; i < len(components); i++ {
		comp := components[i]
		if comp == ".." {
			cur = cur.Parent()
			continue
		}

		child, err := ns.stepLocked(cur, comp)
		if err != nil {
			return nil, err
		}

		childNode := child.Node()
		meta, err := childNode.FS.Metadata(childNode)
		if err != nil {
			return nil, err
		}

		// Every symlink, intermediate or terminal, is resolved
		// transparently by splicing its target's components into the
		// remaining walk and restarting the loop on the same shared
		// budget: a single well-defined walk result, rather than a raw
		// symlink node callers must follow themselves, and critically a
		// single shared hop counter rather than one that resets per
		// recursive call.
		if meta.Kind == Symlink {
			budget--
			if budget < 0 {
				return nil, kernerr.LoopDetected
			}
			target, err := readlinkNode(childNode)
			if err != nil {
				return nil, err
			}
			rest := append(splitRemaining(target), components[i+1:]...)
			components = rest
			if strings.HasPrefix(target, "/") {
				cur = ns.root
			}
			i = -1
			continue
		}

		isLast := i == len(components)-1
		if !isLast && meta.Kind != Directory {
			return nil, kernerr.NotDirectory
		}
		if isLast && trailingSlash && meta.Kind != Directory {
			return nil, kernerr.NotDirectory
		}
		cur = child
	}

	return cur, nil
}

// stepLocked resolves one path component under dir: a cache hit returns
// the cached child; a miss calls the owning filesystem's Lookup and
// splices a new entry, then checks whether a mount is registered at the
// resulting absolute path — necessary because the entry that originally
// carried a mount attachment may have been evicted and rebuilt from a
// cold ancestor.
func (ns *Namespace) stepLocked(dir *Entry, name string) (*Entry, error) {
	if child, ok := dir.getChild(name); ok {
		return child, nil
	}

	dirNode := dir.Node()
	dirMeta, err := dirNode.FS.Metadata(dirNode)
	if err != nil {
		return nil, err
	}
	if dirMeta.Kind != Directory {
		return nil, kernerr.NotDirectory
	}

	childNode, err := dirNode.FS.Lookup(dirNode, name)
	if err != nil {
		return nil, err
	}
	child := dir.spliceChild(name, childNode)
	ns.reattachMountIfAny(child)
	return child, nil
}

func (ns *Namespace) reattachMountIfAny(child *Entry) {
	if _, ok := child.mountPoint(); ok {
		return
	}
	if m, ok := ns.mounts[child.path()]; ok {
		child.attachMount(m)
		m.covered = child
	}
}

func readlinkNode(n *Node) (string, error) {
	rl, ok := n.FS.(ReadlinkOperations)
	if !ok {
		return "", kernerr.NotSupported
	}
	return rl.Readlink(n)
}

func splitRemaining(path string) []string {
	_, comps, _ := splitPath(path)
	return comps
}
