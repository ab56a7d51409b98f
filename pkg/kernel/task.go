package kernel

import (
	"sort"

	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/memory"
	"scarlet/pkg/syncutil"
	"scarlet/pkg/vfs"
	"scarlet/pkg/waiter"
)

// defaultHeapStart leaves enough low address space for a typical exec'd
// binary's PT_LOAD segments before the heap begins; a freshly spawned
// task with nothing loaded yet still gets the same layout for
// uniformity.
const defaultHeapStart = 64 << 20

func newAddressSpace() *memory.AddressSpace {
	return memory.NewAddressSpace(memory.DefaultSize, hostarch.Addr(defaultHeapStart))
}

// State is a task's scheduling/lifecycle state.
type State int

const (
	// Running covers every live state short of exited; this simulation
	// does not model Runnable/Blocked/OnCPU distinctly.
	Running State = iota
	// Zombie is set by Exit and cleared by the parent's Wait reaping it.
	Zombie
)

// Task is a schedulable process: its own address space,
// descriptor table, VFS namespace handle and cwd, default ABI, ABI zone
// map, environment block, and a trap frame for the currently executing
// syscall, if any.
type Task struct {
	k *Kernel

	mu         syncutil.Mutex
	id         int64
	parent     *Task
	children   map[int64]*Task
	state      State
	exitStatus int
	childExitQ waiter.Queue

	as         *memory.AddressSpace
	fds        *FDTable
	ns         *vfs.Namespace
	cwd        *vfs.Entry
	defaultABI abi.Instance
	zones      *abi.ZoneMap
	env        map[string]string
	argv       []string

	tf arch.TrapFrame
}

// TaskID satisfies scarlet/pkg/context.Task, letting VFS code attribute
// pipe and mount references to a task without importing package kernel.
func (t *Task) TaskID() int64 { return t.id }

// PID returns the task's process id.
func (t *Task) PID() int64 { return t.id }

// PPID returns the parent task's pid, or 0 if t has no parent (pid 1, or
// a task whose parent has already been reaped — which cannot happen,
// since a parent only disappears from the task set once reaped, and
// reaping requires its children to already be gone or reparented).
func (t *Task) PPID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.parent == nil {
		return 0
	}
	return t.parent.id
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// TrapFrame returns the task's trap frame, for the ABI dispatcher to
// populate and read back.
func (t *Task) TrapFrame() *arch.TrapFrame { return &t.tf }

// AddressSpace returns the task's address space.
func (t *Task) AddressSpace() *memory.AddressSpace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.as
}

// FDTable returns the task's descriptor table.
func (t *Task) FDTable() *FDTable { return t.fds }

// Namespace returns the task's current VFS namespace handle.
func (t *Task) Namespace() *vfs.Namespace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ns
}

// DefaultABI returns the task's default ABI instance.
func (t *Task) DefaultABI() abi.Instance {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defaultABI
}

// Zones returns the task's ABI zone map.
func (t *Task) Zones() *abi.ZoneMap { return t.zones }

// ResolveABI implements dispatch rule: a zone containing
// addr wins; otherwise the task's default ABI.
func (t *Task) ResolveABI(addr uint64) abi.Instance {
	if inst, ok := t.zones.Resolve(addr); ok {
		return inst
	}
	return t.DefaultABI()
}

// RegisterZone instantiates the named ABI and installs it as a new zone,
// the register_abi_zone syscall's implementation.
func (t *Task) RegisterZone(start, length uint64, abiName string) error {
	inst, err := t.k.abiRegistry.Instantiate(abiName)
	if err != nil {
		return err
	}
	return t.Zones().Register(start, length, inst)
}

// UnregisterZone removes the zone at start (syscall 91).
func (t *Task) UnregisterZone(start uint64) error {
	return t.Zones().Unregister(start)
}

// Getcwd reconstructs the task's current working directory as an
// absolute path, for the getcwd syscall.
func (t *Task) Getcwd() string {
	t.mu.Lock()
	cwd := t.cwd
	t.mu.Unlock()
	return entryPath(cwd)
}

// Chdir resolves path against the task's cwd and namespace and, if it
// names a directory, makes it the new cwd.
func (t *Task) Chdir(path string) error {
	t.mu.Lock()
	ns, cwd := t.ns, t.cwd
	t.mu.Unlock()

	entry, err := ns.WalkFrom(cwd, path)
	if err != nil {
		return err
	}
	node := entry.Node()
	meta, err := node.FS.Metadata(node)
	if err != nil {
		return err
	}
	if meta.Kind != vfs.Directory {
		return kernerr.NotDirectory
	}

	t.mu.Lock()
	t.cwd = entry
	t.mu.Unlock()
	return nil
}

// entryPath reconstructs e's absolute path by walking parent links.
// Duplicates vfs.Entry's own private path() helper (exposed there only
// for diagnostics) because Getcwd is the same kind of non-authoritative,
// display-only use: the namespace's cache tree, not this string, is what
// a subsequent path-walk actually resolves against.
func entryPath(e *vfs.Entry) string {
	if e.IsRoot() {
		return "/"
	}
	var parts []string
	for cur := e; !cur.IsRoot(); cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	out := ""
	for i := len(parts) - 1; i >= 0; i-- {
		out += "/" + parts[i]
	}
	return out
}

// Open resolves path relative to the task's cwd (or the namespace root,
// for an absolute path) and installs the result in the task's descriptor
// table.
func (t *Task) Open(path string, flags vfs.OpenFlags, perm vfs.Permissions) (int, error) {
	t.mu.Lock()
	ns, cwd := t.ns, t.cwd
	t.mu.Unlock()

	f, err := ns.Open(cwd, path, flags, perm)
	if err != nil {
		return -1, err
	}
	return t.fds.Install(f, FDFlags{CloseOnExec: flags.CloseOnExec}), nil
}

// Close releases fd.
func (t *Task) Close(fd int) error { return t.fds.Close(fd) }

// Dup binds a new descriptor to the same open file as fd.
func (t *Task) Dup(fd int) (int, error) { return t.fds.Dup(fd) }

// DupTo binds newfd to the same open file as oldfd, as dup2 and exec-time
// fd inheritance setup both need.
func (t *Task) DupTo(oldfd, newfd int) error { return t.fds.DupTo(oldfd, newfd) }

// Pipe creates a pipe and installs its two ends as fresh descriptors,
// returning (readFD, writeFD).
func (t *Task) Pipe() (int, int, error) {
	r, w := vfs.NewPipe()
	rf := vfs.NewPipeFile(r, vfs.ReadOnly)
	wf := vfs.NewPipeFile(w, vfs.WriteOnly)
	readFD := t.fds.Install(rf, FDFlags{})
	writeFD := t.fds.Install(wf, FDFlags{})
	return readFD, writeFD, nil
}

// Read reads from fd into buf.
func (t *Task) Read(ctx kctx.Context, fd int, buf []byte) (int, error) {
	f, _, err := t.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(ctx, buf)
}

// Write writes buf to fd.
func (t *Task) Write(ctx kctx.Context, fd int, buf []byte) (int, error) {
	f, _, err := t.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(ctx, buf)
}

// Seek repositions fd.
func (t *Task) Seek(fd int, whence vfs.Whence, offset int64) (int64, error) {
	f, _, err := t.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	return f.Seek(whence, offset)
}

// Sbrk adjusts the task's heap break.
func (t *Task) Sbrk(delta int64) (hostarch.Addr, error) {
	return t.AddressSpace().Sbrk(delta)
}

// Mmap establishes an anonymous mapping in the task's address space.
func (t *Task) Mmap(addr hostarch.Addr, length uint64) (hostarch.Addr, error) {
	return t.AddressSpace().MapAnonymous(addr, length)
}

// Munmap removes a mapping from the task's address space.
func (t *Task) Munmap(addr hostarch.Addr, length uint64) error {
	return t.AddressSpace().Unmap(addr, length)
}

// Setenv sets key=val in the task's environment block.
func (t *Task) Setenv(key, val string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.env[key] = val
}

// Getenv returns the value bound to key, if any.
func (t *Task) Getenv(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.env[key]
	return v, ok
}

// Environ returns the task's environment as "key=value" strings, sorted
// by key for deterministic output.
func (t *Task) Environ() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.env))
	for k, v := range t.env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Argv returns the argument vector the task was last exec'd with.
func (t *Task) Argv() []string { t.mu.Lock(); defer t.mu.Unlock(); return t.argv }

func (t *Task) notifyChildExit() {
	t.childExitQ.Notify(waiter.EventIn)
}
