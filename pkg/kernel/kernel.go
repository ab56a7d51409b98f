// Package kernel implements the task and process model: task creation
// by fork or spawn, exec, wait/exit with zombie and orphan-reparenting
// semantics, and the per-task resources (address space, descriptor
// table, VFS namespace handle, ABI zone map, environment block) that
// make up a Task.
//
// A process-wide TaskSet owns pid allocation and the live task map,
// simplified to drop process groups, sessions, and user namespaces,
// along with parent/children bookkeeping and a zombie-then-reap exit
// lifecycle.
package kernel

import (
	"scarlet/pkg/abi"
	"scarlet/pkg/log"
	"scarlet/pkg/syncutil"
	"scarlet/pkg/vfs"
)

// InitTaskID is the pid of the namespace's init process.
const InitTaskID = 1

// Kernel is the process-wide task set: pid allocation plus the live task
// map, and the single shared ABI registry every task's register_abi_zone
// and exec calls consult.
type Kernel struct {
	mu          syncutil.RWMutex
	tasks       map[int64]*Task
	nextID      int64
	abiRegistry *abi.Registry
	init        *Task
}

// NewKernel returns an empty task set backed by abiRegistry.
func NewKernel(abiRegistry *abi.Registry) *Kernel {
	return &Kernel{
		tasks:       make(map[int64]*Task),
		nextID:      InitTaskID,
		abiRegistry: abiRegistry,
	}
}

func (k *Kernel) allocID() int64 {
	id := k.nextID
	k.nextID++
	return id
}

// InitTask returns the task currently occupying pid 1, or nil before the
// first Spawn.
func (k *Kernel) InitTask() *Task {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.init
}

// Lookup returns the live task registered under id.
func (k *Kernel) Lookup(id int64) (*Task, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tasks[id]
	return t, ok
}

func (k *Kernel) removeTask(id int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.tasks, id)
}

// Spawn creates a brand-new task ("created by fork
// (duplicate) or spawn") with a fresh address space and descriptor table,
// rooted at ns, running under the named default ABI. The first task ever
// spawned becomes the namespace's init process (pid 1).
func (k *Kernel) Spawn(ns *vfs.Namespace, abiName string) (*Task, error) {
	inst, err := k.abiRegistry.Instantiate(abiName)
	if err != nil {
		return nil, err
	}

	t := &Task{
		k:          k,
		children:   make(map[int64]*Task),
		as:         newAddressSpace(),
		fds:        NewFDTable(),
		ns:         ns,
		cwd:        ns.Root(),
		defaultABI: inst,
		zones:      abi.NewZoneMap(),
		env:        make(map[string]string),
	}

	k.mu.Lock()
	t.id = k.allocID()
	k.tasks[t.id] = t
	if k.init == nil {
		k.init = t
	}
	k.mu.Unlock()

	return t, nil
}

// Fork duplicates parent into a new task's fork
// semantics: address space copy, descriptor table sharing by reference
// count, shared namespace handle, cloned default ABI, independently
// cloned zone map, and a copied cwd/environment.
func (k *Kernel) Fork(parent *Task) (*Task, error) {
	parent.mu.Lock()
	child := &Task{
		k:          k,
		parent:     parent,
		children:   make(map[int64]*Task),
		as:         parent.as.Fork(),
		fds:        parent.fds.Fork(),
		ns:         parent.ns,
		cwd:        parent.cwd,
		defaultABI: parent.defaultABI.Clone(),
		zones:      parent.zones.Clone(),
		env:        copyEnv(parent.env),
	}

	k.mu.Lock()
	child.id = k.allocID()
	k.tasks[child.id] = child
	k.mu.Unlock()

	parent.children[child.id] = child
	parent.mu.Unlock()

	return child, nil
}

// Exit marks t a zombie carrying status, reparents its children to the
// init task, wakes anything waiting on t's parent, and releases every
// resource t owns.
// It is idempotent: exiting an already-zombie task is a no-op.
func (k *Kernel) Exit(t *Task, status int) error {
	t.mu.Lock()
	if t.state == Zombie {
		t.mu.Unlock()
		return nil
	}
	t.state = Zombie
	t.exitStatus = status
	orphans := make([]*Task, 0, len(t.children))
	for _, c := range t.children {
		orphans = append(orphans, c)
	}
	t.children = make(map[int64]*Task)
	parent := t.parent
	t.mu.Unlock()

	if len(orphans) > 0 {
		init := k.InitTask()
		if init == nil {
			log.Fatalf("kernel: task %d has orphans to reparent but no init task exists", t.id)
		}
		if init != t {
			init.mu.Lock()
			for _, c := range orphans {
				c.mu.Lock()
				c.parent = init
				c.mu.Unlock()
				init.children[c.id] = c
			}
			init.mu.Unlock()
		}
	}

	err := t.fds.CloseAll()

	if parent != nil {
		parent.notifyChildExit()
	}
	return err
}

func copyEnv(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
