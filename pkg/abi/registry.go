// Package abi implements the process-wide ABI registry and the ABI
// instance contract: a mapping from textual ABI name to a
// factory producing fresh, independent ABI instances, plus binary-format
// detection used at exec time.
package abi

import (
	"scarlet/pkg/arch"
	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
)

// MaxNameLength bounds the textual ABI name copied from user space by the
// register_abi_zone syscall.
const MaxNameLength = 64

// Header is the subset of an executable's identification bytes the
// registry's detectors inspect. pkg/loader populates this from an ELF
// file's e_ident and related fields; Header itself stays ABI-agnostic so
// that pkg/abi never needs to import pkg/loader (which imports pkg/abi).
type Header struct {
	// OSABI is the ELF identification OSABI byte (EI_OSABI).
	OSABI byte
	// Magic is the raw first bytes of the file, for detectors that key
	// off more than the OSABI byte.
	Magic []byte
}

// Instance is an ABI module instance, owned by exactly one Task or ABI
// zone. It translates syscall numbers and trap-frame arguments into
// kernel-level operations.
type Instance interface {
	// Name returns the textual name under which this instance's factory
	// was registered.
	Name() string

	// HandleSyscall services one syscall trap. result is written back
	// into the trap frame's return slot by the caller.
	HandleSyscall(ctx context.Context, tf *arch.TrapFrame) (uintptr, error)

	// Clone returns a state-independent copy of this instance, used by
	// fork to give a child task its own copy of a default ABI or zone
	// ABI.
	Clone() Instance
}

// Detector reports whether hdr identifies a binary this ABI can execute.
type Detector func(hdr Header) bool

// Factory produces a fresh, independent Instance.
type Factory func() Instance

type registration struct {
	name    string
	factory Factory
	detect  Detector
}

// Registry is the process-wide mapping of ABI name to factory.
type Registry struct {
	mu    syncutil.RWMutex
	byName map[string]*registration
	// order preserves registration order so Detect has deterministic
	// tie-breaking when more than one detector matches.
	order []*registration
}

// NewRegistry returns an empty ABI registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*registration)}
}

// Register adds a new ABI under name. It is idempotent by name: a second
// registration under the same name fails with AlreadyExists.
func (r *Registry) Register(name string, factory Factory, detect Detector) error {
	if name == "" || len(name) > MaxNameLength {
		return kernerr.InvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return kernerr.AlreadyExists
	}
	reg := &registration{name: name, factory: factory, detect: detect}
	r.byName[name] = reg
	r.order = append(r.order, reg)
	return nil
}

// Instantiate returns a fresh instance of the named ABI, or UnknownAbi if
// no such ABI is registered.
func (r *Registry) Instantiate(name string) (Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return nil, kernerr.UnknownAbi
	}
	return reg.factory(), nil
}

// Detect returns the name of the first registered ABI whose detector
// matches hdr, in registration order, or false if none match.
func (r *Registry) Detect(hdr Header) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.order {
		if reg.detect != nil && reg.detect(hdr) {
			return reg.name, true
		}
	}
	return "", false
}

// Names returns every registered ABI name, in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	for i, reg := range r.order {
		out[i] = reg.name
	}
	return out
}
