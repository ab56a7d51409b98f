// Package device implements the registry of named character and block
// devices that DevFS (pkg/fsimpl/devfs) mirrors into a directory, and that
// block-backed filesystem drivers mount against.
//
// Real virtio-mmio, UART, and block drivers are out of scope; this package supplies the registry interface names plus
// enough in-memory implementations to exercise it end-to-end.
package device

import (
	"fmt"
	"sort"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
)

// Kind distinguishes character from block devices.
type Kind int

const (
	// CharDevice is a byte-stream device (console, null, ...).
	CharDevice Kind = iota
	// BlockDevice is a sector-addressed device (virtio-blk, ...).
	BlockDevice
)

// CharOps is the byte-stream interface a character device exposes.
type CharOps interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// BlockOps is the sector interface a block device exposes.
type BlockOps interface {
	// SectorSize returns the device's sector size in bytes.
	SectorSize() int
	// NumSectors returns the device's capacity in sectors.
	NumSectors() int64
	// ReadSectors reads len(p)/SectorSize() sectors starting at lba.
	ReadSectors(lba int64, p []byte) error
	// WriteSectors writes len(p)/SectorSize() sectors starting at lba.
	WriteSectors(lba int64, p []byte) error
}

// Device is one registered entry: a name, a Kind, and the corresponding
// operations interface (exactly one of Char/Block is non-nil).
type Device struct {
	Name  string
	Kind  Kind
	Char  CharOps
	Block BlockOps
}

// Registry is the process-wide, append-mostly registry of named
// character/block devices. It is read-mostly after boot, protected by
// a read-write lock.
type Registry struct {
	mu      syncutil.RWMutex
	devices map[string]*Device
}

// NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Register adds dev to the registry. It fails with AlreadyExists if the
// name is taken.
func (r *Registry) Register(dev *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[dev.Name]; ok {
		return kernerr.New(kernerr.KindAlreadyExists, fmt.Sprintf("device %q already registered", dev.Name))
	}
	r.devices[dev.Name] = dev
	return nil
}

// Lookup returns the device registered under name.
func (r *Registry) Lookup(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	if !ok {
		return nil, kernerr.NotFound
	}
	return d, nil
}

// List returns every registered device, sorted by name, for DevFS
// directory synthesis.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
