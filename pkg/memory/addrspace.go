// Package memory implements the kernel's memory-manager interface: a
// per-task virtual address space backed by a fixed-size byte slice, with
// anonymous mappings of any byte length and a growable heap (sbrk), and
// user/kernel copy primitives. There is no separate page allocator.
//
// Real page tables, TLB shootdown, and physical-to-virtual translation are
// left to the architecture this kernel pretends to run on; this package
// plays the role the MMU and trap-frame-adjacent copy routines would,
// backing every "address space" with a plain Go byte slice and every
// "address" with an offset into it.
package memory

import (
	"sort"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/syncutil"
)

// region describes one mapped range of an AddressSpace.
type region struct {
	start hostarch.Addr
	end   hostarch.Addr // exclusive
}

func (r region) contains(a hostarch.Addr) bool { return a >= r.start && a < r.end }
func (r region) overlaps(o region) bool        { return r.start < o.end && o.start < r.end }

// AddressSpace is a task's virtual address space: a backing store plus a
// set of mapped regions within it. The backing store's size is the
// address space's ceiling; offsets into it double as "virtual addresses".
type AddressSpace struct {
	mu syncutil.Mutex

	store []byte // simulated physical backing, indexed by virtual address

	regions []region // sorted by start, non-overlapping

	heapStart hostarch.Addr
	heapEnd   hostarch.Addr // current break
	heapLimit hostarch.Addr
}

// DefaultSize is the size given to a freshly exec'd task's address space
// when the caller does not otherwise specify one.
const DefaultSize = 256 << 20 // 256 MiB simulated address space

// NewAddressSpace allocates a fresh address space of the given size, with
// an initial heap region reserved starting at heapStart.
func NewAddressSpace(size uint64, heapStart hostarch.Addr) *AddressSpace {
	as := &AddressSpace{
		store:     make([]byte, size),
		heapStart: heapStart,
		heapEnd:   heapStart,
		heapLimit: hostarch.Addr(size),
	}
	return as
}

// Fork returns an independent copy of as, with identical region layout and
// contents. Scarlet's simulated address space has no copy-on-write
// machinery; this implementation always copies eagerly.
func (as *AddressSpace) Fork() *AddressSpace {
	as.mu.Lock()
	defer as.mu.Unlock()
	store := make([]byte, len(as.store))
	copy(store, as.store)
	regions := make([]region, len(as.regions))
	copy(regions, as.regions)
	return &AddressSpace{
		store:     store,
		regions:   regions,
		heapStart: as.heapStart,
		heapEnd:   as.heapEnd,
		heapLimit: as.heapLimit,
	}
}

// Size returns the capacity of the address space.
func (as *AddressSpace) Size() uint64 {
	return uint64(len(as.store))
}

func (as *AddressSpace) insertRegionLocked(r region) error {
	idx := sort.Search(len(as.regions), func(i int) bool { return as.regions[i].start >= r.start })
	if idx > 0 && as.regions[idx-1].overlaps(r) {
		return kernerr.AlreadyExists
	}
	if idx < len(as.regions) && as.regions[idx].overlaps(r) {
		return kernerr.AlreadyExists
	}
	as.regions = append(as.regions, region{})
	copy(as.regions[idx+1:], as.regions[idx:])
	as.regions[idx] = r
	return nil
}

// MapAnonymous reserves [addr, addr+length) for an anonymous mapping. If
// addr is zero, a free range is chosen. It returns the base address of the
// mapping.
func (as *AddressSpace) MapAnonymous(addr hostarch.Addr, length uint64) (hostarch.Addr, error) {
	if length == 0 {
		return 0, kernerr.InvalidArgument
	}
	as.mu.Lock()
	defer as.mu.Unlock()

	end, ok := addr.AddLength(length)
	if addr == 0 {
		base, found := as.findFreeLocked(length)
		if !found {
			return 0, kernerr.New(kernerr.KindNoSpace, "no free region large enough for mapping")
		}
		addr = base
		end = addr + hostarch.Addr(length)
	} else if !ok || end > hostarch.Addr(len(as.store)) {
		return 0, kernerr.InvalidArgument
	}
	if err := as.insertRegionLocked(region{start: addr, end: end}); err != nil {
		return 0, err
	}
	return addr, nil
}

func (as *AddressSpace) findFreeLocked(length uint64) (hostarch.Addr, bool) {
	cursor := as.heapLimit
	want := hostarch.Addr(length)
	candidates := append([]region{{start: cursor, end: cursor}}, as.regions...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].start < candidates[j].start })
	for i := 0; i < len(candidates); i++ {
		var gapStart hostarch.Addr
		if i == 0 {
			gapStart = as.heapLimit
		} else {
			gapStart = candidates[i-1].end
		}
		var gapEnd hostarch.Addr
		if i < len(candidates) {
			gapEnd = candidates[i].start
		}
		if gapEnd == 0 {
			gapEnd = hostarch.Addr(len(as.store))
		}
		if gapEnd-gapStart >= want {
			return gapStart, true
		}
	}
	last := as.heapLimit
	if len(as.regions) > 0 {
		last = as.regions[len(as.regions)-1].end
	}
	if hostarch.Addr(len(as.store))-last >= want {
		return last, true
	}
	return 0, false
}

// Unmap removes the mapping covering [addr, addr+length).
func (as *AddressSpace) Unmap(addr hostarch.Addr, length uint64) error {
	if length == 0 {
		return kernerr.InvalidArgument
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	target := region{start: addr, end: addr + hostarch.Addr(length)}
	for i, r := range as.regions {
		if r == target {
			as.regions = append(as.regions[:i], as.regions[i+1:]...)
			return nil
		}
	}
	return kernerr.NotFound
}

// Sbrk adjusts the heap break by delta bytes (which may be negative) and
// returns the new break.
func (as *AddressSpace) Sbrk(delta int64) (hostarch.Addr, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	newEnd := hostarch.Addr(int64(as.heapEnd) + delta)
	if newEnd < as.heapStart || newEnd > as.heapLimit {
		return 0, kernerr.New(kernerr.KindNoSpace, "sbrk out of range")
	}
	as.heapEnd = newEnd
	return as.heapEnd, nil
}

// CopyOut copies src into the address space at addr.
func (as *AddressSpace) CopyOut(addr hostarch.Addr, src []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	end, ok := addr.AddLength(uint64(len(src)))
	if !ok || end > hostarch.Addr(len(as.store)) {
		return kernerr.Fault
	}
	copy(as.store[addr:end], src)
	return nil
}

// CopyIn copies len(dst) bytes from the address space at addr into dst.
func (as *AddressSpace) CopyIn(addr hostarch.Addr, dst []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	end, ok := addr.AddLength(uint64(len(dst)))
	if !ok || end > hostarch.Addr(len(as.store)) {
		return kernerr.Fault
	}
	copy(dst, as.store[addr:end])
	return nil
}

// CopyInString copies a NUL-terminated string of at most maxLen bytes
// starting at addr out of the address space.
func (as *AddressSpace) CopyInString(addr hostarch.Addr, maxLen int) (string, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if addr >= hostarch.Addr(len(as.store)) {
		return "", kernerr.Fault
	}
	end := addr
	limit := addr + hostarch.Addr(maxLen)
	if limit > hostarch.Addr(len(as.store)) {
		limit = hostarch.Addr(len(as.store))
	}
	for end < limit && as.store[end] != 0 {
		end++
	}
	if end == limit {
		return "", kernerr.New(kernerr.KindInvalidArgument, "string exceeds maximum length")
	}
	return string(as.store[addr:end]), nil
}
