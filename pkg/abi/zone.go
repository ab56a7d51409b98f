package abi

import (
	"sort"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
)

// Zone is a half-open address range [Start, Start+Len) whose syscalls are
// handled by ABI instead of the owning task's default ABI.
type Zone struct {
	Start uint64
	Len   uint64
	ABI   Instance
}

func (z Zone) end() uint64 { return z.Start + z.Len }
func (z Zone) contains(addr uint64) bool { return addr >= z.Start && addr < z.end() }
func (z Zone) overlaps(o Zone) bool { return z.Start < o.end() && o.Start < z.end() }

// ZoneMap is a task's ordered collection of ABI zones, keyed by start
// address: find the greatest start ≤ a; if that zone's range contains
// a, return its ABI; otherwise return the task's default ABI. Zones
// never overlap.
//
// zones is kept sorted by Start so Resolve can binary-search it,
// giving lookups O(log n) complexity.
type ZoneMap struct {
	mu    syncutil.RWMutex
	zones []Zone
}

// NewZoneMap returns an empty zone map.
func NewZoneMap() *ZoneMap {
	return &ZoneMap{}
}

// Register inserts a new zone. It fails with InvalidArgument if len==0 or
// start+len overflows, and with AlreadyExists if the new range overlaps
// an existing zone — resolves the "zone overlap policy" Open
// Question by enforcing rejection unconditionally, from the start.
func (m *ZoneMap) Register(start, length uint64, inst Instance) error {
	if length == 0 {
		return kernerr.InvalidArgument
	}
	end := start + length
	if end < start { // overflow
		return kernerr.InvalidArgument
	}
	candidate := Zone{Start: start, Len: length, ABI: inst}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := sort.Search(len(m.zones), func(i int) bool { return m.zones[i].Start >= start })
	if idx > 0 && m.zones[idx-1].overlaps(candidate) {
		return kernerr.AlreadyExists
	}
	if idx < len(m.zones) && m.zones[idx].overlaps(candidate) {
		return kernerr.AlreadyExists
	}
	m.zones = append(m.zones, Zone{})
	copy(m.zones[idx+1:], m.zones[idx:])
	m.zones[idx] = candidate
	return nil
}

// Unregister removes the zone exactly keyed by start. It fails with
// NotFound if no such zone exists.
func (m *ZoneMap) Unregister(start uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := sort.Search(len(m.zones), func(i int) bool { return m.zones[i].Start >= start })
	if idx >= len(m.zones) || m.zones[idx].Start != start {
		return kernerr.NotFound
	}
	m.zones = append(m.zones[:idx], m.zones[idx+1:]...)
	return nil
}

// Resolve returns the ABI instance governing addr, and true, if some zone
// contains addr; otherwise it returns (nil, false) so the caller falls
// back to the task's default ABI.
func (m *ZoneMap) Resolve(addr uint64) (Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := sort.Search(len(m.zones), func(i int) bool { return m.zones[i].Start > addr }) - 1
	if idx < 0 || idx >= len(m.zones) {
		return nil, false
	}
	z := m.zones[idx]
	if z.contains(addr) {
		return z.ABI, true
	}
	return nil, false
}

// Len returns the number of registered zones.
func (m *ZoneMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.zones)
}

// Zones returns a snapshot of every registered zone, ordered by Start.
func (m *ZoneMap) Zones() []Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Zone, len(m.zones))
	copy(out, m.zones)
	return out
}

// Clone returns an independent ZoneMap with the same ranges, each
// zone's ABI instance deep-cloned so the parent and child end up with
// independent ABI state per zone.
func (m *ZoneMap) Clone() *ZoneMap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &ZoneMap{zones: make([]Zone, len(m.zones))}
	for i, z := range m.zones {
		out.zones[i] = Zone{Start: z.Start, Len: z.Len, ABI: z.ABI.Clone()}
	}
	return out
}

// Clear removes every zone, as exec does.
func (m *ZoneMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones = nil
}
