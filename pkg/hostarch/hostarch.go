// Package hostarch defines address types and page-granularity arithmetic
// shared by the memory manager and the native/xv6 ABI modules.
package hostarch

// Addr represents a generic virtual address.
type Addr uintptr

const (
	// PageSize is the system page size, matching RISC-V's standard Sv39
	// 4 KiB page.
	PageSize = 4096
)

// PageRoundDown returns the address rounded down to the nearest page
// boundary.
func (v Addr) PageRoundDown() Addr {
	return v &^ (PageSize - 1)
}

// PageRoundUp returns the address rounded up to the nearest page boundary.
// ok is false if rounding up overflowed.
func (v Addr) PageRoundUp() (addr Addr, ok bool) {
	rounded := (v + PageSize - 1).PageRoundDown()
	return rounded, rounded >= v
}

// PageOffset returns the offset of v into its containing page.
func (v Addr) PageOffset() Addr {
	return v & (PageSize - 1)
}

// IsPageAligned reports whether v lies on a page boundary.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// AddLength returns v+length. ok is false if the addition overflows.
func (v Addr) AddLength(length uint64) (addr Addr, ok bool) {
	addr = v + Addr(length)
	return addr, addr >= v
}
