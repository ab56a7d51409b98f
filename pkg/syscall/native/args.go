package native

import (
	"encoding/binary"

	"scarlet/pkg/arch"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/kernel"
)

// copyInPath copies a NUL-terminated path string out of t's address space.
func copyInPath(t *kernel.Task, addr uint64) (string, error) {
	return t.AddressSpace().CopyInString(hostarch.Addr(addr), maxPathLen)
}

// copyInVector copies a NUL-pointer-terminated array of string pointers
// (the argv/envp convention) out of t's address space, reading each
// pointer as an 8-byte little-endian word and each string it points to as
// a NUL-terminated string.
func copyInVector(t *kernel.Task, addr uint64) ([]string, error) {
	as := t.AddressSpace()
	var out []string
	cursor := hostarch.Addr(addr)
	for i := 0; i < maxVectorLen; i++ {
		var raw [8]byte
		if err := as.CopyIn(cursor, raw[:]); err != nil {
			return nil, err
		}
		ptr := binary.LittleEndian.Uint64(raw[:])
		if ptr == 0 {
			return out, nil
		}
		s, err := as.CopyInString(hostarch.Addr(ptr), maxPathLen)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		cursor += 8
	}
	return nil, kernerr.InvalidArgument
}

// copyOutInt32 writes v as 4 little-endian bytes at addr.
func copyOutInt32(t *kernel.Task, addr uint64, v int32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	return t.AddressSpace().CopyOut(hostarch.Addr(addr), raw[:])
}

// addrArg returns trap-frame argument register i as a hostarch.Addr.
func addrArg(tf *arch.TrapFrame, i int) hostarch.Addr { return hostarch.Addr(tf.Arg(i)) }

// leUint32 writes v into dst as 4 little-endian bytes.
func leUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
