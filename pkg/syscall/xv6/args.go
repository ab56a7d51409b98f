package xv6

import (
	"encoding/binary"

	"scarlet/pkg/hostarch"
	"scarlet/pkg/kernel"
)

func copyInPath(t *kernel.Task, addr uint64) (string, error) {
	return t.AddressSpace().CopyInString(hostarch.Addr(addr), maxPathLen)
}

// copyInArgv reads a NUL-pointer-terminated array of 8-byte
// little-endian string pointers, bounded by maxArgCount entries.
func copyInArgv(t *kernel.Task, addr uint64) ([]string, error) {
	as := t.AddressSpace()
	var out []string
	cursor := hostarch.Addr(addr)
	for i := 0; i < maxArgCount; i++ {
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
	return out, nil
}

func copyOutInt32(t *kernel.Task, addr uint64, v int32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	return t.AddressSpace().CopyOut(hostarch.Addr(addr), raw[:])
}

func leUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
