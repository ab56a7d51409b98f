// Package loader implements ELF64 binary loading for exec(2): header
// parsing, OSABI-based ABI detection, and PT_LOAD segment mapping into
// a task's address space.
//
// The loading algorithm is the usual one: parse the header, walk the
// program headers, map and zero-fill each PT_LOAD segment, return the
// entry point. ELF parsing itself goes through the standard library's
// debug/elf rather than a hand-rolled reader — unlike cpiofs's
// from-scratch archive format, ELF already has a maintained stdlib
// reader.
package loader

import (
	"bytes"
	"debug/elf"

	"scarlet/pkg/abi"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/memory"
)

// Reserved ELF OSABI identification bytes for this kernel's two ABIs.
// Neither collides with a value the generic ELF spec or the Linux
// toolchain assigns: a loader-documented, implementation-defined OSABI
// value per ABI, detected by pkg/abi.Registry.Detect at exec time.
const (
	OSABINative byte = 0xf0
	OSABIXv6    byte = 0xf1
)

// HeaderMagicLen is how many leading bytes of a binary Load copies into
// the abi.Header.Magic field for detectors that key off more than OSABI.
const HeaderMagicLen = 16

// Result carries what a successful Load needs to hand back to exec: the
// binary's entry point in the now-populated address space.
type Result struct {
	Entry hostarch.Addr
}

// Load parses data as a 64-bit little-endian ELF executable, maps every
// PT_LOAD segment into as (zero-filling the memsz-filesz tail, the BSS
// convention), and returns the entry point plus an abi.Header for ABI
// detection. as must be freshly allocated; Load does not clear any
// existing mappings.
func Load(data []byte, as *memory.AddressSpace) (Result, abi.Header, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return Result{}, abi.Header{}, kernerr.New(kernerr.KindInvalidArgument, "not a valid ELF file: "+err.Error())
	}
	if f.Class != elf.ELFCLASS64 {
		return Result{}, abi.Header{}, kernerr.New(kernerr.KindNotSupported, "only 64-bit ELF is supported")
	}
	if f.Data != elf.ELFDATA2LSB {
		return Result{}, abi.Header{}, kernerr.New(kernerr.KindNotSupported, "only little-endian ELF is supported")
	}

	magicLen := HeaderMagicLen
	if len(data) < magicLen {
		magicLen = len(data)
	}
	hdr := abi.Header{
		OSABI: byte(f.OSABI),
		Magic: append([]byte(nil), data[:magicLen]...),
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(as, prog); err != nil {
			return Result{}, hdr, err
		}
	}

	return Result{Entry: hostarch.Addr(f.Entry)}, hdr, nil
}

// loadSegment maps one PT_LOAD program header into as and copies its
// file contents, zero-filling the BSS tail when Memsz exceeds Filesz.
// pkg/memory's AddressSpace stands in for real page-table plumbing.
func loadSegment(as *memory.AddressSpace, prog *elf.Prog) error {
	vaddr := hostarch.Addr(prog.Vaddr)
	memEnd, ok := vaddr.AddLength(prog.Memsz)
	if !ok {
		return kernerr.InvalidArgument
	}

	base := vaddr.PageRoundDown()
	mapEnd, ok := memEnd.PageRoundUp()
	if !ok {
		return kernerr.InvalidArgument
	}
	if _, err := as.MapAnonymous(base, uint64(mapEnd-base)); err != nil {
		return err
	}

	content := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(content, 0); err != nil {
		return kernerr.New(kernerr.KindInvalidArgument, "failed to read segment contents: "+err.Error())
	}
	if err := as.CopyOut(vaddr, content); err != nil {
		return err
	}
	if prog.Memsz > prog.Filesz {
		bssStart, ok := vaddr.AddLength(prog.Filesz)
		if !ok {
			return kernerr.InvalidArgument
		}
		zeros := make([]byte, prog.Memsz-prog.Filesz)
		if err := as.CopyOut(bssStart, zeros); err != nil {
			return err
		}
	}
	return nil
}
