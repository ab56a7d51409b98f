package native

import (
	"scarlet/pkg/arch"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/kernel"
)

// sysSbrk implements sbrk(delta): a0 is the signed byte delta.
func sysSbrk(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	brk, err := t.Sbrk(int64(tf.Arg(0)))
	if err != nil {
		return encodeError(err)
	}
	return uintptr(brk)
}

// sysMmap implements basic anonymous mmap: a0 the requested address (0
// lets the kernel choose), a1 the length.
func sysMmap(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	addr, err := t.Mmap(hostarch.Addr(tf.Arg(0)), tf.Arg(1))
	if err != nil {
		return encodeError(err)
	}
	return uintptr(addr)
}

// sysMunmap implements munmap(addr, length).
func sysMunmap(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	if err := t.Munmap(hostarch.Addr(tf.Arg(0)), tf.Arg(1)); err != nil {
		return encodeError(err)
	}
	return 0
}
