package native

import (
	"golang.org/x/sys/unix"

	kctx "scarlet/pkg/context"
	"scarlet/pkg/kernel"
	"scarlet/pkg/arch"
	"scarlet/pkg/vfs"
)

// Native-ABI open(2) flag bits (a1 of SysOpen), borrowed from
// golang.org/x/sys/unix's generic O_* values for familiarity — this ABI
// does not need to match any real platform's bit layout, only be stable
// within one kernel build.
const (
	flagWronly = unix.O_WRONLY
	flagRdwr   = unix.O_RDWR
	flagCreat  = unix.O_CREAT
	flagExcl   = unix.O_EXCL
	flagTrunc  = unix.O_TRUNC
	flagAppend = unix.O_APPEND
	flagCloexec = unix.O_CLOEXEC
)

var readOnlyFlags = vfs.OpenFlags{Mode: vfs.ReadOnly}

func openFlagsFromBits(bits uint64) vfs.OpenFlags {
	mode := vfs.ReadOnly
	switch {
	case bits&flagRdwr != 0:
		mode = vfs.ReadWrite
	case bits&flagWronly != 0:
		mode = vfs.WriteOnly
	}
	return vfs.OpenFlags{
		Mode:        mode,
		Create:      bits&flagCreat != 0,
		Exclusive:   bits&flagExcl != 0,
		Truncate:    bits&flagTrunc != 0,
		Append:      bits&flagAppend != 0,
		CloseOnExec: bits&flagCloexec != 0,
	}
}

func permFromBits(bits uint64) vfs.Permissions { return vfs.Permissions(bits) }

// sysOpen implements open(path_ptr, flags, perm): a0 path, a1 flag bits,
// a2 permission bits.
func sysOpen(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	fd, err := t.Open(path, openFlagsFromBits(tf.Arg(1)), permFromBits(tf.Arg(2)))
	if err != nil {
		return encodeError(err)
	}
	return uintptr(fd)
}

// sysClose implements close(fd): a0 the descriptor.
func sysClose(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	if err := t.Close(int(tf.Arg(0))); err != nil {
		return encodeError(err)
	}
	return 0
}

// sysRead implements read(fd, buf_ptr, count): a0 fd, a1 buffer pointer,
// a2 byte count.
func sysRead(ctx kctx.Context, t *kernel.Task, tf *arch.TrapFrame) uintptr {
	buf := make([]byte, tf.Arg(2))
	n, err := t.Read(ctx, int(tf.Arg(0)), buf)
	if err != nil {
		return encodeError(err)
	}
	if err := t.AddressSpace().CopyOut(addrArg(tf, 1), buf[:n]); err != nil {
		return encodeError(err)
	}
	return uintptr(n)
}

// sysWrite implements write(fd, buf_ptr, count).
func sysWrite(ctx kctx.Context, t *kernel.Task, tf *arch.TrapFrame) uintptr {
	buf := make([]byte, tf.Arg(2))
	if err := t.AddressSpace().CopyIn(addrArg(tf, 1), buf); err != nil {
		return encodeError(err)
	}
	n, err := t.Write(ctx, int(tf.Arg(0)), buf)
	if err != nil {
		return encodeError(err)
	}
	return uintptr(n)
}

// sysLseek implements lseek(fd, offset, whence).
func sysLseek(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	pos, err := t.Seek(int(tf.Arg(0)), vfs.Whence(tf.Arg(2)), int64(tf.Arg(1)))
	if err != nil {
		return encodeError(err)
	}
	return uintptr(pos)
}

// sysDup implements dup(fd).
func sysDup(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	newFD, err := t.Dup(int(tf.Arg(0)))
	if err != nil {
		return encodeError(err)
	}
	return uintptr(newFD)
}

// sysPipe implements pipe(fds_ptr): a0 points to two consecutive
// little-endian uint32 slots that receive (readFD, writeFD).
func sysPipe(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	readFD, writeFD, err := t.Pipe()
	if err != nil {
		return encodeError(err)
	}
	var raw [8]byte
	leUint32(raw[0:4], uint32(readFD))
	leUint32(raw[4:8], uint32(writeFD))
	if err := t.AddressSpace().CopyOut(addrArg(tf, 0), raw[:]); err != nil {
		return encodeError(err)
	}
	return 0
}
