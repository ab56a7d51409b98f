package xv6

import (
	"io"

	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/kernel"
	"scarlet/pkg/vfs"
)

// xv6's own open(2) mode bits, distinct from the native ABI's
// golang.org/x/sys/unix-derived bits, since this ABI reproduces xv6's
// actual numbering rather than a generic POSIX one.
const (
	modeWronly   = 0x000001
	modeRdwr     = 0x000002
	modeCreate   = 0x000200
	modeTruncate = 0x000400
)

var readOnlyFlags = vfs.OpenFlags{Mode: vfs.ReadOnly}

func openFlagsFromMode(mode uint64) vfs.OpenFlags {
	access := vfs.ReadOnly
	switch {
	case mode&modeRdwr != 0:
		access = vfs.ReadWrite
	case mode&modeWronly != 0:
		access = vfs.WriteOnly
	}
	return vfs.OpenFlags{
		Mode:     access,
		Create:   mode&modeCreate != 0,
		Truncate: mode&modeTruncate != 0,
	}
}

// sysOpen implements xv6's open(path_ptr, mode): a0 path, a1 mode bits.
func sysOpen(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return failSentinel
	}
	fd, err := t.Open(path, openFlagsFromMode(tf.Arg(1)), vfs.PermRead|vfs.PermWrite)
	if err != nil {
		return failSentinel
	}
	return uintptr(fd)
}

// sysClose implements xv6's close(fd).
func sysClose(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	if err := t.Close(int(tf.Arg(0))); err != nil {
		return failSentinel
	}
	return 0
}

// sysRead implements xv6's read(fd, buf_ptr, count), treating
// end-of-stream as a successful zero-byte read: regular files report it
// as (0, nil) (see pkg/fsimpl/tmpfs's file.Read) and pipe read ends as
// io.EOF.
func sysRead(ctx kctx.Context, t *kernel.Task, tf *arch.TrapFrame) uintptr {
	buf := make([]byte, tf.Arg(2))
	n, err := t.Read(ctx, int(tf.Arg(0)), buf)
	if err != nil && err != io.EOF {
		return failSentinel
	}
	if err := t.AddressSpace().CopyOut(addrArg(tf, 1), buf[:n]); err != nil {
		return failSentinel
	}
	return uintptr(n)
}

// sysWrite implements xv6's write(fd, buf_ptr, count).
func sysWrite(ctx kctx.Context, t *kernel.Task, tf *arch.TrapFrame) uintptr {
	buf := make([]byte, tf.Arg(2))
	if err := t.AddressSpace().CopyIn(addrArg(tf, 1), buf); err != nil {
		return failSentinel
	}
	n, err := t.Write(ctx, int(tf.Arg(0)), buf)
	if err != nil {
		return failSentinel
	}
	return uintptr(n)
}

// sysDup implements xv6's dup(fd).
func sysDup(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	newFD, err := t.Dup(int(tf.Arg(0)))
	if err != nil {
		return failSentinel
	}
	return uintptr(newFD)
}

// sysPipe implements xv6's pipe(fds_ptr): a0 points to two consecutive
// little-endian uint32 slots that receive (readFD, writeFD) — the same
// layout the native ABI uses, since nothing about xv6's pipe(2) wire
// format is specified beyond "two descriptors out".
func sysPipe(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	readFD, writeFD, err := t.Pipe()
	if err != nil {
		return failSentinel
	}
	var raw [8]byte
	leUint32(raw[0:4], uint32(readFD))
	leUint32(raw[4:8], uint32(writeFD))
	if err := t.AddressSpace().CopyOut(addrArg(tf, 0), raw[:]); err != nil {
		return failSentinel
	}
	return 0
}

// sysChdir implements xv6's chdir(path_ptr), failing if the target
// exists but is not a directory; pkg/kernel.Task.Chdir enforces that
// check.
func sysChdir(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return failSentinel
	}
	if err := t.Chdir(path); err != nil {
		return failSentinel
	}
	return 0
}

func addrArg(tf *arch.TrapFrame, i int) hostarch.Addr { return hostarch.Addr(tf.Arg(i)) }
