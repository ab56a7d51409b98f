package native

import (
	"scarlet/pkg/arch"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/fsimpl/tmpfs"
	"scarlet/pkg/kernel"
	"scarlet/pkg/vfs"
)

// defaultTmpfsLimit bounds a syscall-mounted tmpfs instance; a real mount
// syscall would take this (and other driver-specific options) through a
// data blob the way Linux's mount(2) does, which this syscall leaves out
// since no FS-driver-option marshaling format is defined. "tmpfs" is the
// only fstype nameable from this syscall because it is the only driver
// in pkg/fsimpl that needs no construction argument beyond a memory
// limit this syscall can default.
const defaultTmpfsLimit = 16 << 20

const maxFstypeLen = 32

// sysMount implements mount(path_ptr, fstype_ptr, flags): a0 the mount
// point path, a1 the filesystem type name, a2 flag bits (bit 0:
// read-only).
func sysMount(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	fstype, err := t.AddressSpace().CopyInString(addrArg(tf, 1), maxFstypeLen)
	if err != nil {
		return encodeError(err)
	}

	var fs vfs.FileSystemOperations
	switch fstype {
	case "tmpfs":
		fs = tmpfs.New(defaultTmpfsLimit)
	default:
		return encodeError(kernerr.UnknownAbi)
	}

	flags := vfs.MountFlags{ReadOnly: tf.Arg(2)&1 != 0}
	if err := t.Namespace().Mount(path, fs, flags); err != nil {
		return encodeError(err)
	}
	return 0
}

// sysUmount implements umount(path_ptr, force): a0 the mount path, a1
// nonzero to force an unmount over open references.
func sysUmount(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	if err := t.Namespace().Unmount(path, tf.Arg(1) != 0); err != nil {
		return encodeError(err)
	}
	return 0
}

// sysChdir implements chdir(path_ptr).
func sysChdir(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	if err := t.Chdir(path); err != nil {
		return encodeError(err)
	}
	return 0
}

// sysGetcwd implements getcwd(buf_ptr, cap): a0 destination buffer, a1
// capacity. Returns the path length (excluding NUL) on success.
func sysGetcwd(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	cwd := t.Getcwd()
	capacity := int(tf.Arg(1))
	if len(cwd)+1 > capacity {
		return encodeError(kernerr.InvalidArgument)
	}
	if err := t.AddressSpace().CopyOut(addrArg(tf, 0), append([]byte(cwd), 0)); err != nil {
		return encodeError(err)
	}
	return uintptr(len(cwd))
}
