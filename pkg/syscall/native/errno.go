// Package native implements the native ABI module: the syscall table
// mapping numerical syscall IDs onto task, VFS, and ABI-zone operations.
package native

import (
	"golang.org/x/sys/unix"

	"scarlet/pkg/errors/kernerr"
)

// kindErrno maps a kernerr.Kind to the golang.org/x/sys/unix errno that
// best matches its POSIX meaning, resolving open question
// ("usize::MAX collides with valid addresses") by reserving a uniform
// negative-errno channel: every native-ABI syscall failure is encoded as
// -errno, never the all-ones bit pattern.
var kindErrno = map[kernerr.Kind]unix.Errno{
	kernerr.KindNotFound:         unix.ENOENT,
	kernerr.KindAlreadyExists:    unix.EEXIST,
	kernerr.KindNotDirectory:     unix.ENOTDIR,
	kernerr.KindIsDirectory:      unix.EISDIR,
	kernerr.KindNotRegularFile:   unix.EINVAL,
	kernerr.KindReadOnly:         unix.EROFS,
	kernerr.KindBusy:             unix.EBUSY,
	kernerr.KindPermissionDenied: unix.EACCES,
	kernerr.KindBrokenPipe:       unix.EPIPE,
	kernerr.KindWouldBlock:       unix.EAGAIN,
	kernerr.KindNoSpace:          unix.ENOSPC,
	kernerr.KindQuota:            unix.EDQUOT,
	kernerr.KindLoopDetected:     unix.ELOOP,
	kernerr.KindInvalidArgument:  unix.EINVAL,
	kernerr.KindUnknownAbi:       unix.ENOPROTOOPT,
	kernerr.KindNotSupported:     unix.ENOTSUP,
	kernerr.KindFault:            unix.EFAULT,
	kernerr.KindNotEmpty:         unix.ENOTEMPTY,
}

// encodeError translates err into the native ABI's return-register
// encoding: 0 or a positive result on success, -errno on failure. Errors
// that are not a *kernerr.Error (a bug elsewhere in the kernel, not a
// user-visible condition) fall back to EIO rather than panicking the
// dispatcher.
func encodeError(err error) uintptr {
	kerr, ok := err.(*kernerr.Error)
	if !ok {
		return negErrno(unix.EIO)
	}
	errno, ok := kindErrno[kerr.Kind()]
	if !ok {
		errno = unix.EIO
	}
	return negErrno(errno)
}

func negErrno(e unix.Errno) uintptr {
	return uintptr(int64(-int(e)))
}
