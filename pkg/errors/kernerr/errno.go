package kernerr

// Errno returns a small negative Linux-style errno for err, or 0 if err is
// nil. pkg/syscall/native encodes its results through its own table in
// that package's errno.go, which differs from this one for KindUnknownAbi
// and for errors that are not a *Error.
//
// Using usize::MAX as a generic failure sentinel collides with valid
// large addresses returned by memory syscalls (mmap, sbrk), so this ABI
// instead uses a uniform negative-errno convention for every syscall,
// including the memory ones — a successful mmap never returns a
// negative address because the simulated address space is capped well
// under 1<<63 (see pkg/memory).
func Errno(err error) int64 {
	if err == nil {
		return 0
	}
	e, ok := err.(*Error)
	if !ok {
		return -int64(KindInvalidArgument) - 1
	}
	return errnoTable[e.kind]
}

var errnoTable = map[Kind]int64{
	KindNotFound:         -2,
	KindAlreadyExists:    -17,
	KindNotDirectory:     -20,
	KindIsDirectory:      -21,
	KindNotRegularFile:   -22,
	KindReadOnly:         -30,
	KindBusy:             -16,
	KindPermissionDenied: -13,
	KindBrokenPipe:       -32,
	KindWouldBlock:       -11,
	KindNoSpace:          -28,
	KindQuota:            -122,
	KindLoopDetected:     -40,
	KindInvalidArgument:  -22,
	KindUnknownAbi:       -93,
	KindNotSupported:     -95,
	KindFault:            -14,
	KindNotEmpty:         -39,
}
