package xv6

// Syscall numbers for the xv6 ABI: the small stable subset (fork, exit,
// wait, pipe, read, exec, chdir, dup, open, write, close) kept at xv6's
// historical numbering.
const (
	SysFork  = 1
	SysExit  = 2
	SysWait  = 3
	SysPipe  = 4
	SysRead  = 5
	SysExec  = 7
	SysChdir = 9
	SysDup   = 10
	SysOpen  = 15
	SysWrite = 16
	SysClose = 21
)

const maxPathLen = 128

const maxArgCount = 64

// failSentinel is xv6's generic failure return value: all bits set,
// xv6's own convention and distinct from the native ABI's negative-errno
// encoding.
const failSentinel = ^uintptr(0)
