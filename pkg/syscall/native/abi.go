package native

import (
	"golang.org/x/sys/unix"

	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/kernel"
	"scarlet/pkg/loader"
)

// Name is the textual ABI tag this module registers under.
const Name = "scarlet"

// ABI is the native ABI instance: syscall table bound to
// the kernel that owns the task making the call. It carries no per-task
// state of its own — every syscall reaches into the *kernel.Task recovered
// from the call's context — so Clone need not deep-copy anything beyond
// the shared kernel reference.
type ABI struct {
	k *kernel.Kernel
}

// New returns a native ABI instance bound to k, for registration with k's
// ABI registry:
//
//	reg.Register(native.Name, func() abi.Instance { return native.New(k) }, native.Detect)
func New(k *kernel.Kernel) *ABI {
	return &ABI{k: k}
}

// Name implements abi.Instance.
func (a *ABI) Name() string { return Name }

// Clone implements abi.Instance.
func (a *ABI) Clone() abi.Instance { return &ABI{k: a.k} }

// Detect recognizes a binary built for the native ABI by its reserved ELF
// OSABI byte (pkg/loader.OSABINative).
func Detect(hdr abi.Header) bool { return hdr.OSABI == loader.OSABINative }

// HandleSyscall implements abi.Instance: it reads the syscall number from
// a7, dispatches to the matching handler, and returns the native ABI's
// encoded result (0 or a positive value on success, -errno on failure;
// generic-failure-sentinel open question resolved uniformly
// in errno.go). The returned error is non-nil only when ctx carries no
// task — a dispatcher-level invariant violation, not a user syscall
// failure.
func (a *ABI) HandleSyscall(ctx kctx.Context, tf *arch.TrapFrame) (uintptr, error) {
	t, err := taskFromContext(ctx)
	if err != nil {
		return 0, err
	}

	switch tf.SyscallNumber() {
	case SysFork:
		return a.sysFork(t), nil
	case SysExec:
		return a.sysExec(t, tf), nil
	case SysWait:
		return a.sysWait(ctx, t, tf), nil
	case SysExit:
		return a.sysExit(t, tf), nil
	case SysGetpid:
		return uintptr(t.PID()), nil
	case SysGetppid:
		return uintptr(t.PPID()), nil
	case SysSbrk:
		return sysSbrk(t, tf), nil
	case SysMmap:
		return sysMmap(t, tf), nil
	case SysMunmap:
		return sysMunmap(t, tf), nil
	case SysOpen:
		return sysOpen(t, tf), nil
	case SysClose:
		return sysClose(t, tf), nil
	case SysRead:
		return sysRead(ctx, t, tf), nil
	case SysWrite:
		return sysWrite(ctx, t, tf), nil
	case SysLseek:
		return sysLseek(t, tf), nil
	case SysDup:
		return sysDup(t, tf), nil
	case SysPipe:
		return sysPipe(t, tf), nil
	case SysMount:
		return sysMount(t, tf), nil
	case SysUmount:
		return sysUmount(t, tf), nil
	case SysChdir:
		return sysChdir(t, tf), nil
	case SysGetcwd:
		return sysGetcwd(t, tf), nil
	case SysSetenv:
		return sysSetenv(t, tf), nil
	case SysGetenv:
		return sysGetenv(t, tf), nil
	case SysRegisterAbiZone:
		return sysRegisterAbiZone(t, tf), nil
	case SysUnregisterAbiZone:
		return sysUnregisterAbiZone(t, tf), nil
	default:
		return negErrno(unix.ENOSYS), nil
	}
}

func taskFromContext(ctx kctx.Context) (*kernel.Task, error) {
	ct, ok := kctx.TaskFromContext(ctx)
	if !ok {
		return nil, kernerr.New(kernerr.KindInvalidArgument, "native: no task in context")
	}
	t, ok := ct.(*kernel.Task)
	if !ok {
		return nil, kernerr.New(kernerr.KindInvalidArgument, "native: context task is not a *kernel.Task")
	}
	return t, nil
}
