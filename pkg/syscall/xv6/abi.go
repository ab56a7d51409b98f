// Package xv6 implements a second, independently-registered ABI module
// compatible with the classic teaching OS xv6, exercising the kernel's
// multi-ABI substrate end-to-end alongside the native ABI.
package xv6

import (
	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/kernel"
	"scarlet/pkg/loader"
)

// Name is the textual ABI tag this module registers under.
const Name = "xv6-riscv64"

// ABI is the xv6 ABI instance, bound to the kernel owning the calling
// task the same way the native ABI is (pkg/syscall/native's abi.go):
// New closes over *kernel.Kernel at registration time, so Clone only
// copies the shared pointer.
type ABI struct {
	k *kernel.Kernel
}

// New returns an xv6 ABI instance bound to k.
func New(k *kernel.Kernel) *ABI {
	return &ABI{k: k}
}

// Name implements abi.Instance.
func (a *ABI) Name() string { return Name }

// Clone implements abi.Instance.
func (a *ABI) Clone() abi.Instance { return &ABI{k: a.k} }

// Detect recognizes an xv6 binary by its reserved ELF OSABI byte
// (pkg/loader.OSABIXv6).
func Detect(hdr abi.Header) bool { return hdr.OSABI == loader.OSABIXv6 }

// HandleSyscall implements abi.Instance. Arguments travel in a0..a2 and
// the result in a0, xv6's historical convention: 0 or a positive value
// on success, the all-ones failSentinel on failure — not a negative
// errno, unlike the native ABI.
func (a *ABI) HandleSyscall(ctx kctx.Context, tf *arch.TrapFrame) (uintptr, error) {
	t, err := taskFromContext(ctx)
	if err != nil {
		return 0, err
	}

	switch tf.SyscallNumber() {
	case SysFork:
		return a.sysFork(t), nil
	case SysExit:
		return a.sysExit(t, tf), nil
	case SysWait:
		return a.sysWait(ctx, t, tf), nil
	case SysPipe:
		return sysPipe(t, tf), nil
	case SysRead:
		return sysRead(ctx, t, tf), nil
	case SysExec:
		return a.sysExec(t, tf), nil
	case SysChdir:
		return sysChdir(t, tf), nil
	case SysDup:
		return sysDup(t, tf), nil
	case SysOpen:
		return sysOpen(t, tf), nil
	case SysWrite:
		return sysWrite(ctx, t, tf), nil
	case SysClose:
		return sysClose(t, tf), nil
	default:
		return failSentinel, nil
	}
}

func taskFromContext(ctx kctx.Context) (*kernel.Task, error) {
	ct, ok := kctx.TaskFromContext(ctx)
	if !ok {
		return nil, kernerr.New(kernerr.KindInvalidArgument, "xv6: no task in context")
	}
	t, ok := ct.(*kernel.Task)
	if !ok {
		return nil, kernerr.New(kernerr.KindInvalidArgument, "xv6: context task is not a *kernel.Task")
	}
	return t, nil
}
