// Package dispatch implements the syscall dispatcher: the piece that
// sits between a trap into the kernel and an ABI module's
// handle_syscall, resolving which ABI a given program counter belongs
// to and writing the result back into the trap frame.
package dispatch

import (
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/kernel"
	"scarlet/pkg/log"
)

// Dispatch implements the trap-to-syscall data flow: trap → dispatcher
// reads PC → task.resolve_abi(PC) → ABI module's handle_syscall(trapframe)
// → module translates syscall ID to kernel calls → result written back
// into the trap frame. It is the function a trap handler (itself out of
// scope here) calls after saving t's registers into its trap frame.
//
// The ABI resolved by t.ResolveABI(tf.Sepc) owns the call end to end;
// Dispatch's only other job is building the context that carries t so
// the ABI's handler can recover it (pkg/syscall/native and
// pkg/syscall/xv6 both do this via kctx.TaskFromContext) and committing
// the numeric result to tf via SetReturn, which also advances Sepc past
// the ecall instruction.
func Dispatch(t *kernel.Task) {
	tf := t.TrapFrame()
	inst := t.ResolveABI(tf.Sepc)
	if inst == nil {
		log.Fatalf("dispatch: task %d has no resolvable ABI at pc %#x", t.PID(), tf.Sepc)
	}

	ctx := kctx.WithTask(kctx.Background(), t)
	ret, err := inst.HandleSyscall(ctx, tf)
	if err != nil {
		// handle_syscall only returns an error for a dispatcher-level
		// invariant violation (e.g. a missing task in ctx, which
		// cannot happen here since Dispatch always supplies one), not
		// for an ordinary syscall failure — those are encoded in ret
		// per the owning ABI's own convention.
		log.Fatalf("dispatch: task %d: %v", t.PID(), err)
	}
	tf.SetReturn(uint64(ret))
}

// DispatchOnce is Dispatch with the missing-ABI and handler-error cases
// returned as an error instead of a log.Fatalf, for callers (tests,
// a future recoverable trap path) that want to drive one syscall without
// crashing the process on a condition that should never occur in a
// correctly wired kernel.
func DispatchOnce(t *kernel.Task) error {
	tf := t.TrapFrame()
	inst := t.ResolveABI(tf.Sepc)
	if inst == nil {
		return kernerr.New(kernerr.KindInvalidArgument, "dispatch: no resolvable ABI")
	}

	ctx := kctx.WithTask(kctx.Background(), t)
	ret, err := inst.HandleSyscall(ctx, tf)
	if err != nil {
		return err
	}
	tf.SetReturn(uint64(ret))
	return nil
}
