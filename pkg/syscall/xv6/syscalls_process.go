package xv6

import (
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/kernel"
)

// sysFork implements xv6's fork: child pid to the parent, failSentinel
// on error. xv6's own fork sets the child's a0 to 0 itself before
// returning into it; here the dispatcher runs the child as a separate
// *kernel.Task with its own trap frame, so there is nothing analogous
// to set before the child is next scheduled.
func (a *ABI) sysFork(t *kernel.Task) uintptr {
	child, err := a.k.Fork(t)
	if err != nil {
		return failSentinel
	}
	return uintptr(child.PID())
}

// sysExit implements xv6's exit(status): a0 the exit code.
func (a *ABI) sysExit(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	if err := a.k.Exit(t, int(int32(tf.Arg(0)))); err != nil {
		return failSentinel
	}
	return 0
}

// sysWait implements xv6's wait(status_ptr): a0 an optional pointer to
// receive the exit status (0 to skip), waits for any child.
func (a *ABI) sysWait(ctx kctx.Context, t *kernel.Task, tf *arch.TrapFrame) uintptr {
	pid, status, err := a.k.Wait(ctx, t, 0)
	if err != nil {
		return failSentinel
	}
	if statusPtr := tf.Arg(0); statusPtr != 0 {
		if err := copyOutInt32(t, statusPtr, int32(status)); err != nil {
			return failSentinel
		}
	}
	return uintptr(pid)
}

// sysExec implements xv6's exec(path, argv): a0 the path pointer, a1 the
// NUL-pointer-terminated argv vector. xv6 has no envp argument, so this
// always execs with an empty environment.
func (a *ABI) sysExec(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return failSentinel
	}
	argv, err := copyInArgv(t, tf.Arg(1))
	if err != nil {
		return failSentinel
	}

	data, err := readWholeFile(t, path)
	if err != nil {
		return failSentinel
	}
	if err := a.k.Exec(t, data, argv, nil); err != nil {
		return failSentinel
	}
	return 0
}

func readWholeFile(t *kernel.Task, path string) ([]byte, error) {
	fd, err := t.Open(path, readOnlyFlags, 0)
	if err != nil {
		return nil, err
	}
	defer t.Close(fd)

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := t.Read(kctx.Background(), fd, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}
