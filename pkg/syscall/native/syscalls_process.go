package native

import (
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/kernel"
)

// sysFork implements fork: the child's pid is returned to the parent.
// This simulation has no scheduler to start the child running on its
// own; the dispatcher (or a test driving it directly) is responsible
// for issuing further syscalls against the returned task.
func (a *ABI) sysFork(t *kernel.Task) uintptr {
	child, err := a.k.Fork(t)
	if err != nil {
		return encodeError(err)
	}
	return uintptr(child.PID())
}

// sysExec implements exec(path, argv, envp): a0 is the path pointer, a1
// the argv vector pointer, a2 the envp vector pointer.
func (a *ABI) sysExec(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	path, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	argv, err := copyInVector(t, tf.Arg(1))
	if err != nil {
		return encodeError(err)
	}
	envp, err := copyInVector(t, tf.Arg(2))
	if err != nil {
		return encodeError(err)
	}

	data, err := readWholeFile(t, path)
	if err != nil {
		return encodeError(err)
	}
	if err := a.k.Exec(t, data, argv, envp); err != nil {
		return encodeError(err)
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

// sysWait implements wait(pid, status_ptr): a0 is the pid to wait for
// (<=0 for "any child"), a1 an optional pointer to receive the exit
// status (0 to skip).
func (a *ABI) sysWait(ctx kctx.Context, t *kernel.Task, tf *arch.TrapFrame) uintptr {
	pid, status, err := a.k.Wait(ctx, t, int64(tf.Arg(0)))
	if err != nil {
		return encodeError(err)
	}
	if statusPtr := tf.Arg(1); statusPtr != 0 {
		if err := copyOutInt32(t, statusPtr, int32(status)); err != nil {
			return encodeError(err)
		}
	}
	return uintptr(pid)
}

// sysExit implements exit(status): it marks t a zombie and wakes its
// parent. It always "succeeds" from the dispatcher's perspective; there
// is no return to the exited task.
func (a *ABI) sysExit(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	if err := a.k.Exit(t, int(int64(tf.Arg(0)))); err != nil {
		return encodeError(err)
	}
	return 0
}
