package kernel

import (
	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/waiter"
)

// Wait blocks until a zombie child of
// parent matching pid exists (pid<=0 matches any child, mirroring the
// "any child" convention of waitpid's -1/0), reaps it, and returns its
// pid and exit status. It fails immediately with kernerr.NotFound if
// parent has no such child to wait for, live or dead.
func (k *Kernel) Wait(ctx context.Context, parent *Task, pid int64) (int64, int, error) {
	for {
		reaped, status, ok, err := tryReap(k, parent, pid)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return reaped, status, nil
		}

		e, ch := waiter.NewChannelEntry(waiter.EventIn)
		parent.childExitQ.EventRegister(&e)
		select {
		case <-ch:
		case <-ctx.Done():
			parent.childExitQ.EventUnregister(&e)
			return 0, 0, ctx.Err()
		}
		parent.childExitQ.EventUnregister(&e)
	}
}

// tryReap makes one non-blocking attempt to find and reap a zombie child
// of parent matching pid. ok is false (with no error) when a matching
// live child exists but none are zombies yet, meaning the caller should
// wait and retry.
func tryReap(k *Kernel, parent *Task, pid int64) (reapedPID int64, status int, ok bool, err error) {
	parent.mu.Lock()
	defer parent.mu.Unlock()

	if pid > 0 {
		child, exists := parent.children[pid]
		if !exists {
			return 0, 0, false, kernerr.NotFound
		}
		child.mu.Lock()
		zombie := child.state == Zombie
		status = child.exitStatus
		child.mu.Unlock()
		if !zombie {
			return 0, 0, false, nil
		}
		delete(parent.children, pid)
		k.removeTask(pid)
		return pid, status, true, nil
	}

	if len(parent.children) == 0 {
		return 0, 0, false, kernerr.NotFound
	}
	for id, child := range parent.children {
		child.mu.Lock()
		zombie := child.state == Zombie
		s := child.exitStatus
		child.mu.Unlock()
		if zombie {
			delete(parent.children, id)
			k.removeTask(id)
			return id, s, true, nil
		}
	}
	return 0, 0, false, nil
}
