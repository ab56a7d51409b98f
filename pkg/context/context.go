// Package context carries the per-goroutine state that VFS and kernel
// methods need without threading an extra parameter through every call:
// principally, "which Task is making this call". It's built directly on
// the standard library's context.Context rather than a bespoke
// interface, since this kernel's suspension points are modeled with
// channels (see pkg/waiter) rather than a custom interruptible-sleep
// primitive.
package context

import "context"

// Context is an alias for the standard library's context.Context, kept
// as a distinct name so call sites that accept this kernel's flavor of
// context read clearly.
type Context = context.Context

type taskKey struct{}

// Task is the minimal capability a kernel.Task exposes to code (like VFS)
// that must not import package kernel directly, to avoid an import cycle:
// kernel imports vfs, so vfs cannot import kernel.
type Task interface {
	// TaskID returns the task's unique id, for diagnostics and for
	// attributing pipe/mount references to a task.
	TaskID() int64
}

// WithTask returns a copy of ctx carrying t.
func WithTask(ctx Context, t Task) Context {
	return context.WithValue(ctx, taskKey{}, t)
}

// TaskFromContext returns the Task associated with ctx, if any.
func TaskFromContext(ctx Context) (Task, bool) {
	t, ok := ctx.Value(taskKey{}).(Task)
	return t, ok
}

// Background returns a non-nil, empty Context, for use by callers (tests,
// boot-time setup) that have no enclosing Task.
func Background() Context {
	return context.Background()
}
