package vfs

import (
	"io"

	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/syncutil"
	"scarlet/pkg/waiter"
)

// DefaultPipeCapacity is the bound on a Pipe's internal byte queue.
// Unbounded from the caller's perspective (a full pipe simply suspends
// the writer rather than failing)
const DefaultPipeCapacity = 64 * 1024

// Pipe is unbounded-from-the-caller-perspective, bounded
// in-kernel byte queue with two endpoints. It has no node or filesystem —
// it is created directly by the pipe() syscall path, not by a
// FileSystemOperations driver — but its two ends satisfy FileImpl so they
// plug into vfs.File the same way any other stream does.
type Pipe struct {
	mu           syncutil.Mutex
	buf          []byte
	capacity     int
	readerClosed bool
	writerClosed bool
	q            waiter.Queue
}

// NewPipe creates a pipe and returns its read and write ends as FileImpl
// values, ready to be wrapped in a vfs.File by the caller (the pipe()
// syscall handler, which has no Node to hand to Namespace.Open).
func NewPipe() (read, write FileImpl) {
	p := &Pipe{capacity: DefaultPipeCapacity}
	return &pipeReadEnd{p: p}, &pipeWriteEnd{p: p}
}

type pipeReadEnd struct{ p *Pipe }

func (r *pipeReadEnd) Read(ctx context.Context, buf []byte) (int, error) {
	p := r.p
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			n := copy(buf, p.buf)
			p.buf = p.buf[n:]
			p.mu.Unlock()
			p.q.Notify(waiter.EventOut)
			return n, nil
		}
		if p.writerClosed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		p.mu.Unlock()

		if err := p.waitFor(ctx, waiter.EventIn); err != nil {
			return 0, err
		}
	}
}

func (r *pipeReadEnd) Write(ctx context.Context, buf []byte) (int, error) {
	return 0, kernerr.PermissionDenied
}

func (r *pipeReadEnd) Seek(whence Whence, offset int64) (int64, error) {
	return 0, kernerr.NotSupported
}

func (r *pipeReadEnd) Close() error {
	p := r.p
	p.mu.Lock()
	p.readerClosed = true
	p.mu.Unlock()
	p.q.Notify(waiter.EventOut | waiter.EventHUp)
	return nil
}

type pipeWriteEnd struct{ p *Pipe }

func (w *pipeWriteEnd) Read(ctx context.Context, buf []byte) (int, error) {
	return 0, kernerr.PermissionDenied
}

func (w *pipeWriteEnd) Write(ctx context.Context, buf []byte) (int, error) {
	p := w.p
	total := 0
	for total < len(buf) {
		p.mu.Lock()
		if p.readerClosed {
			p.mu.Unlock()
			return total, kernerr.BrokenPipe
		}
		if room := p.capacity - len(p.buf); room > 0 {
			n := min(room, len(buf)-total)
			p.buf = append(p.buf, buf[total:total+n]...)
			total += n
			p.mu.Unlock()
			p.q.Notify(waiter.EventIn)
			continue
		}
		p.mu.Unlock()

		if err := p.waitFor(ctx, waiter.EventOut); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (w *pipeWriteEnd) Seek(whence Whence, offset int64) (int64, error) {
	return 0, kernerr.NotSupported
}

func (w *pipeWriteEnd) Close() error {
	p := w.p
	p.mu.Lock()
	p.writerClosed = true
	p.mu.Unlock()
	p.q.Notify(waiter.EventIn | waiter.EventHUp)
	return nil
}

// waitFor blocks the calling goroutine — this simulation's stand-in for
// suspending the calling task — until
// mask fires on p's wait queue or ctx is cancelled.
func (p *Pipe) waitFor(ctx context.Context, mask waiter.EventMask) error {
	e, ch := waiter.NewChannelEntry(mask)
	p.q.EventRegister(&e)
	defer p.q.EventUnregister(&e)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
