package kernel

import (
	"testing"

	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/vfs"
)

// countingImpl is a minimal vfs.FileImpl that records how many times it
// was closed, so tests can check that a shared open-file is only ever
// torn down once its last descriptor reference is gone.
type countingImpl struct{ closes int }

func (c *countingImpl) Read(ctx kctx.Context, buf []byte) (int, error)  { return 0, nil }
func (c *countingImpl) Write(ctx kctx.Context, buf []byte) (int, error) { return len(buf), nil }
func (c *countingImpl) Seek(whence vfs.Whence, offset int64) (int64, error) {
	return 0, kernerr.NotSupported
}
func (c *countingImpl) Close() error { c.closes++; return nil }

func TestInstallAndGet(t *testing.T) {
	tbl := NewFDTable()
	impl := &countingImpl{}
	f := vfs.NewPipeFile(impl, vfs.ReadWrite)
	fd := tbl.Install(f, FDFlags{})

	got, _, err := tbl.Get(fd)
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Fatal("Get returned a different File than was installed")
	}
}

func TestDupSharesRefcountUntilLastClose(t *testing.T) {
	tbl := NewFDTable()
	impl := &countingImpl{}
	f := vfs.NewPipeFile(impl, vfs.ReadWrite)
	fd := tbl.Install(f, FDFlags{})

	dupFD, err := tbl.Dup(fd)
	if err != nil {
		t.Fatal(err)
	}

	if err := tbl.Close(fd); err != nil {
		t.Fatal(err)
	}
	if impl.closes != 0 {
		t.Fatalf("closed underlying file while a dup'd descriptor still references it: closes=%d", impl.closes)
	}

	if err := tbl.Close(dupFD); err != nil {
		t.Fatal(err)
	}
	if impl.closes != 1 {
		t.Fatalf("expected exactly one underlying close, got %d", impl.closes)
	}
}

func TestForkSharesOpenFiles(t *testing.T) {
	tbl := NewFDTable()
	impl := &countingImpl{}
	f := vfs.NewPipeFile(impl, vfs.ReadWrite)
	fd := tbl.Install(f, FDFlags{})

	child := tbl.Fork()

	if err := tbl.Close(fd); err != nil {
		t.Fatal(err)
	}
	if impl.closes != 0 {
		t.Fatal("closing the parent's descriptor must not affect the forked child's reference")
	}
	if err := child.Close(fd); err != nil {
		t.Fatal(err)
	}
	if impl.closes != 1 {
		t.Fatalf("expected the underlying file closed once both references dropped, got %d closes", impl.closes)
	}
}

func TestCloseOnExecDropsFlaggedDescriptors(t *testing.T) {
	tbl := NewFDTable()
	kept := &countingImpl{}
	dropped := &countingImpl{}
	keptFD := tbl.Install(vfs.NewPipeFile(kept, vfs.ReadWrite), FDFlags{})
	droppedFD := tbl.Install(vfs.NewPipeFile(dropped, vfs.ReadWrite), FDFlags{CloseOnExec: true})

	if err := tbl.CloseOnExec(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := tbl.Get(keptFD); err != nil {
		t.Fatal("close-on-exec must not touch unflagged descriptors")
	}
	if _, _, err := tbl.Get(droppedFD); !kernerr.Is(err, kernerr.KindNotFound) {
		t.Fatalf("expected flagged descriptor to be gone, got %v", err)
	}
	if dropped.closes != 1 {
		t.Fatalf("expected dropped file closed, got %d closes", dropped.closes)
	}
}

func TestDupToRedirectsDescriptor(t *testing.T) {
	tbl := NewFDTable()
	original := &countingImpl{}
	replaced := &countingImpl{}
	srcFD := tbl.Install(vfs.NewPipeFile(original, vfs.ReadWrite), FDFlags{})
	dstFD := tbl.Install(vfs.NewPipeFile(replaced, vfs.ReadWrite), FDFlags{})

	if err := tbl.DupTo(srcFD, dstFD); err != nil {
		t.Fatal(err)
	}
	if replaced.closes != 1 {
		t.Fatalf("expected the descriptor previously at dstFD to be closed, got %d closes", replaced.closes)
	}
	got, _, err := tbl.Get(dstFD)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Close(srcFD); err != nil {
		t.Fatal(err)
	}
	if original.closes != 0 {
		t.Fatal("closing srcFD must not close the file while dstFD still references it")
	}
	if err := tbl.Close(dstFD); err != nil {
		t.Fatal(err)
	}
	if original.closes != 1 {
		t.Fatalf("expected final close once both descriptors released, got %d", original.closes)
	}
	_ = got
}

func TestCloseUnknownFD(t *testing.T) {
	tbl := NewFDTable()
	if err := tbl.Close(7); !kernerr.Is(err, kernerr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
