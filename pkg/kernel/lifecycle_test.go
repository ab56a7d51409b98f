package kernel

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/fsimpl/tmpfs"
	"scarlet/pkg/loader"
	"scarlet/pkg/vfs"
)

// fakeABI is a bare-bones abi.Instance for exercising the task model
// without a real syscall table; pkg/syscall/native and pkg/syscall/xv6
// supply the real ones.
type fakeABI struct{ name string }

func (f *fakeABI) Name() string { return f.name }
func (f *fakeABI) HandleSyscall(ctx kctx.Context, tf *arch.TrapFrame) (uintptr, error) {
	return 0, nil
}
func (f *fakeABI) Clone() abi.Instance { return &fakeABI{name: f.name} }

func newTestRegistry() *abi.Registry {
	reg := abi.NewRegistry()
	reg.Register("scarlet", func() abi.Instance { return &fakeABI{name: "scarlet"} }, func(hdr abi.Header) bool {
		return hdr.OSABI == loader.OSABINative
	})
	reg.Register("xv6-riscv64", func() abi.Instance { return &fakeABI{name: "xv6-riscv64"} }, func(hdr abi.Header) bool {
		return hdr.OSABI == loader.OSABIXv6
	})
	return reg
}

func newTestNamespace() *vfs.Namespace {
	return vfs.NewNamespace(tmpfs.New(0))
}

// buildELF assembles a minimal 64-bit little-endian ELF with a single
// PT_LOAD segment, the same hand-built-header approach pkg/loader's own
// tests use, since there is no assembler available in this harness.
func buildELF(t *testing.T, osabi byte, vaddr, entry uint64, payload []byte) []byte {
	t.Helper()
	const ehSize, phSize = 64, 56
	buf := make([]byte, ehSize+phSize+len(payload))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4], buf[5], buf[6], buf[7] = 2, 1, 1, osabi

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 243)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], entry)
	le.PutUint64(buf[32:], ehSize)
	le.PutUint16(buf[52:], ehSize)
	le.PutUint16(buf[54:], phSize)
	le.PutUint16(buf[56:], 1)

	ph := buf[ehSize : ehSize+phSize]
	le.PutUint32(ph[0:], 1) // PT_LOAD
	le.PutUint32(ph[4:], 5)
	le.PutUint64(ph[8:], uint64(ehSize+phSize))
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(payload)))
	le.PutUint64(ph[40:], uint64(len(payload)))
	le.PutUint64(ph[48:], 4096)

	copy(buf[ehSize+phSize:], payload)
	return buf
}

func TestSpawnBecomesInitTask(t *testing.T) {
	k := NewKernel(newTestRegistry())
	init, err := k.Spawn(newTestNamespace(), "scarlet")
	if err != nil {
		t.Fatal(err)
	}
	if init.PID() != InitTaskID {
		t.Fatalf("first spawned task got pid %d, want %d", init.PID(), InitTaskID)
	}
	if k.InitTask() != init {
		t.Fatal("Kernel.InitTask did not return the first spawned task")
	}
}

func TestForkDuplicatesStatePerSpec(t *testing.T) {
	k := NewKernel(newTestRegistry())
	parent, err := k.Spawn(newTestNamespace(), "scarlet")
	if err != nil {
		t.Fatal(err)
	}
	if err := parent.RegisterZone(0x1000, 0x1000, "xv6-riscv64"); err != nil {
		t.Fatal(err)
	}
	parent.Setenv("FOO", "bar")

	child, err := k.Fork(parent)
	if err != nil {
		t.Fatal(err)
	}

	if child.PPID() != parent.PID() {
		t.Fatalf("child PPID = %d, want %d", child.PPID(), parent.PID())
	}
	if child.Namespace() != parent.Namespace() {
		t.Fatal("fork must share the namespace handle by default")
	}
	if child.AddressSpace() == parent.AddressSpace() {
		t.Fatal("fork must give the child its own address space object")
	}
	if child.Zones().Len() != 1 {
		t.Fatal("child did not inherit the parent's zone")
	}
	if v, _ := child.Getenv("FOO"); v != "bar" {
		t.Fatalf("child environment = %q, want %q", v, "bar")
	}

	// Zone ABI instances are distinct objects but the same ABI name
	//.
	pz := parent.Zones().Zones()[0]
	cz := child.Zones().Zones()[0]
	if pz.ABI == cz.ABI {
		t.Fatal("forked zone ABI instance must be a distinct object")
	}
	if pz.ABI.Name() != cz.ABI.Name() {
		t.Fatal("forked zone ABI instance must be semantically equivalent")
	}
}

func TestExecReplacesAddressSpaceAndABI(t *testing.T) {
	k := NewKernel(newTestRegistry())
	task, err := k.Spawn(newTestNamespace(), "scarlet")
	if err != nil {
		t.Fatal(err)
	}
	if err := task.RegisterZone(0x1000, 0x1000, "xv6-riscv64"); err != nil {
		t.Fatal(err)
	}

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	data := buildELF(t, loader.OSABIXv6, 0x10000, 0x10000, payload)

	if err := k.Exec(task, data, []string{"prog"}, []string{"PATH=/bin"}); err != nil {
		t.Fatal(err)
	}

	if task.DefaultABI().Name() != "xv6-riscv64" {
		t.Fatalf("default ABI after exec = %q, want xv6-riscv64", task.DefaultABI().Name())
	}
	if task.Zones().Len() != 0 {
		t.Fatal("exec must clear the zone map")
	}
	if v, ok := task.Getenv("PATH"); !ok || v != "/bin" {
		t.Fatalf("exec did not install the new environment: %q, %v", v, ok)
	}
	if task.TrapFrame().Sepc != 0x10000 {
		t.Fatalf("trap frame Sepc = %x, want entry point", task.TrapFrame().Sepc)
	}

	readBack := make([]byte, len(payload))
	if err := task.AddressSpace().CopyIn(0x10000, readBack); err != nil {
		t.Fatal(err)
	}
	if string(readBack) != string(payload) {
		t.Fatalf("segment not mapped after exec: %v", readBack)
	}
}

func TestExecUnknownABIFails(t *testing.T) {
	k := NewKernel(newTestRegistry())
	task, _ := k.Spawn(newTestNamespace(), "scarlet")
	data := buildELF(t, 0x42, 0x10000, 0x10000, []byte{0})
	if err := k.Exec(task, data, nil, nil); !kernerr.Is(err, kernerr.KindUnknownAbi) {
		t.Fatalf("expected UnknownAbi, got %v", err)
	}
}

func TestExitThenWaitReapsChild(t *testing.T) {
	k := NewKernel(newTestRegistry())
	parent, _ := k.Spawn(newTestNamespace(), "scarlet")
	child, err := k.Fork(parent)
	if err != nil {
		t.Fatal(err)
	}

	if err := k.Exit(child, 7); err != nil {
		t.Fatal(err)
	}
	if child.State() != Zombie {
		t.Fatal("exited task must be Zombie until reaped")
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()
	pid, status, err := k.Wait(ctx, parent, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pid != child.PID() || status != 7 {
		t.Fatalf("Wait returned (%d, %d), want (%d, 7)", pid, status, child.PID())
	}
	if _, ok := k.Lookup(child.PID()); ok {
		t.Fatal("reaped task must be removed from the task set")
	}
}

func TestWaitBlocksUntilExit(t *testing.T) {
	k := NewKernel(newTestRegistry())
	parent, _ := k.Spawn(newTestNamespace(), "scarlet")
	child, _ := k.Fork(parent)

	done := make(chan struct{})
	go func() {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		pid, status, err := k.Wait(ctx, parent, child.PID())
		if err != nil || pid != child.PID() || status != 3 {
			t.Errorf("Wait result = (%d, %d, %v), want (%d, 3, nil)", pid, status, err, child.PID())
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := k.Exit(child, 3); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not wake up after child exit")
	}
}

func TestOrphanReparentedToInit(t *testing.T) {
	k := NewKernel(newTestRegistry())
	init, _ := k.Spawn(newTestNamespace(), "scarlet")
	mid, _ := k.Fork(init)
	grandchild, err := k.Fork(mid)
	if err != nil {
		t.Fatal(err)
	}

	if err := k.Exit(mid, 0); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if _, _, err := k.Wait(ctx, init, mid.PID()); err != nil {
		t.Fatal(err)
	}

	if grandchild.PPID() != init.PID() {
		t.Fatalf("orphan PPID = %d, want init task %d", grandchild.PPID(), init.PID())
	}
}

func TestWaitWithNoChildrenFails(t *testing.T) {
	k := NewKernel(newTestRegistry())
	task, _ := k.Spawn(newTestNamespace(), "scarlet")
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if _, _, err := k.Wait(ctx, task, 0); !kernerr.Is(err, kernerr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPipeSurvivesForkAndCarriesBytesAcrossTasks(t *testing.T) {
	k := NewKernel(newTestRegistry())
	parent, _ := k.Spawn(newTestNamespace(), "scarlet")
	readFD, writeFD, err := parent.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	child, err := k.Fork(parent)
	if err != nil {
		t.Fatal(err)
	}
	// Redirect the child's copy of the write end onto a specific
	// descriptor number, the way a shell sets up a pipeline's write end
	// as fd 1 before exec'ing the child.
	const targetFD = 5
	if err := child.DupTo(writeFD, targetFD); err != nil {
		t.Fatal(err)
	}

	if _, err := child.Write(kctx.Background(), targetFD, []byte("hi")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 2)
	n, err := parent.Read(kctx.Background(), readFD, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("parent read %q, want %q", buf[:n], "hi")
	}
}

func contextWithTimeout() (kctx.Context, func()) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
