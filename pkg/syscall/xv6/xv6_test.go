package xv6

import (
	"testing"

	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/fsimpl/tmpfs"
	"scarlet/pkg/hostarch"
	"scarlet/pkg/kernel"
	"scarlet/pkg/vfs"
)

func newTestKernel(t *testing.T) (*kernel.Kernel, *kernel.Task) {
	t.Helper()
	reg := abi.NewRegistry()
	var k *kernel.Kernel
	k = kernel.NewKernel(reg)
	if err := reg.Register(Name, func() abi.Instance { return New(k) }, Detect); err != nil {
		t.Fatal(err)
	}
	ns := vfs.NewNamespace(tmpfs.New(0))
	task, err := k.Spawn(ns, Name)
	if err != nil {
		t.Fatal(err)
	}
	return k, task
}

func withTaskCtx(task *kernel.Task) kctx.Context {
	return kctx.WithTask(kctx.Background(), task)
}

func trapFrame(num uint64, args ...uint64) *arch.TrapFrame {
	tf := &arch.TrapFrame{}
	tf.A[7] = num
	for i, a := range args {
		tf.A[i] = a
	}
	return tf
}

func TestForkReturnsChildPID(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)

	ret, err := inst.HandleSyscall(withTaskCtx(task), trapFrame(SysFork))
	if err != nil {
		t.Fatal(err)
	}
	if ret == failSentinel {
		t.Fatal("fork returned the failure sentinel")
	}
	if _, ok := k.Lookup(int64(ret)); !ok {
		t.Fatal("forked child not registered in the kernel's task set")
	}
}

func TestOpenWriteCloseReadRoundTrip(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)
	ctx := withTaskCtx(task)
	as := task.AddressSpace()

	const pathAddr = 0x1000
	const bufAddr = 0x2000
	path := "/hello.txt"
	if err := as.CopyOut(hostarch.Addr(pathAddr), append([]byte(path), 0)); err != nil {
		t.Fatal(err)
	}
	payload := []byte("xv6 says hi")
	if err := as.CopyOut(hostarch.Addr(bufAddr), payload); err != nil {
		t.Fatal(err)
	}

	openTF := trapFrame(SysOpen, pathAddr, uint64(modeRdwr|modeCreate))
	ret, err := inst.HandleSyscall(ctx, openTF)
	if err != nil {
		t.Fatal(err)
	}
	if ret == failSentinel {
		t.Fatal("open failed")
	}
	fd := uint64(ret)

	writeTF := trapFrame(SysWrite, fd, bufAddr, uint64(len(payload)))
	ret, err = inst.HandleSyscall(ctx, writeTF)
	if err != nil {
		t.Fatal(err)
	}
	if int(ret) != len(payload) {
		t.Fatalf("write returned %d, want %d", ret, len(payload))
	}

	closeTF := trapFrame(SysClose, fd)
	if ret, err := inst.HandleSyscall(ctx, closeTF); err != nil || ret != 0 {
		t.Fatalf("close = (%d, %v)", ret, err)
	}

	reopenTF := trapFrame(SysOpen, pathAddr, 0)
	ret, err = inst.HandleSyscall(ctx, reopenTF)
	if err != nil {
		t.Fatal(err)
	}
	fd = uint64(ret)

	const readBufAddr = 0x3000
	readTF := trapFrame(SysRead, fd, readBufAddr, uint64(len(payload)))
	ret, err = inst.HandleSyscall(ctx, readTF)
	if err != nil {
		t.Fatal(err)
	}
	if int(ret) != len(payload) {
		t.Fatalf("read returned %d, want %d", ret, len(payload))
	}
	got := make([]byte, len(payload))
	if err := as.CopyIn(hostarch.Addr(readBufAddr), got); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("read back %q, want %q", got, payload)
	}
}

func TestPipeAndDup(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)
	ctx := withTaskCtx(task)
	as := task.AddressSpace()

	const fdsAddr = 0x5000
	pipeTF := trapFrame(SysPipe, fdsAddr)
	if ret, err := inst.HandleSyscall(ctx, pipeTF); err != nil || ret != 0 {
		t.Fatalf("pipe = (%d, %v)", ret, err)
	}
	var raw [8]byte
	if err := as.CopyIn(hostarch.Addr(fdsAddr), raw[:]); err != nil {
		t.Fatal(err)
	}
	readFD := uint64(raw[0]) | uint64(raw[1])<<8 | uint64(raw[2])<<16 | uint64(raw[3])<<24
	writeFD := uint64(raw[4]) | uint64(raw[5])<<8 | uint64(raw[6])<<16 | uint64(raw[7])<<24

	dupTF := trapFrame(SysDup, readFD)
	ret, err := inst.HandleSyscall(ctx, dupTF)
	if err != nil {
		t.Fatal(err)
	}
	if ret == failSentinel || uint64(ret) == readFD {
		t.Fatalf("dup returned %d, want a fresh descriptor", ret)
	}
	_ = writeFD
}

func TestUnknownSyscallReturnsFailSentinel(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)

	ret, err := inst.HandleSyscall(withTaskCtx(task), trapFrame(9999))
	if err != nil {
		t.Fatal(err)
	}
	if ret != failSentinel {
		t.Fatalf("expected failSentinel, got %d", ret)
	}
}

func TestHandleSyscallWithoutTaskFails(t *testing.T) {
	inst := New(kernel.NewKernel(abi.NewRegistry()))
	if _, err := inst.HandleSyscall(kctx.Background(), trapFrame(SysFork)); !kernerr.Is(err, kernerr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
