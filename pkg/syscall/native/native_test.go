package native

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

func TestGetpidGetppid(t *testing.T) {
	k, task := newTestKernel(t)
	abiInst, _ := k.InitTask().DefaultABI().(*ABI)
	if abiInst == nil {
		t.Fatal("init task's default ABI is not the native ABI")
	}

	tf := trapFrame(SysGetpid)
	ret, err := abiInst.HandleSyscall(withTaskCtx(task), tf)
	if err != nil {
		t.Fatal(err)
	}
	if ret != uintptr(task.PID()) {
		t.Fatalf("getpid = %d, want %d", ret, task.PID())
	}

	tf = trapFrame(SysGetppid)
	ret, err = abiInst.HandleSyscall(withTaskCtx(task), tf)
	if err != nil {
		t.Fatal(err)
	}
	if ret != uintptr(task.PPID()) {
		t.Fatalf("getppid = %d, want %d", ret, task.PPID())
	}
}

func TestForkReturnsChildPID(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)

	ret, err := inst.HandleSyscall(withTaskCtx(task), trapFrame(SysFork))
	if err != nil {
		t.Fatal(err)
	}
	if int64(ret) <= int64(task.PID()) {
		t.Fatalf("fork returned %d, want a new larger pid", ret)
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
	payload := []byte("hi there")
	if err := as.CopyOut(hostarch.Addr(bufAddr), payload); err != nil {
		t.Fatal(err)
	}

	openTF := trapFrame(SysOpen, pathAddr, uint64(flagRdwr|flagCreat), uint64(vfs.PermRead|vfs.PermWrite))
	ret, err := inst.HandleSyscall(ctx, openTF)
	if err != nil {
		t.Fatal(err)
	}
	if int64(ret) < 0 {
		t.Fatalf("open failed: %d", int64(ret))
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
	if ret, err := inst.HandleSyscall(ctx, closeTF); err != nil || int64(ret) != 0 {
		t.Fatalf("close = (%d, %v)", ret, err)
	}

	reopenTF := trapFrame(SysOpen, pathAddr, uint64(0), 0)
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

func TestRegisterAndUnregisterAbiZone(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)
	ctx := withTaskCtx(task)
	as := task.AddressSpace()

	const nameAddr = 0x4000
	if err := as.CopyOut(hostarch.Addr(nameAddr), append([]byte(Name), 0)); err != nil {
		t.Fatal(err)
	}

	regTF := trapFrame(SysRegisterAbiZone, 0x1000, 0x1000, nameAddr)
	if ret, err := inst.HandleSyscall(ctx, regTF); err != nil || int64(ret) != 0 {
		t.Fatalf("register_abi_zone = (%d, %v)", ret, err)
	}
	if task.Zones().Len() != 1 {
		t.Fatal("zone not registered")
	}

	unregTF := trapFrame(SysUnregisterAbiZone, 0x1000)
	if ret, err := inst.HandleSyscall(ctx, unregTF); err != nil || int64(ret) != 0 {
		t.Fatalf("unregister_abi_zone = (%d, %v)", ret, err)
	}
	if task.Zones().Len() != 0 {
		t.Fatal("zone not removed")
	}
}

func TestUnknownSyscallReturnsENOSYS(t *testing.T) {
	k, task := newTestKernel(t)
	inst := k.InitTask().DefaultABI().(*ABI)

	ret, err := inst.HandleSyscall(withTaskCtx(task), trapFrame(9999))
	if err != nil {
		t.Fatal(err)
	}
	if int64(ret) >= 0 {
		t.Fatalf("expected a negative-errno encoding, got %d", int64(ret))
	}
}

func TestHandleSyscallWithoutTaskFails(t *testing.T) {
	inst := New(kernel.NewKernel(abi.NewRegistry()))
	if _, err := inst.HandleSyscall(kctx.Background(), trapFrame(SysGetpid)); !kernerr.Is(err, kernerr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

