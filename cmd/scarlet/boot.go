package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"scarlet/pkg/abi"
	kctx "scarlet/pkg/context"
	"scarlet/pkg/device"
	"scarlet/pkg/fsimpl/cpiofs"
	"scarlet/pkg/fsimpl/devfs"
	"scarlet/pkg/kernel"
	"scarlet/pkg/log"
	"scarlet/pkg/syscall/native"
	"scarlet/pkg/syscall/xv6"
	"scarlet/pkg/vfs"
)

// bootCommand implements subcommands.Command for "boot": wires up the
// device registry, VFS namespace, ABI registry, and kernel in
// dependency order, then execs the configured init binary as pid 1.
type bootCommand struct {
	configPath string
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "boot the kernel simulation from a TOML config" }
func (*bootCommand) Usage() string {
	return "boot -config <path>\n  Wire up devices, VFS, and the ABI registry, then exec the configured init binary.\n"
}

func (b *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.configPath, "config", "", "path to the boot configuration TOML file")
}

func (b *bootCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if b.configPath == "" {
		fmt.Println("boot: -config is required")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig(b.configPath)
	if err != nil {
		log.Warningf("boot: loading config: %v", err)
		return subcommands.ExitFailure
	}
	if err := configureLogging(cfg); err != nil {
		fmt.Printf("boot: configuring logging: %v\n", err)
		return subcommands.ExitFailure
	}
	warnIfMemoryMismatch(cfg, log.Warningf)

	devices, console, err := buildDeviceRegistry(cfg)
	if err != nil {
		log.Warningf("boot: %v", err)
		return subcommands.ExitFailure
	}

	_, initTask, err := bootKernel(cfg, devices)
	if err != nil {
		log.Warningf("boot: %v", err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(console, "Hello, world!\n")
	log.Infof("boot: kernel up, init pid=%d entry=%#x", initTask.PID(), initTask.TrapFrame().Sepc)
	return subcommands.ExitSuccess
}

// buildDeviceRegistry builds the device registry for a boot: a console
// device (captured rather than driving real UART hardware) plus a null
// device and one in-memory block device per configured virtio-block
// image. The image files are read
// and preloaded concurrently, since each is an independent disk I/O
// bound step with nothing else in the registry to race against; device
// registration itself happens afterward, in configured order, so the
// resulting vdb<N> numbering stays deterministic regardless of which
// image finishes loading first.
func buildDeviceRegistry(cfg bootConfig) (*device.Registry, *device.ConsoleDevice, error) {
	reg := device.NewRegistry()

	console := device.NewConsoleDevice()
	if err := reg.Register(&device.Device{Name: "console", Kind: device.CharDevice, Char: console}); err != nil {
		return nil, nil, err
	}
	if err := reg.Register(&device.Device{Name: "null", Kind: device.CharDevice, Char: device.NullDevice{}}); err != nil {
		return nil, nil, err
	}

	blocks := make([]*device.MemBlockDevice, len(cfg.VirtioBlockImages))
	var g errgroup.Group
	for i, imgPath := range cfg.VirtioBlockImages {
		i, imgPath := i, imgPath
		g.Go(func() error {
			data, err := readFile(imgPath)
			if err != nil {
				return fmt.Errorf("loading block image %q: %w", imgPath, err)
			}
			blk, err := preloadedBlockDevice(data)
			if err != nil {
				return fmt.Errorf("preloading block image %q: %w", imgPath, err)
			}
			blocks[i] = blk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i, blk := range blocks {
		name := fmt.Sprintf("vdb%d", i)
		if err := reg.Register(&device.Device{Name: name, Kind: device.BlockDevice, Block: blk}); err != nil {
			return nil, nil, err
		}
	}

	return reg, console, nil
}

func preloadedBlockDevice(data []byte) (*device.MemBlockDevice, error) {
	sectors := (int64(len(data)) + device.DefaultSectorSize - 1) / device.DefaultSectorSize
	if sectors == 0 {
		sectors = 1
	}
	blk := device.NewMemBlockDevice(sectors, device.DefaultSectorSize)
	padded := make([]byte, sectors*device.DefaultSectorSize)
	copy(padded, data)
	if err := blk.WriteSectors(0, padded); err != nil {
		return nil, err
	}
	return blk, nil
}

// bootKernel wires up the VFS namespace (cpiofs-backed root plus a
// devfs mount), the ABI registry (native and xv6), the init task, and
// the exec of its init binary.
func bootKernel(cfg bootConfig, devices *device.Registry) (*kernel.Kernel, *kernel.Task, error) {
	initramfs, err := readFile(cfg.Initramfs)
	if err != nil {
		return nil, nil, fmt.Errorf("loading initramfs: %w", err)
	}
	rootFS, err := cpiofs.New(initramfs)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing initramfs: %w", err)
	}
	ns := vfs.NewNamespace(rootFS)
	if err := ns.Mount("/dev", devfs.New(devices), vfs.MountFlags{}); err != nil {
		return nil, nil, fmt.Errorf("mounting devfs: %w", err)
	}

	k, err := newKernel()
	if err != nil {
		return nil, nil, err
	}

	// Spawn under the native ABI as a bootstrap default; Exec below
	// replaces it with whatever ABI the init binary's ELF header
	// actually identifies.
	initTask, err := k.Spawn(ns, native.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("spawning init task: %w", err)
	}

	initData, err := readTaskFile(initTask, cfg.InitPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s from initramfs: %w", cfg.InitPath, err)
	}
	if err := k.Exec(initTask, initData, append([]string{cfg.InitPath}, cfg.InitArgs...), nil); err != nil {
		return nil, nil, fmt.Errorf("exec'ing %s: %w", cfg.InitPath, err)
	}

	return k, initTask, nil
}

// newKernel registers both ABI modules this build ships and returns the
// kernel they're bound to. pkg/syscall/native and pkg/syscall/xv6's own
// New functions take a *kernel.Kernel, so the kernel is constructed first
// and the registry's factories, registered right after, close over it.
func newKernel() (*kernel.Kernel, error) {
	reg := abi.NewRegistry()
	var k *kernel.Kernel
	k = kernel.NewKernel(reg)
	if err := reg.Register(native.Name, func() abi.Instance { return native.New(k) }, native.Detect); err != nil {
		return nil, err
	}
	if err := reg.Register(xv6.Name, func() abi.Instance { return xv6.New(k) }, xv6.Detect); err != nil {
		return nil, err
	}
	return k, nil
}

func readTaskFile(t *kernel.Task, path string) ([]byte, error) {
	fd, err := t.Open(path, vfs.OpenFlags{Mode: vfs.ReadOnly}, 0)
	if err != nil {
		return nil, err
	}
	defer t.Close(fd)

	var out []byte
	buf := make([]byte, 4096)
	ctx := kctx.Background()
	for {
		n, err := t.Read(ctx, fd, buf)
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
