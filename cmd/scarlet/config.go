package main

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"scarlet/pkg/log"
	"scarlet/pkg/memory"
)

// bootConfig is the declarative boot configuration: what a flattened
// device tree would hand a real kernel (memory size, device list) plus
// the initramfs location, expressed as a TOML document rather than a
// binary device tree, since FDT parsing itself is out of scope.
type bootConfig struct {
	// Initramfs is the path to a CPIO archive (magic "070701") loaded
	// as the root filesystem's contents.
	Initramfs string `toml:"initramfs"`

	// MemoryBytes documents the intended per-task address-space size.
	// pkg/memory.DefaultSize is fixed at boot time in this simulation
	// (no real page-table sizing to reconfigure); a mismatch is logged
	// as a warning rather than rejected, since nothing downstream of
	// Spawn/Exec currently reads this field.
	MemoryBytes int64 `toml:"memory_bytes"`

	// InitPath is the path within the initramfs of the binary exec'd
	// into the init task (pid 1).
	InitPath string `toml:"init_path"`

	// InitArgs is argv[1:] passed to the init binary.
	InitArgs []string `toml:"init_args"`

	// VirtioBlockImages names local files whose contents preload an
	// in-memory block device each, standing in for virtio-blk-attached
	// disk images.
	VirtioBlockImages []string `toml:"virtio_block_images"`

	// LogFormat selects the boot log's output encoding: "text" (default)
	// for glog-style lines, or "json" for one JSON object per line.
	LogFormat string `toml:"log_format"`

	// LogFile, if set, redirects the boot log to a file instead of
	// stderr. "%PID%" in the pattern is replaced with the process ID, so
	// concurrent boot runs against the same config don't clobber each
	// other's log file.
	LogFile string `toml:"log_file"`
}

// pidSubstitutingFileOpts implements log.FileOpts by replacing "%PID%" in
// the pattern with the current process ID.
type pidSubstitutingFileOpts struct{}

func (pidSubstitutingFileOpts) Build(pattern string) string {
	return strings.ReplaceAll(pattern, "%PID%", strconv.Itoa(os.Getpid()))
}

const defaultInitPath = "/init"

func loadConfig(path string) (bootConfig, error) {
	var cfg bootConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return bootConfig{}, err
	}
	if cfg.InitPath == "" {
		cfg.InitPath = defaultInitPath
	}
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// configureLogging installs the global logger's emitter according to
// cfg.LogFormat and cfg.LogFile. An empty or unrecognized LogFormat keeps
// the glog-style default installed by pkg/log's init; an empty LogFile
// keeps logging on stderr.
func configureLogging(cfg bootConfig) error {
	sink := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := log.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, pidSubstitutingFileOpts{})
		if err != nil {
			return err
		}
		sink = f
	}

	var emitter log.Emitter
	if cfg.LogFormat == "json" {
		emitter = log.JSONEmitter{Writer: &log.Writer{Next: sink}}
	} else {
		emitter = log.GoogleEmitter{Writer: &log.Writer{Next: sink}}
	}
	log.SetTarget(&log.BasicLogger{Level: log.Debug, Emitter: emitter})
	return nil
}

// warnIfMemoryMismatch logs when cfg's declared memory size disagrees
// with the fixed per-task address-space size this simulation actually
// hands out.
func warnIfMemoryMismatch(cfg bootConfig, warnf func(string, ...any)) {
	if cfg.MemoryBytes != 0 && uint64(cfg.MemoryBytes) != memory.DefaultSize {
		warnf("boot config requests %d bytes of task memory; this build always allocates %d", cfg.MemoryBytes, memory.DefaultSize)
	}
}
