package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"scarlet/pkg/device"
)

// probeDevicesCommand implements subcommands.Command for
// "probe-devices": builds the same device registry "boot" would and
// lists what ended up in it, for inspecting a boot config without
// actually execing an init binary.
type probeDevicesCommand struct {
	configPath string
}

func (*probeDevicesCommand) Name() string { return "probe-devices" }
func (*probeDevicesCommand) Synopsis() string {
	return "list the devices a boot config would register"
}
func (*probeDevicesCommand) Usage() string {
	return "probe-devices -config <path>\n  Build the device registry from a boot config and list its contents.\n"
}

func (p *probeDevicesCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.configPath, "config", "", "path to the boot configuration TOML file")
}

func (p *probeDevicesCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.configPath == "" {
		fmt.Println("probe-devices: -config is required")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig(p.configPath)
	if err != nil {
		fmt.Printf("probe-devices: loading config: %v\n", err)
		return subcommands.ExitFailure
	}

	reg, _, err := buildDeviceRegistry(cfg)
	if err != nil {
		fmt.Printf("probe-devices: %v\n", err)
		return subcommands.ExitFailure
	}

	for _, d := range reg.List() {
		switch d.Kind {
		case device.CharDevice:
			fmt.Printf("%-12s char\n", d.Name)
		case device.BlockDevice:
			fmt.Printf("%-12s block  sectors=%d sector_size=%d\n", d.Name, d.Block.NumSectors(), d.Block.SectorSize())
		}
	}
	return subcommands.ExitSuccess
}
