package kernel

import (
	"strings"

	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/loader"
)

// Exec implements exec: parses data as an ELF binary,
// establishes a fresh address space and loads its segments into it,
// detects the binary's ABI from its header and installs that as the new
// default ABI, clears the zone map, and resets the environment and
// argument vector while preserving the descriptor table modulo
// close-on-exec flags.
func (k *Kernel) Exec(t *Task, data []byte, argv, envp []string) error {
	as := newAddressSpace()
	result, hdr, err := loader.Load(data, as)
	if err != nil {
		return err
	}

	name, ok := k.abiRegistry.Detect(hdr)
	if !ok {
		return kernerr.UnknownAbi
	}
	inst, err := k.abiRegistry.Instantiate(name)
	if err != nil {
		return err
	}

	if err := t.fds.CloseOnExec(); err != nil {
		return err
	}

	t.mu.Lock()
	t.as = as
	t.defaultABI = inst
	t.zones = abi.NewZoneMap()
	t.env = envFromSlice(envp)
	t.argv = append([]string(nil), argv...)
	t.tf = arch.TrapFrame{Sepc: uint64(result.Entry)}
	t.mu.Unlock()

	return nil
}

func envFromSlice(envp []string) map[string]string {
	out := make(map[string]string, len(envp))
	for _, kv := range envp {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
