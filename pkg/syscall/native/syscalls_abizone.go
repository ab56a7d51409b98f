package native

import (
	"scarlet/pkg/abi"
	"scarlet/pkg/arch"
	"scarlet/pkg/kernel"
)

// sysRegisterAbiZone implements register_abi_zone(start, len, name_ptr),
// syscall 90: a0 start, a1 len, a2 a pointer to the NUL-terminated ABI
// name.
func sysRegisterAbiZone(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	name, err := t.AddressSpace().CopyInString(addrArg(tf, 2), abi.MaxNameLength+1)
	if err != nil {
		return encodeError(err)
	}
	if err := t.RegisterZone(tf.Arg(0), tf.Arg(1), name); err != nil {
		return encodeError(err)
	}
	return 0
}

// sysUnregisterAbiZone implements unregister_abi_zone(start), syscall 91.
func sysUnregisterAbiZone(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	if err := t.UnregisterZone(tf.Arg(0)); err != nil {
		return encodeError(err)
	}
	return 0
}
