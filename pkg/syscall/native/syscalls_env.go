package native

import (
	"scarlet/pkg/arch"
	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/kernel"
)

const maxEnvValueLen = 4096

// sysSetenv implements setenv(key_ptr, value_ptr): a0 key, a1 value.
func sysSetenv(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	key, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	val, err := t.AddressSpace().CopyInString(addrArg(tf, 1), maxEnvValueLen)
	if err != nil {
		return encodeError(err)
	}
	t.Setenv(key, val)
	return 0
}

// sysGetenv implements getenv(key_ptr, value_ptr, cap): a0 key, a1
// destination buffer, a2 destination capacity. Fails with NotFound if key
// is unset, InvalidArgument if the value doesn't fit in cap.
func sysGetenv(t *kernel.Task, tf *arch.TrapFrame) uintptr {
	key, err := copyInPath(t, tf.Arg(0))
	if err != nil {
		return encodeError(err)
	}
	val, ok := t.Getenv(key)
	if !ok {
		return encodeError(kernerr.NotFound)
	}
	capacity := int(tf.Arg(2))
	if len(val)+1 > capacity {
		return encodeError(kernerr.InvalidArgument)
	}
	if err := t.AddressSpace().CopyOut(addrArg(tf, 1), append([]byte(val), 0)); err != nil {
		return encodeError(err)
	}
	return uintptr(len(val))
}
