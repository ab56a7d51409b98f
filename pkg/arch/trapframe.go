// Package arch models the architecture-specific trap frame: the saved
// register set at the user/kernel boundary. This package models only the
// interface of that boundary, leaving the assembly that actually saves
// and restores it to an out-of-scope collaborator.
package arch

// TrapFrame is the RISC-V register file saved on a trap into the kernel:
// the syscall number in a7, argument registers a0..a5, the program
// counter at trap (Sepc), and a writable return slot (A0, reused as the
// return-value register on the way back out, matching the real ABI
// where a0 serves both purposes).
type TrapFrame struct {
	// A holds the RISC-V integer argument/return registers a0..a7. A[7]
	// is the syscall number; A[0]..A[5] are arguments; A[0] is
	// overwritten with the return value before trap-return.
	A [8]uint64

	// Sepc is the program counter at the instant of the trap — the
	// address of the ecall instruction that triggered the syscall. ABI
	// zone resolution keys off this value.
	Sepc uint64
}

// SyscallNumber returns the syscall number (a7).
func (tf *TrapFrame) SyscallNumber() uint64 { return tf.A[7] }

// Arg returns argument register i (a0..a5), i in [0,6).
func (tf *TrapFrame) Arg(i int) uint64 { return tf.A[i] }

// SetReturn writes v into a0, the return-value register, and advances
// Sepc past the ecall instruction (4 bytes on RISC-V) so that trap-return
// resumes at the instruction following the syscall.
func (tf *TrapFrame) SetReturn(v uint64) {
	tf.A[0] = v
	tf.Sepc += 4
}
