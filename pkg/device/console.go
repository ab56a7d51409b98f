package device

import "scarlet/pkg/syncutil"

// ConsoleDevice is an in-memory stand-in for the UART: writes are
// appended to an internal buffer so boot output can be asserted against
// exactly, and reads always return zero bytes, since this simulation
// has no interactive input source wired to it.
type ConsoleDevice struct {
	mu  syncutil.Mutex
	buf []byte
}

// NewConsoleDevice returns a fresh, empty console device.
func NewConsoleDevice() *ConsoleDevice {
	return &ConsoleDevice{}
}

// Write implements CharOps.Write.
func (c *ConsoleDevice) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Read implements CharOps.Read.
func (c *ConsoleDevice) Read(p []byte) (int, error) {
	return 0, nil
}

// Captured returns everything written to the console so far.
func (c *ConsoleDevice) Captured() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

// NullDevice discards writes and reads as empty, modeling /dev/null.
type NullDevice struct{}

// Write implements CharOps.Write.
func (NullDevice) Write(p []byte) (int, error) { return len(p), nil }

// Read implements CharOps.Read.
func (NullDevice) Read(p []byte) (int, error) { return 0, nil }
