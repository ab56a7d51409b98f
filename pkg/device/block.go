package device

import (
	"time"

	"github.com/cenkalti/backoff"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/log"
	"scarlet/pkg/syncutil"
)

// retryLogger throttles transient-failure logging to once per 100ms so a
// long backoff sequence doesn't flood the log with one line per attempt.
var retryLogger = log.BasicRateLimitedLogger(100 * time.Millisecond)

// DefaultSectorSize is the sector size used by MemBlockDevice.
const DefaultSectorSize = 512

// MemBlockDevice is an in-memory stand-in for a virtio-blk device backing
// an ext2 or FAT32 image. Reads and writes are retried with bounded
// backoff via github.com/cenkalti/backoff to model the occasional
// transient I/O failure a real block device surfaces.
type MemBlockDevice struct {
	mu         syncutil.RWMutex
	data       []byte
	sectorSize int

	// FailuresBeforeSuccess, if non-zero, makes the next N read/write
	// attempts fail transiently before backoff lets one through. Intended
	// for tests exercising the retry path.
	FailuresBeforeSuccess int
	failures              int
}

// NewMemBlockDevice allocates a zero-filled block device of the given
// capacity in sectors.
func NewMemBlockDevice(numSectors int64, sectorSize int) *MemBlockDevice {
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	return &MemBlockDevice{
		data:       make([]byte, numSectors*int64(sectorSize)),
		sectorSize: sectorSize,
	}
}

// SectorSize implements BlockOps.
func (d *MemBlockDevice) SectorSize() int { return d.sectorSize }

// NumSectors implements BlockOps.
func (d *MemBlockDevice) NumSectors() int64 { return int64(len(d.data)) / int64(d.sectorSize) }

func (d *MemBlockDevice) bounds(lba int64, n int) (int64, int64, error) {
	if n%d.sectorSize != 0 {
		return 0, 0, kernerr.InvalidArgument
	}
	start := lba * int64(d.sectorSize)
	end := start + int64(n)
	if lba < 0 || end > int64(len(d.data)) {
		return 0, 0, kernerr.New(kernerr.KindInvalidArgument, "sector range out of bounds")
	}
	return start, end, nil
}

func (d *MemBlockDevice) retry(op func() error) error {
	if d.failures >= d.FailuresBeforeSuccess {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Microsecond
	b.MaxElapsedTime = time.Second
	return backoff.Retry(func() error {
		if d.failures < d.FailuresBeforeSuccess {
			d.failures++
			retryLogger.Warningf("block device: transient I/O failure, retrying")
			return kernerr.New(kernerr.KindBusy, "transient block I/O failure")
		}
		return op()
	}, b)
}

// ReadSectors implements BlockOps.
func (d *MemBlockDevice) ReadSectors(lba int64, p []byte) error {
	return d.retry(func() error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		start, end, err := d.bounds(lba, len(p))
		if err != nil {
			return err
		}
		copy(p, d.data[start:end])
		return nil
	})
}

// WriteSectors implements BlockOps.
func (d *MemBlockDevice) WriteSectors(lba int64, p []byte) error {
	return d.retry(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		start, end, err := d.bounds(lba, len(p))
		if err != nil {
			return err
		}
		copy(d.data[start:end], p)
		return nil
	})
}
