package printer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ATT header bytes taken from every write on a BLE link
const (
	DefaultMTU    = 23
	MTUHeaderSize = 3
)

// Chunking controls how a job is split into writes. The zero value sends
// the job in a single write.
type Chunking struct {
	Enabled bool
	Size    int           // bytes per write; 0 derives it from the link MTU
	Delay   time.Duration // pause between writes
}

// chunkSize resolves the write size for a link with the given MTU
func (c Chunking) chunkSize(mtu int) int {
	if !c.Enabled {
		return 0
	}
	if c.Size > 0 {
		return c.Size
	}
	if mtu <= MTUHeaderSize {
		mtu = DefaultMTU
	}
	return mtu - MTUHeaderSize
}

// writeChunked writes data with write, size bytes at a time. A size of 0
// or more than len(data) performs one write.
func writeChunked(ctx context.Context, data []byte, size int, delay time.Duration, write func([]byte) (int, error), logger *zap.Logger) error {
	if len(data) == 0 {
		return nil
	}
	if size <= 0 || size > len(data) {
		size = len(data)
	}

	chunks := 0
	for off := 0; off < len(data); off += size {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		if chunks > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrWriteFailed, ctx.Err())
			case <-time.After(delay):
			}
		}

		end := off + size
		if end > len(data) {
			end = len(data)
		}
		n, err := write(data[off:end])
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %w", ErrWriteFailed, chunks, err)
		}
		if n < end-off {
			return fmt.Errorf("%w: chunk %d: short write (%d of %d bytes)", ErrWriteFailed, chunks, n, end-off)
		}
		chunks++

		logger.Debug("Wrote chunk", zap.Int("chunk", chunks), zap.Int("bytes", n))
	}

	return nil
}
