package device

import (
	"errors"
	"time"
)

// ErrMemInfoUnsupported is returned by MemInfo where no host memory query
// is implemented.
var ErrMemInfoUnsupported = errors.New("host memory info not supported on this platform")

// MemStats is a snapshot of host memory. Sizes are in bytes.
type MemStats struct {
	Uptime    time.Duration
	Loads     [3]float64 // 1, 5 and 15 minute load averages
	Procs     uint64
	TotalRAM  uint64
	FreeRAM   uint64
	BufferRAM uint64
	TotalSwap uint64
	FreeSwap  uint64
}

// UsedRAM is TotalRAM - FreeRAM.
func (m MemStats) UsedRAM() uint64 {
	return m.TotalRAM - m.FreeRAM
}

// MiB converts bytes to mebibytes.
func MiB(b uint64) float64 {
	return float64(b) / (1 << 20)
}
