package device

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Load averages are fixed point with 16 fractional bits.
const loadScale = 65536.0

// MemInfo samples host memory with sysinfo(2).
// See http://man7.org/linux/man-pages/man2/sysinfo.2.html
func MemInfo() (MemStats, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return MemStats{}, fmt.Errorf("sysinfo: %w", err)
	}

	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}

	return MemStats{
		Uptime: time.Duration(si.Uptime) * time.Second,
		Loads: [3]float64{
			float64(si.Loads[0]) / loadScale,
			float64(si.Loads[1]) / loadScale,
			float64(si.Loads[2]) / loadScale,
		},
		Procs:     uint64(si.Procs),
		TotalRAM:  uint64(si.Totalram) * unit,
		FreeRAM:   uint64(si.Freeram) * unit,
		BufferRAM: uint64(si.Bufferram) * unit,
		TotalSwap: uint64(si.Totalswap) * unit,
		FreeSwap:  uint64(si.Freeswap) * unit,
	}, nil
}
