//go:build !linux

package device

// MemInfo is only implemented on Linux.
func MemInfo() (MemStats, error) {
	return MemStats{}, ErrMemInfoUnsupported
}
