// Package device selects the compute device once per process and keeps a
// ledger of how its memory is split between co-resident models.
package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sugarme/gotch"
)

// ErrResourceExhausted is returned when a reservation does not fit in the
// remaining memory budget. It is fatal; callers should not retry.
var ErrResourceExhausted = errors.New("device memory budget exhausted")

// Owners of the usual reservations.
const (
	OwnerModel = "segmentation"
	OwnerFlow  = "flow"
)

// Config selects the device and the fraction of its memory this process
// may use.
type Config struct {
	Cuda           bool
	MemoryFraction float64 // in (0,1]; 0 means 1
}

// Runtime is the initialised device plus its memory ledger.
type Runtime struct {
	device gotch.Device
	budget float64

	mu       sync.Mutex
	reserved map[string]float64
	logger   zerolog.Logger
}

// Init selects the device. The host application calls it once, before any
// network is built, and hands the Runtime to everything that needs a device.
//
// Requesting CUDA on a machine without it is an error rather than a silent
// CPU fallback.
func Init(config Config, logger zerolog.Logger) (*Runtime, error) {
	fraction := config.MemoryFraction
	if fraction == 0 {
		fraction = 1
	}
	if fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("device: memory fraction %v out of (0,1]", config.MemoryFraction)
	}

	device := gotch.CPU
	if config.Cuda {
		device = gotch.CudaIfAvailable()
		if device == gotch.CPU {
			return nil, fmt.Errorf("device: CUDA requested but not available")
		}
	}

	logger.Info().Str("component", "device").Str("device", fmt.Sprintf("%v", device)).Float64("memory_fraction", fraction).Msg("device initialised")

	return &Runtime{
		device:   device,
		budget:   fraction,
		reserved: make(map[string]float64),
		logger:   logger,
	}, nil
}

// Device returns the selected device.
func (r *Runtime) Device() gotch.Device {
	return r.device
}

// Reserve books fraction of device memory for owner. A repeated call for
// the same owner replaces its previous reservation.
//
// libtorch has no per-model allocator limit, so the ledger is what keeps
// co-resident models within the configured budget: each one reserves its
// share before it is built.
func (r *Runtime) Reserve(owner string, fraction float64) error {
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("device: reservation %v for %q out of (0,1]", fraction, owner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	used := 0.0
	for o, f := range r.reserved {
		if o != owner {
			used += f
		}
	}
	// small slack so 0.7+0.3 fits a budget of 1
	if used+fraction > r.budget+1e-9 {
		return fmt.Errorf("device: %q wants %.2f but only %.2f of %.2f is free: %w", owner, fraction, r.budget-used, r.budget, ErrResourceExhausted)
	}
	r.reserved[owner] = fraction

	r.logger.Debug().Str("component", "device").Str("owner", owner).Float64("fraction", fraction).Float64("free", r.budget-used-fraction).Msg("memory reserved")

	return nil
}

// Release drops owner's reservation.
func (r *Runtime) Release(owner string) {
	r.mu.Lock()
	delete(r.reserved, owner)
	r.mu.Unlock()
}

// Available returns the unreserved fraction of the budget.
func (r *Runtime) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := r.budget
	for _, f := range r.reserved {
		free -= f
	}
	if free < 0 {
		return 0
	}
	return free
}

// Reservations lists the current owners in name order.
func (r *Runtime) Reservations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := make([]string, 0, len(r.reserved))
	for o := range r.reserved {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}
