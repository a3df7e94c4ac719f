package device_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"

	"github.com/sugarme/maskrefine/device"
)

func TestInitCPU(t *testing.T) {
	rt, err := device.Init(device.Config{}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, gotch.CPU, rt.Device())
	require.InDelta(t, 1.0, rt.Available(), 1e-12)
}

func TestInitRejectsFraction(t *testing.T) {
	for _, f := range []float64{-0.1, 1.5} {
		_, err := device.Init(device.Config{MemoryFraction: f}, zerolog.Nop())
		require.Error(t, err, "%v", f)
	}
}

func TestReserve(t *testing.T) {
	rt, err := device.Init(device.Config{MemoryFraction: 0.9}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, rt.Reserve(device.OwnerModel, 0.6))
	require.NoError(t, rt.Reserve(device.OwnerFlow, 0.3))
	require.InDelta(t, 0.0, rt.Available(), 1e-9)
	require.Equal(t, []string{device.OwnerFlow, device.OwnerModel}, rt.Reservations())

	err = rt.Reserve("extra", 0.1)
	require.True(t, errors.Is(err, device.ErrResourceExhausted))

	// replacing a reservation only counts the new amount
	require.NoError(t, rt.Reserve(device.OwnerFlow, 0.2))
	require.InDelta(t, 0.1, rt.Available(), 1e-9)

	rt.Release(device.OwnerModel)
	require.InDelta(t, 0.7, rt.Available(), 1e-9)

	require.Error(t, rt.Reserve("zero", 0))
}

func TestMemInfo(t *testing.T) {
	m, err := device.MemInfo()
	if runtime.GOOS != "linux" {
		require.True(t, errors.Is(err, device.ErrMemInfoUnsupported))
		return
	}
	require.NoError(t, err)
	require.Greater(t, m.TotalRAM, uint64(0))
	require.LessOrEqual(t, m.FreeRAM, m.TotalRAM)
	require.Greater(t, device.MiB(m.UsedRAM()), 0.0)
}
