//go:build linux

package gpu

import (
	"context"
	"testing"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	nvml.Device
	name string
	temp uint32
	ret  nvml.Return
}

func (d *fakeDevice) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return d.temp, d.ret
}

func (d *fakeDevice) GetName() (string, nvml.Return) {
	return d.name, nvml.SUCCESS
}

type fakeLibrary struct {
	initRet   nvml.Return
	devices   []*fakeDevice
	inits     int
	shutdowns int
}

func (l *fakeLibrary) Init() nvml.Return {
	l.inits++
	return l.initRet
}

func (l *fakeLibrary) Shutdown() nvml.Return {
	l.shutdowns++
	return nvml.SUCCESS
}

func (l *fakeLibrary) DeviceGetCount() (int, nvml.Return) {
	return len(l.devices), nvml.SUCCESS
}

func (l *fakeLibrary) DeviceGetHandleByIndex(index int) (nvml.Device, nvml.Return) {
	return l.devices[index], nvml.SUCCESS
}

func TestNVMLGPUs(t *testing.T) {
	lib := &fakeLibrary{
		initRet: nvml.SUCCESS,
		devices: []*fakeDevice{
			{name: "RTX 4070", temp: 61, ret: nvml.SUCCESS},
			{name: "RTX 3060", temp: 48, ret: nvml.SUCCESS},
		},
	}
	n := newNVML(lib, logger.Nop())

	gpus, err := n.GPUs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Info{
		{Index: 0, Name: "RTX 4070", Temperature: 61},
		{Index: 1, Name: "RTX 3060", Temperature: 48},
	}, gpus)

	_, err = n.GPUs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lib.inits, "NVML is initialized once")

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.Equal(t, 1, lib.shutdowns)
}

func TestNVMLInitFailure(t *testing.T) {
	n := newNVML(&fakeLibrary{initRet: nvml.ERROR_LIBRARY_NOT_FOUND}, logger.Nop())

	_, err := n.GPUs(context.Background())
	assert.True(t, errors.HasCode(err, ErrInitFailed))
	require.NoError(t, n.Close())
}

func TestNVMLTemperatureFailure(t *testing.T) {
	lib := &fakeLibrary{
		initRet: nvml.SUCCESS,
		devices: []*fakeDevice{{name: "RTX", ret: nvml.ERROR_NOT_SUPPORTED}},
	}
	n := newNVML(lib, logger.Nop())

	_, err := n.GPUs(context.Background())
	assert.True(t, errors.HasCode(err, ErrTemperatureReadFailed))
}

func TestNVMLClosedStaysClosed(t *testing.T) {
	lib := &fakeLibrary{
		initRet: nvml.SUCCESS,
		devices: []*fakeDevice{{name: "RTX 4070", temp: 61, ret: nvml.SUCCESS}},
	}
	n := newNVML(lib, logger.Nop())

	_, err := n.GPUs(context.Background())
	require.NoError(t, err)
	require.NoError(t, n.Close())

	gpus, err := n.GPUs(context.Background())
	assert.True(t, errors.HasCode(err, ErrClosed))
	assert.Empty(t, gpus)
	assert.Equal(t, 1, lib.inits, "no re-initialization after Close")
	assert.Equal(t, 1, lib.shutdowns)
	assert.False(t, n.initialized)
}

func TestNVMLCloseBeforeUse(t *testing.T) {
	lib := &fakeLibrary{initRet: nvml.SUCCESS}
	n := newNVML(lib, logger.Nop())

	require.NoError(t, n.Close())
	_, err := n.GPUs(context.Background())
	assert.True(t, errors.HasCode(err, ErrClosed))
	assert.Equal(t, 0, lib.inits)
	assert.Equal(t, 0, lib.shutdowns)
}
