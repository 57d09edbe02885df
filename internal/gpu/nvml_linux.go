//go:build linux

package gpu

import (
	"context"
	"sync"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlLibrary abstracts the package-level NVML calls for testing
type nvmlLibrary interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (nvml.Device, nvml.Return)
}

type systemNVML struct{}

func (systemNVML) Init() nvml.Return { return nvml.Init() }
func (systemNVML) Shutdown() nvml.Return { return nvml.Shutdown() }
func (systemNVML) DeviceGetCount() (int, nvml.Return) { return nvml.DeviceGetCount() }

func (systemNVML) DeviceGetHandleByIndex(index int) (nvml.Device, nvml.Return) {
	return nvml.DeviceGetHandleByIndex(index)
}

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// NVML enumerates NVIDIA GPUs through the management library. NVML is
// initialized lazily on first use, so hosts without an NVIDIA driver simply
// report no GPUs. Once closed it stays closed.
type NVML struct {
	lib         nvmlLibrary
	logger      logger.Logger
	mu          sync.Mutex
	initialized bool
	closed      bool
}

// NewEnumerator returns the platform GPU enumerator.
func NewEnumerator(log logger.Logger) Enumerator {
	return newNVML(systemNVML{}, log)
}

func newNVML(lib nvmlLibrary, log logger.Logger) *NVML {
	return &NVML{lib: lib, logger: log}
}

func (n *NVML) initialize() error {
	if n.closed {
		return errors.New().New(ErrClosed)
	}
	if n.initialized {
		return nil
	}

	if ret := n.lib.Init(); ret != nvml.SUCCESS {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}
	n.initialized = true

	return nil
}

func (n *NVML) GPUs(ctx context.Context) ([]Info, error) {
	errFactory := errors.New()
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.initialize(); err != nil {
		return nil, err
	}

	count, ret := n.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	gpus := make([]Info, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return gpus, errFactory.Wrap(errors.ErrTimeout, err)
		}

		device, ret := n.lib.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return gpus, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
		}

		temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU)
		if ret != nvml.SUCCESS {
			return gpus, errFactory.Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
		}

		name, ret := device.GetName()
		if ret != nvml.SUCCESS {
			n.logger.Debug().Int("gpu", i).Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
		}

		gpus = append(gpus, Info{Index: i, Name: name, Temperature: int(temp)})
	}

	return gpus, nil
}

func (n *NVML) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	if !n.initialized {
		return nil
	}

	if ret := n.lib.Shutdown(); ret != nvml.SUCCESS {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}
	n.initialized = false

	return nil
}
