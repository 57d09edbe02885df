// Package sensors reads CPU and GPU temperatures.
package sensors

import (
	"context"

	"codeberg.org/mutker/asusfanctl/internal/driver"
	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/gpu"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

// CoreTempGroup is the sensor group consulted when the driver has no CPU data.
const CoreTempGroup = "coretemp"

type Source string

const (
	SourceCPU Source = "cpu"
	SourceGPU Source = "gpu"
)

// Temperature is a reading in whole degrees Celsius. An unavailable reading
// has Available false and carries no value.
type Temperature struct {
	Source    Source
	Celsius   int
	Available bool
}

// Unavailable returns the empty reading for src.
func Unavailable(src Source) Temperature {
	return Temperature{Source: src}
}

// Provider exposes host temperature sensors grouped by sensor-group name,
// each group holding its per-core current temperatures in order.
type Provider interface {
	Temperatures(ctx context.Context) (map[string][]float64, error)
}

// GPUEnumerator lists GPUs with their temperature.
type GPUEnumerator interface {
	GPUs(ctx context.Context) ([]gpu.Info, error)
}

// Reader reads temperatures from the driver session with a host sensor
// fallback for the CPU.
type Reader struct {
	session  *driver.Session
	fallback Provider
	gpus     GPUEnumerator
	logger   logger.Logger
}

func NewReader(session *driver.Session, fallback Provider, gpus GPUEnumerator, log logger.Logger) *Reader {
	return &Reader{
		session:  session,
		fallback: fallback,
		gpus:     gpus,
		logger:   log,
	}
}

// CPUTemperature reads the driver's CPU sensor. When it reports no data the
// first coretemp sensor of the host provider is used instead.
func (r *Reader) CPUTemperature(ctx context.Context) (Temperature, error) {
	errFactory := errors.New()

	var celsius int
	err := r.session.Do(func(d driver.Driver) error {
		var err error
		celsius, err = d.CPUTemperature()
		return err
	})
	if err != nil {
		if errors.HasCode(err, errors.ErrSessionNotActive) {
			return Unavailable(SourceCPU), err
		}
		return Unavailable(SourceCPU), errFactory.Wrap(errors.ErrTransientIO, err)
	}

	if celsius != 0 {
		return Temperature{Source: SourceCPU, Celsius: celsius, Available: true}, nil
	}

	if r.fallback == nil {
		return Unavailable(SourceCPU), errFactory.WithMessage(errors.ErrTemperatureUnavailable,
			"Could not fetch CPU temperature")
	}

	groups, err := r.fallback.Temperatures(ctx)
	if err != nil {
		return Unavailable(SourceCPU), errFactory.Wrap(errors.ErrTemperatureUnavailable, err)
	}

	cores := groups[CoreTempGroup]
	if len(cores) == 0 {
		return Unavailable(SourceCPU), errFactory.WithMessage(errors.ErrTemperatureUnavailable,
			"Could not fetch CPU temperature")
	}

	r.logger.Debug().Float64("celsius", cores[0]).Msg("CPU temperature read from host sensors")

	return Temperature{Source: SourceCPU, Celsius: int(cores[0]), Available: true}, nil
}

// GPUTemperature returns the first GPU's temperature, or an unavailable
// reading when no GPU is enumerated. It never fails.
func (r *Reader) GPUTemperature(ctx context.Context) Temperature {
	if r.gpus == nil {
		return Unavailable(SourceGPU)
	}

	gpus, err := r.gpus.GPUs(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("GPU enumeration failed")
	}
	if len(gpus) == 0 {
		return Unavailable(SourceGPU)
	}

	return Temperature{Source: SourceGPU, Celsius: gpus[0].Temperature, Available: true}
}
