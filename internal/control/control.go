// Package control turns temperature readings into a smoothed fan duty target.
package control

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"codeberg.org/mutker/asusfanctl/internal/sensors"
)

const (
	DefaultSetpoint       = 60
	DefaultRateLimit      = 2.0
	DefaultSampleInterval = time.Second
	DefaultSettleDelay    = time.Second

	// BaselineDuty is the lowest duty the controller ever commands.
	BaselineDuty = 50
	MaxDuty      = 100

	decayScale = 10.0
)

// Thermometer supplies CPU and GPU readings.
type Thermometer interface {
	CPUTemperature(ctx context.Context) (sensors.Temperature, error)
	GPUTemperature(ctx context.Context) sensors.Temperature
}

// FanSetter applies a duty percentage to every fan.
type FanSetter interface {
	SetAllFansDuty(percent int) error
}

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSampling
	PhaseApplying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSampling:
		return "sampling"
	case PhaseApplying:
		return "applying"
	default:
		return "unknown"
	}
}

type Config struct {
	// Setpoint is the target temperature in degrees Celsius.
	Setpoint int
	// SampleInterval is the unit the rate of change is measured in.
	SampleInterval time.Duration
	// RateLimit is the change in degrees per SampleInterval above which a
	// sample is treated as a transient spike.
	RateLimit float64
	// SettleDelay is waited once before applying a target after a spike.
	SettleDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Setpoint:       DefaultSetpoint,
		SampleInterval: DefaultSampleInterval,
		RateLimit:      DefaultRateLimit,
		SettleDelay:    DefaultSettleDelay,
	}
}

// State is the controller's memory between adjustments.
type State struct {
	LastTemperature *int
	LastSample      time.Time
}

// Result describes one adjustment.
type Result struct {
	CPU        sensors.Temperature
	GPU        sensors.Temperature
	Excess     int
	TargetDuty int
	// Settled is true when a spike caused the extra settle delay.
	Settled bool
}

// Controller performs one discrete duty adjustment per Adjust call.
type Controller struct {
	cfg    Config
	temps  Thermometer
	fans   FanSetter
	logger logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
	phase atomic.Int32
}

func New(cfg Config, temps Thermometer, fans FanSetter, log logger.Logger) *Controller {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	return &Controller{
		cfg:    cfg,
		temps:  temps,
		fans:   fans,
		logger: log,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// TargetDuty maps a temperature excess over the setpoint onto a duty.
// Any positive excess yields 50 + 50*e^(-excess/10), truncated, so the duty
// starts near 100 and decays toward the 50 floor as excess grows.
// No excess yields the 50 baseline.
func TargetDuty(excess int) int {
	if excess <= 0 {
		return BaselineDuty
	}

	decay := math.Exp(-float64(excess) / decayScale)
	duty := int(BaselineDuty + (MaxDuty-BaselineDuty)*decay)

	return clamp(duty, BaselineDuty, MaxDuty)
}

// Excess returns how far the hottest available reading is above setpoint.
// An unavailable GPU reading is left out.
func Excess(cpu, gpu sensors.Temperature, setpoint int) int {
	excess := cpu.Celsius - setpoint
	if gpu.Available {
		excess = max(excess, gpu.Celsius-setpoint)
	}
	return excess
}

// Adjust samples temperatures and applies one new duty target to all fans.
func (c *Controller) Adjust(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.phase.Store(int32(PhaseIdle))

	c.phase.Store(int32(PhaseSampling))

	cpu, err := c.temps.CPUTemperature(ctx)
	if err != nil {
		return Result{}, err
	}
	gpu := c.temps.GPUTemperature(ctx)

	excess := Excess(cpu, gpu, c.cfg.Setpoint)
	res := Result{
		CPU:        cpu,
		GPU:        gpu,
		Excess:     excess,
		TargetDuty: TargetDuty(excess),
	}

	now := c.now()
	if c.state.LastTemperature != nil {
		rate := c.rate(cpu.Celsius, now)
		if math.Abs(rate) > c.cfg.RateLimit {
			// baseline stays at the pre-spike sample
			c.logger.Debug().Float64("rate", rate).Msg("Rapid temperature change, settling before apply")
			res.Settled = true
			if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
				return res, errors.New().Wrap(errors.ErrTimeout, err)
			}
		} else {
			c.record(cpu.Celsius, now)
		}
	} else {
		c.record(cpu.Celsius, now)
	}

	c.phase.Store(int32(PhaseApplying))
	if err := c.fans.SetAllFansDuty(res.TargetDuty); err != nil {
		return res, err
	}

	ev := c.logger.Info().
		Int("cpu_temperature", cpu.Celsius).
		Int("excess", excess).
		Int("target_duty", res.TargetDuty).
		Bool("settled", res.Settled)
	if gpu.Available {
		ev = ev.Int("gpu_temperature", gpu.Celsius)
	}
	ev.Msg("Fan speed adjusted")

	return res, nil
}

// rate is degrees per sample interval since the last recorded sample; at
// least one interval is assumed to have passed.
func (c *Controller) rate(celsius int, now time.Time) float64 {
	intervals := float64(now.Sub(c.state.LastSample)) / float64(c.cfg.SampleInterval)
	if intervals < 1 {
		intervals = 1
	}
	return float64(celsius-*c.state.LastTemperature) / intervals
}

func (c *Controller) record(celsius int, now time.Time) {
	c.state.LastTemperature = &celsius
	c.state.LastSample = now
}

// Reset forgets the previous sample.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state
	if st.LastTemperature != nil {
		v := *st.LastTemperature
		st.LastTemperature = &v
	}
	return st
}

func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clamp(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
