// Package monitor polls temperatures and fan speeds on a fixed period and
// publishes each sample to subscribers.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errlog"
	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"codeberg.org/mutker/asusfanctl/internal/sensors"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxRatedRPM = 5000
)

// Thermometer supplies CPU and GPU readings.
type Thermometer interface {
	CPUTemperature(ctx context.Context) (sensors.Temperature, error)
	GPUTemperature(ctx context.Context) sensors.Temperature
}

// FanReader reads fan counters.
type FanReader interface {
	FanCount() (int, error)
	FanRPM(index int) (int, error)
}

type Config struct {
	Interval time.Duration
	// MaxRatedRPM is the RPM reported as 100% speed.
	MaxRatedRPM int
}

func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, MaxRatedRPM: DefaultMaxRatedRPM}
}

// Loop is the background monitoring loop. Subscribers are invoked on the
// loop's goroutine.
type Loop struct {
	cfg    Config
	temps  Thermometer
	fans   FanReader
	sink   errlog.Sink
	logger logger.Logger

	mu   sync.Mutex
	subs []Subscriber

	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func New(cfg Config, temps Thermometer, fans FanReader, sink errlog.Sink, log logger.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxRatedRPM <= 0 {
		cfg.MaxRatedRPM = DefaultMaxRatedRPM
	}

	return &Loop{
		cfg:    cfg,
		temps:  temps,
		fans:   fans,
		sink:   sink,
		logger: log,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Subscribe adds s to the subscribers of every following tick.
func (l *Loop) Subscribe(s Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, s)
}

// Start launches the loop. A Loop runs at most once.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New().WithMessage(errors.ErrInternal, "monitor loop already started")
	}

	go l.run(ctx)
	l.logger.Debug().Dur("interval", l.cfg.Interval).Msg("Monitor loop started")

	return nil
}

// Stop raises the stop flag and waits for the loop to finish its current
// iteration. It does not interrupt an in-flight tick.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.stopping.Store(true)
		close(l.stopCh)
	})

	if l.started.Load() {
		<-l.done
	}
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		l.logger.Debug().Msg("Monitor loop stopped")
	}()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if l.stopping.Load() || ctx.Err() != nil {
			return
		}

		l.step(ctx)

		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// step runs one tick and publishes its outcome. Failures, including panics,
// become error events; the loop keeps going.
func (l *Loop) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.fail(errors.New().WithData(errors.ErrInternal, fmt.Sprintf("panic in monitor tick: %v", r)), debug.Stack())
		}
	}()

	ev, err := l.Tick(ctx)
	if err != nil {
		l.fail(err, debug.Stack())
		return
	}

	for _, s := range l.subscribers() {
		s.OnTick(ev)
	}
}

func (l *Loop) fail(err error, stack []byte) {
	l.logger.Error().Err(err).Str("error_code", string(errors.CodeOf(err))).Msg("Monitor tick failed")
	if l.sink != nil {
		l.sink.Log(err, stack)
	}

	ev := ErrorEvent{Time: time.Now(), Err: err, Message: err.Error()}
	for _, s := range l.subscribers() {
		s.OnError(ev)
	}
}

func (l *Loop) subscribers() []Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := make([]Subscriber, len(l.subs))
	copy(subs, l.subs)
	return subs
}

// Tick takes one sample: CPU and GPU temperature and the RPM of fans 0 and 1
// when present. A missing GPU or fan is reported as unavailable or 0 RPM and
// does not fail the tick.
func (l *Loop) Tick(ctx context.Context) (Event, error) {
	cpu, err := l.temps.CPUTemperature(ctx)
	if err != nil {
		return Event{}, err
	}
	gpu := l.temps.GPUTemperature(ctx)

	count, err := l.fans.FanCount()
	if err != nil {
		return Event{}, err
	}

	var fan1, fan2 int
	if count > 0 {
		if fan1, err = l.fans.FanRPM(0); err != nil {
			return Event{}, err
		}
	}
	if count > 1 {
		if fan2, err = l.fans.FanRPM(1); err != nil {
			return Event{}, err
		}
	}

	return Event{
		Time:         time.Now(),
		CPU:          cpu,
		GPU:          gpu,
		FanCount:     count,
		Fan1RPM:      fan1,
		Fan2RPM:      fan2,
		SpeedPercent: SpeedPercent(fan1, fan2, l.cfg.MaxRatedRPM),
	}, nil
}

// SpeedPercent is the mean of both fans relative to maxRated, capped at 100.
// A missing second fan counts as 0 RPM.
func SpeedPercent(fan1, fan2, maxRated int) float64 {
	if maxRated <= 0 {
		return 0
	}
	avg := float64(fan1+fan2) / 2
	return min(100, avg/float64(maxRated)*100)
}
