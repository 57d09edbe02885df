package monitor_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/driver"
	"codeberg.org/mutker/asusfanctl/internal/driver/drivertest"
	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/fan"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"codeberg.org/mutker/asusfanctl/internal/monitor"
	"codeberg.org/mutker/asusfanctl/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	ticks  []monitor.Event
	errs   []monitor.ErrorEvent
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) OnTick(ev monitor.Event) {
	r.mu.Lock()
	r.ticks = append(r.ticks, ev)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) OnError(ev monitor.ErrorEvent) {
	r.mu.Lock()
	r.errs = append(r.errs, ev)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
}

func (r *recorder) snapshot() ([]monitor.Event, []monitor.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]monitor.Event(nil), r.ticks...), append([]monitor.ErrorEvent(nil), r.errs...)
}

type memorySink struct {
	mu   sync.Mutex
	errs []error
}

func (s *memorySink) Log(err error, _ []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

// scriptedTemps returns the queued CPU errors first, then a fixed reading.
type scriptedTemps struct {
	mu      sync.Mutex
	cpu     int
	errs    []error
	panics  int
	release chan struct{}
	entered chan struct{}
}

func (s *scriptedTemps) CPUTemperature(context.Context) (sensors.Temperature, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics > 0 {
		s.panics--
		panic("sensor exploded")
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return sensors.Unavailable(sensors.SourceCPU), err
	}
	return sensors.Temperature{Source: sensors.SourceCPU, Celsius: s.cpu, Available: true}, nil
}

func (s *scriptedTemps) GPUTemperature(context.Context) sensors.Temperature {
	return sensors.Unavailable(sensors.SourceGPU)
}

type staticFans struct {
	rpm []int
}

func (f staticFans) FanCount() (int, error) { return len(f.rpm), nil }

func (f staticFans) FanRPM(index int) (int, error) {
	if index >= len(f.rpm) {
		return 0, errors.New().New(errors.ErrInvalidIndex)
	}
	return f.rpm[index], nil
}

func fastConfig() monitor.Config {
	return monitor.Config{Interval: 5 * time.Millisecond, MaxRatedRPM: 5000}
}

func TestSpeedPercent(t *testing.T) {
	assert.InDelta(t, 50.0, monitor.SpeedPercent(2500, 2500, 5000), 1e-9)
	assert.InDelta(t, 25.0, monitor.SpeedPercent(2500, 0, 5000), 1e-9)
	assert.InDelta(t, 100.0, monitor.SpeedPercent(6000, 7000, 5000), 1e-9)
	assert.InDelta(t, 0.0, monitor.SpeedPercent(0, 0, 5000), 1e-9)
	assert.InDelta(t, 0.0, monitor.SpeedPercent(2500, 2500, 0), 1e-9)
}

func TestTickWithDriver(t *testing.T) {
	fake := drivertest.New(2)
	fake.CPU = 55
	fake.SetRPM(0, 2500)
	fake.SetRPM(1, 2500)
	s, err := driver.Open(fake, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	temps := sensors.NewReader(s, nil, nil, logger.Nop())
	loop := monitor.New(fastConfig(), temps, fan.New(s, logger.Nop()), nil, logger.Nop())

	ev, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, ev.CPU.Celsius)
	assert.True(t, ev.CPU.Available)
	assert.False(t, ev.GPU.Available, "missing GPU is reported, not zeroed")
	assert.Equal(t, 2500, ev.Fan1RPM)
	assert.Equal(t, 2500, ev.Fan2RPM)
	assert.Equal(t, 2, ev.FanCount)
	assert.InDelta(t, 50.0, ev.SpeedPercent, 1e-9)
	assert.Empty(t, fake.Writes(), "monitoring never writes to the device")
}

func TestTickSingleFan(t *testing.T) {
	loop := monitor.New(fastConfig(), &scriptedTemps{cpu: 40}, staticFans{rpm: []int{3000}}, nil, logger.Nop())

	ev, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000, ev.Fan1RPM)
	assert.Equal(t, 0, ev.Fan2RPM)
	assert.InDelta(t, 30.0, ev.SpeedPercent, 1e-9)
}

func TestTickNoFans(t *testing.T) {
	loop := monitor.New(fastConfig(), &scriptedTemps{cpu: 40}, staticFans{}, nil, logger.Nop())

	ev, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, ev.CPU.Celsius)
	assert.True(t, ev.CPU.Available)
	assert.Equal(t, 0, ev.FanCount)
	assert.Equal(t, 0, ev.Fan1RPM)
	assert.Equal(t, 0, ev.Fan2RPM)
	assert.InDelta(t, 0.0, ev.SpeedPercent, 1e-9)
}

func TestTickWithDriverWithoutFans(t *testing.T) {
	fake := drivertest.New(0)
	fake.CPU = 55
	s, err := driver.Open(fake, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	loop := monitor.New(fastConfig(), sensors.NewReader(s, nil, nil, logger.Nop()), fan.New(s, logger.Nop()), nil, logger.Nop())

	ev, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, ev.CPU.Celsius)
	assert.True(t, ev.CPU.Available)
	assert.Equal(t, 0, ev.Fan1RPM)
	assert.NotContains(t, fake.Calls(), "fan_rpm")
}

func TestLoopSurvivesFailedTicks(t *testing.T) {
	temps := &scriptedTemps{
		cpu:    50,
		errs:   []error{errors.New().New(errors.ErrTemperatureUnavailable), stderrors.New("io")},
		panics: 0,
	}
	sink := &memorySink{}
	rec := newRecorder()

	loop := monitor.New(fastConfig(), temps, staticFans{rpm: []int{2000, 2000}}, sink, logger.Nop())
	loop.Subscribe(rec)
	require.NoError(t, loop.Start(context.Background()))

	rec.wait(t, 4)
	loop.Stop()

	ticks, errs := rec.snapshot()
	require.Len(t, errs, 2)
	assert.True(t, errors.HasCode(errs[0].Err, errors.ErrTemperatureUnavailable))
	assert.Equal(t, "io", errs[1].Message)
	require.GreaterOrEqual(t, len(ticks), 2)
	assert.Equal(t, 50, ticks[0].CPU.Celsius)
	assert.Equal(t, 2, sink.count())
}

func TestLoopRecoversPanics(t *testing.T) {
	temps := &scriptedTemps{cpu: 50, panics: 1}
	sink := &memorySink{}
	rec := newRecorder()

	loop := monitor.New(fastConfig(), temps, staticFans{rpm: []int{1000}}, sink, logger.Nop())
	loop.Subscribe(rec)
	require.NoError(t, loop.Start(context.Background()))

	rec.wait(t, 2)
	loop.Stop()

	ticks, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "sensor exploded")
	assert.NotEmpty(t, ticks)
	assert.Equal(t, 1, sink.count())
}

func TestStopWaitsForInFlightTick(t *testing.T) {
	temps := &scriptedTemps{
		cpu:     50,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	loop := monitor.New(fastConfig(), temps, staticFans{rpm: []int{1000}}, nil, logger.Nop())
	require.NoError(t, loop.Start(context.Background()))

	<-temps.entered

	stopped := make(chan struct{})
	go func() {
		loop.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(temps.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}

	select {
	case <-loop.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
}

func TestStartTwice(t *testing.T) {
	loop := monitor.New(fastConfig(), &scriptedTemps{cpu: 50}, staticFans{rpm: []int{1}}, nil, logger.Nop())
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	require.Error(t, loop.Start(context.Background()))
}

func TestStopWithoutStart(t *testing.T) {
	loop := monitor.New(fastConfig(), &scriptedTemps{}, staticFans{}, nil, logger.Nop())
	loop.Stop()
	loop.Stop()
}

func TestContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := monitor.New(fastConfig(), &scriptedTemps{cpu: 50}, staticFans{rpm: []int{1}}, nil, logger.Nop())
	require.NoError(t, loop.Start(ctx))

	cancel()
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop ignored context cancellation")
	}
}

func TestFuncsSubscriber(t *testing.T) {
	var ticks, errs int
	s := monitor.Funcs{
		Tick:  func(monitor.Event) { ticks++ },
		Error: func(monitor.ErrorEvent) { errs++ },
	}
	s.OnTick(monitor.Event{})
	s.OnError(monitor.ErrorEvent{})
	monitor.Funcs{}.OnTick(monitor.Event{})

	assert.Equal(t, 1, ticks)
	assert.Equal(t, 1, errs)
}
