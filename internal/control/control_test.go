package control

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"codeberg.org/mutker/asusfanctl/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTemps struct {
	cpu    int
	gpu    int
	hasGPU bool
	cpuErr error
}

func (f *fakeTemps) CPUTemperature(context.Context) (sensors.Temperature, error) {
	if f.cpuErr != nil {
		return sensors.Unavailable(sensors.SourceCPU), f.cpuErr
	}
	return sensors.Temperature{Source: sensors.SourceCPU, Celsius: f.cpu, Available: true}, nil
}

func (f *fakeTemps) GPUTemperature(context.Context) sensors.Temperature {
	if !f.hasGPU {
		return sensors.Unavailable(sensors.SourceGPU)
	}
	return sensors.Temperature{Source: sensors.SourceGPU, Celsius: f.gpu, Available: true}
}

type fakeFans struct {
	applied []int
	err     error
}

func (f *fakeFans) SetAllFansDuty(percent int) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, percent)
	return nil
}

type harness struct {
	ctrl   *Controller
	temps  *fakeTemps
	fans   *fakeFans
	clock  time.Time
	sleeps []time.Duration
}

func newHarness(cpu int) *harness {
	h := &harness{
		temps: &fakeTemps{cpu: cpu},
		fans:  &fakeFans{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h.ctrl = New(DefaultConfig(), h.temps, h.fans, logger.Nop())
	h.ctrl.now = func() time.Time { return h.clock }
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func TestTargetDuty(t *testing.T) {
	tests := []struct {
		excess int
		want   int
	}{
		{-20, 50},
		{0, 50},
		{1, 95},
		{10, 68},
		{30, 52},
		{1000, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TargetDuty(tt.excess), "excess %d", tt.excess)
	}

	for excess := 2; excess < 200; excess++ {
		d := TargetDuty(excess)
		assert.GreaterOrEqual(t, d, BaselineDuty)
		assert.LessOrEqual(t, d, TargetDuty(excess-1), "duty decays as excess grows")
	}
}

func TestExcess(t *testing.T) {
	cpu := sensors.Temperature{Source: sensors.SourceCPU, Celsius: 70, Available: true}

	assert.Equal(t, 10, Excess(cpu, sensors.Unavailable(sensors.SourceGPU), 60), "unavailable GPU is ignored")
	assert.Equal(t, 20, Excess(cpu, sensors.Temperature{Celsius: 80, Available: true}, 60))
	assert.Equal(t, 10, Excess(cpu, sensors.Temperature{Celsius: 30, Available: true}, 60))
}

func TestAdjustAppliesTarget(t *testing.T) {
	h := newHarness(70)

	res, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Excess)
	assert.Equal(t, 68, res.TargetDuty)
	assert.False(t, res.Settled)
	assert.Equal(t, []int{68}, h.fans.applied)
	assert.Equal(t, PhaseIdle, h.ctrl.Phase())

	st := h.ctrl.State()
	require.NotNil(t, st.LastTemperature)
	assert.Equal(t, 70, *st.LastTemperature)
}

func TestAdjustBelowSetpoint(t *testing.T) {
	h := newHarness(45)
	h.temps.hasGPU = true
	h.temps.gpu = 50

	res, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, res.TargetDuty)
	assert.Equal(t, []int{50}, h.fans.applied)
}

func TestAdjustUsesHotterGPU(t *testing.T) {
	h := newHarness(55)
	h.temps.hasGPU = true
	h.temps.gpu = 70

	res, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Excess)
	assert.Equal(t, 68, res.TargetDuty)
}

func TestAdjustSettlesOnSpike(t *testing.T) {
	h := newHarness(60)

	_, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)

	h.clock = h.clock.Add(time.Second)
	h.temps.cpu = 65
	res, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, h.sleeps)
	assert.Equal(t, []int{50, 80}, h.fans.applied, "target is still applied after settling")

	st := h.ctrl.State()
	assert.Equal(t, 60, *st.LastTemperature, "a spike does not move the baseline")

	// slow change relative to the old baseline is applied without delay
	h.clock = h.clock.Add(time.Second)
	h.temps.cpu = 61
	res, err = h.ctrl.Adjust(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Settled)
	assert.Len(t, h.sleeps, 1)
	assert.Equal(t, 61, *h.ctrl.State().LastTemperature)
}

func TestAdjustRateUsesElapsedIntervals(t *testing.T) {
	h := newHarness(60)

	_, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)

	// 6 degrees over 4 intervals is 1.5 per interval
	h.clock = h.clock.Add(4 * time.Second)
	h.temps.cpu = 66
	res, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Settled)
	assert.Empty(t, h.sleeps)
}

func TestAdjustCPUUnavailable(t *testing.T) {
	h := newHarness(60)
	h.temps.cpuErr = errors.New().New(errors.ErrTemperatureUnavailable)

	_, err := h.ctrl.Adjust(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrTemperatureUnavailable))
	assert.Empty(t, h.fans.applied)
	assert.Nil(t, h.ctrl.State().LastTemperature)
}

func TestAdjustCancelledWhileSettling(t *testing.T) {
	h := newHarness(60)
	_, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.temps.cpu = 90
	_, err = h.ctrl.Adjust(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
	assert.Equal(t, []int{50}, h.fans.applied)
}

func TestAdjustPropagatesFanError(t *testing.T) {
	h := newHarness(70)
	h.fans.err = errors.New().New(errors.ErrTransientIO)

	_, err := h.ctrl.Adjust(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrTransientIO))
	assert.Equal(t, PhaseIdle, h.ctrl.Phase())
}

func TestReset(t *testing.T) {
	h := newHarness(70)
	_, err := h.ctrl.Adjust(context.Background())
	require.NoError(t, err)

	h.ctrl.Reset()
	assert.Equal(t, State{}, h.ctrl.State())
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, sleepContext(ctx, time.Hour))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "sampling", PhaseSampling.String())
	assert.Equal(t, "applying", PhaseApplying.String())
}
