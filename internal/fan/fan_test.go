package fan_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/asusfanctl/internal/driver"
	"codeberg.org/mutker/asusfanctl/internal/driver/drivertest"
	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/fan"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFans(t *testing.T, fake *drivertest.Fake) (*fan.Controller, *driver.Session) {
	t.Helper()
	s, err := driver.Open(fake, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	fake.ResetCalls()

	return fan.New(s, logger.Nop()), s
}

func TestDeviceDuty(t *testing.T) {
	tests := []struct {
		percent int
		want    byte
	}{
		{0, 0},
		{1, 3},
		{20, 51},
		{49, 125},
		{50, 128},
		{99, 252},
		{100, 255},
	}
	for _, tt := range tests {
		got, err := fan.DeviceDuty(tt.percent)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "percent %d", tt.percent)
	}

	for _, p := range []int{-1, 101, 1000} {
		_, err := fan.DeviceDuty(p)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument), "percent %d", p)
	}
}

func TestSetFanDuty(t *testing.T) {
	fake := drivertest.New(2)
	fans, _ := openFans(t, fake)

	require.NoError(t, fans.SetFanDuty(1, 50))

	assert.Equal(t, []string{"fan_count", "select_fan(1)", "set_test_mode(1)", "set_duty(128)"}, fake.Calls())
	assert.Equal(t, byte(1), fake.TestMode(1))
	assert.Equal(t, byte(128), fake.Duty(1))
}

func TestSetFanDutyRejectsOutOfRangeWithoutWriting(t *testing.T) {
	fake := drivertest.New(2)
	fans, _ := openFans(t, fake)

	err := fans.SetFanDuty(0, 101)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
	err = fans.SetAllFansDuty(-5)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))

	assert.Empty(t, fake.Calls())
}

func TestSetFanDutyInvalidIndex(t *testing.T) {
	fake := drivertest.New(2)
	fans, _ := openFans(t, fake)

	for _, idx := range []int{2, 5, -1} {
		err := fans.SetFanDuty(idx, 50)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidIndex), "index %d", idx)
	}
	assert.Empty(t, fake.Writes())

	// session still usable
	require.NoError(t, fans.SetFanDuty(0, 10))
}

func TestSetAllFansDutyIsBestEffort(t *testing.T) {
	fake := drivertest.New(3)
	fake.Fail = map[string]error{"set_duty": stderrors.New("bus error")}
	fake.FailFan = 1
	fans, _ := openFans(t, fake)

	err := fans.SetAllFansDuty(100)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrTransientIO))

	assert.Equal(t, byte(255), fake.Duty(0))
	assert.Equal(t, byte(0), fake.Duty(1))
	assert.Equal(t, byte(255), fake.Duty(2), "fan after the failing one is still attempted")
}

func TestResetAllFans(t *testing.T) {
	fake := drivertest.New(2)
	fans, _ := openFans(t, fake)

	require.NoError(t, fans.SetAllFansDuty(70))
	fake.ResetCalls()

	require.NoError(t, fans.ResetAllFans())
	assert.Equal(t, []string{
		"fan_count",
		"select_fan(0)", "set_test_mode(0)",
		"select_fan(1)", "set_test_mode(0)",
	}, fake.Calls())
	assert.Equal(t, byte(0), fake.TestMode(0))
	assert.Equal(t, byte(0), fake.TestMode(1))

	// idempotent
	require.NoError(t, fans.ResetAllFans())
}

func TestResetAllFansWithoutFans(t *testing.T) {
	fake := drivertest.New(0)
	fans, _ := openFans(t, fake)

	require.NoError(t, fans.ResetAllFans())
	require.NoError(t, fans.ResetAllFans())
	assert.Empty(t, fake.Writes())
}

func TestResetAllFansWhileShuttingDown(t *testing.T) {
	fake := drivertest.New(1)
	fans, s := openFans(t, fake)

	require.True(t, s.BeginShutdown())

	err := fans.SetAllFansDuty(50)
	assert.True(t, errors.HasCode(err, errors.ErrSessionNotActive))
	require.NoError(t, fans.ResetAllFans())
}

func TestFanRPM(t *testing.T) {
	fake := drivertest.New(2)
	fake.SetRPM(0, 2100)
	fake.SetRPM(1, 0)
	fans, _ := openFans(t, fake)

	rpm, err := fans.FanRPM(0)
	require.NoError(t, err)
	assert.Equal(t, 2100, rpm)

	reading, err := fans.Read(1)
	require.NoError(t, err)
	assert.Equal(t, fan.Reading{Index: 1, RPM: 0}, reading, "stalled fan is reported as zero, not defaulted")

	_, err = fans.FanRPM(2)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidIndex))
}

func TestFanCount(t *testing.T) {
	fans, _ := openFans(t, drivertest.New(0))

	n, err := fans.FanCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
