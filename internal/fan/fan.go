// Package fan issues per-fan commands and queries through a driver session.
package fan

import (
	"codeberg.org/mutker/asusfanctl/internal/driver"
	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

const (
	MinDuty = 0
	MaxDuty = 100

	// deviceScale is the top of the hardware duty range.
	deviceScale = 255

	testModeOff byte = 0
	testModeOn  byte = 1
)

// Reading is a raw RPM counter sample. Zero may mean stalled or not yet
// polled and is reported as-is.
type Reading struct {
	Index int
	RPM   int
}

// DeviceDuty maps a percentage onto the device scale, rounding half up:
// 0 -> 0, 50 -> 128, 100 -> 255.
func DeviceDuty(percent int) (byte, error) {
	if percent < MinDuty || percent > MaxDuty {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, struct {
			Percent  int
			Min, Max int
		}{percent, MinDuty, MaxDuty})
	}

	//nolint:gosec // G115: bounded to [0,255] by the range check above
	return byte((percent*deviceScale + MaxDuty/2) / MaxDuty), nil
}

// Controller is the fan control interface over a driver session.
type Controller struct {
	session *driver.Session
	logger  logger.Logger
}

func New(session *driver.Session, log logger.Logger) *Controller {
	return &Controller{
		session: session,
		logger:  log,
	}
}

// FanCount returns the number of fans reported by the device; 0 is valid.
func (c *Controller) FanCount() (int, error) {
	var count int
	err := c.session.Do(func(d driver.Driver) error {
		var err error
		count, err = fanCount(d)
		return err
	})

	return count, err
}

// SetFanDuty puts fan index into manual mode at percent. The fan stays in
// manual mode until ResetAllFans.
func (c *Controller) SetFanDuty(index, percent int) error {
	value, err := DeviceDuty(percent)
	if err != nil {
		return err
	}

	return c.session.DoActive(func(d driver.Driver) error {
		count, err := fanCount(d)
		if err != nil {
			return err
		}
		if err := checkIndex(index, count); err != nil {
			return err
		}

		return writeDuty(d, index, value)
	})
}

// SetAllFansDuty applies percent to every fan. A failure on one fan does not
// stop the others; the first error is returned once all fans were attempted.
func (c *Controller) SetAllFansDuty(percent int) error {
	if _, err := DeviceDuty(percent); err != nil {
		return err
	}

	count, err := c.FanCount()
	if err != nil {
		return err
	}

	var first error
	for i := 0; i < count; i++ {
		if err := c.SetFanDuty(i, percent); err != nil {
			c.logger.Warn().Err(err).Int("fan", i).Int("duty", percent).Msg("Failed to set fan duty")
			if first == nil {
				first = err
			}
		}
	}

	if first == nil {
		c.logger.Debug().Int("fans", count).Int("duty", percent).Msg("Set duty for all fans")
	}

	return first
}

// ResetAllFans returns every fan to the hardware's automatic curve. It is
// best-effort across fans and allowed while the session is shutting down.
func (c *Controller) ResetAllFans() error {
	var first error
	var count int

	err := c.session.Do(func(d driver.Driver) error {
		var err error
		if count, err = fanCount(d); err != nil {
			return err
		}

		for i := 0; i < count; i++ {
			//nolint:gosec // G115: fan indices come from the device count
			if err := d.SelectFan(byte(i)); err != nil {
				first = keepFirst(first, wrapIO(err))
				continue
			}
			if err := d.SetTestMode(testModeOff); err != nil {
				first = keepFirst(first, wrapIO(err))
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if first != nil {
		return errors.New().Wrap(errors.ErrResetFans, first)
	}
	c.logger.Debug().Int("fans", count).Msg("All fans returned to automatic control")

	return nil
}

// FanRPM selects fan index and returns its raw RPM counter.
func (c *Controller) FanRPM(index int) (int, error) {
	var rpm int
	err := c.session.Do(func(d driver.Driver) error {
		count, err := fanCount(d)
		if err != nil {
			return err
		}
		if err := checkIndex(index, count); err != nil {
			return err
		}
		//nolint:gosec // G115: index checked against the device count
		if err := d.SelectFan(byte(index)); err != nil {
			return wrapIO(err)
		}
		if rpm, err = d.FanRPM(); err != nil {
			return wrapIO(err)
		}
		return nil
	})

	return rpm, err
}

// Read returns a Reading for fan index.
func (c *Controller) Read(index int) (Reading, error) {
	rpm, err := c.FanRPM(index)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Index: index, RPM: rpm}, nil
}

func fanCount(d driver.Driver) (int, error) {
	count, err := d.FanCount()
	if err != nil {
		return 0, wrapIO(err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

func writeDuty(d driver.Driver, index int, value byte) error {
	//nolint:gosec // G115: index checked against the device count
	if err := d.SelectFan(byte(index)); err != nil {
		return wrapIO(err)
	}
	if err := d.SetTestMode(testModeOn); err != nil {
		return wrapIO(err)
	}
	if err := d.SetDuty(value); err != nil {
		return wrapIO(err)
	}
	return nil
}

func checkIndex(index, count int) error {
	if index < 0 || index >= count {
		return errors.New().WithData(errors.ErrInvalidIndex, struct {
			Index, Count int
		}{index, count})
	}
	return nil
}

func wrapIO(err error) error {
	return errors.New().Wrap(errors.ErrTransientIO, err)
}

func keepFirst(first, err error) error {
	if first != nil {
		return first
	}
	return err
}
