// Package fantest drives every fan through a duty ramp and grades the
// resulting speeds.
package fantest

import (
	"context"
	"time"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

const (
	DefaultSettle  = 2 * time.Second
	DefaultStep    = time.Second
	DefaultSamples = 20

	rampStart = 1
	rampEnd   = 100
	rampStep  = 5

	// syncTolerance is the largest RPM gap between two fans still in sync.
	syncTolerance = 500
	// excellentRPM must be exceeded by both fans for an Excellent verdict.
	excellentRPM = 4000
)

type Fans interface {
	FanCount() (int, error)
	FanRPM(index int) (int, error)
	SetAllFansDuty(percent int) error
	ResetAllFans() error
}

type Options struct {
	Settle  time.Duration
	Step    time.Duration
	Samples int
	// Progress receives a fraction in [0,1] after each step.
	Progress func(float64)
}

func DefaultOptions() Options {
	return Options{Settle: DefaultSettle, Step: DefaultStep, Samples: DefaultSamples}
}

type FanResult struct {
	AverageRPM int
	MaxRPM     int
	Health     Health
}

type Report struct {
	Fans    [2]FanResult
	InSync  bool
	Verdict Verdict
}

// Run ramps all fans from 0 to 96% and samples both fan speeds at the top of
// the ramp. Fans are returned to automatic mode whatever the outcome.
func Run(ctx context.Context, fans Fans, opts Options, log logger.Logger) (rep Report, err error) {
	if opts.Samples <= 0 {
		opts.Samples = DefaultSamples
	}
	total := float64(rampEnd + opts.Samples)

	defer func() {
		if resetErr := fans.ResetAllFans(); resetErr != nil {
			log.Error().Err(resetErr).Msg("Failed to reset fans after test")
			if err == nil {
				err = resetErr
			}
		}
	}()

	log.Info().Msg("Fan test started")

	if err := fans.SetAllFansDuty(0); err != nil {
		return Report{}, wrap(err)
	}
	if err := wait(ctx, opts.Settle); err != nil {
		return Report{}, wrap(err)
	}

	for p := rampStart; p < rampEnd; p += rampStep {
		if err := fans.SetAllFansDuty(p); err != nil {
			return Report{}, wrap(err)
		}
		if err := wait(ctx, opts.Step); err != nil {
			return Report{}, wrap(err)
		}
		progress(opts, float64(p)/total)
	}

	count, err := fans.FanCount()
	if err != nil {
		return Report{}, wrap(err)
	}

	var sum, peak [2]int
	for i := 0; i < opts.Samples; i++ {
		if err := wait(ctx, opts.Step); err != nil {
			return Report{}, wrap(err)
		}
		for f := 0; f < min(count, 2); f++ {
			rpm, err := fans.FanRPM(f)
			if err != nil {
				return Report{}, wrap(err)
			}
			sum[f] += rpm
			peak[f] = max(peak[f], rpm)
		}
		progress(opts, float64(i+rampEnd+1)/total)
	}

	for f := range rep.Fans {
		avg := sum[f] / opts.Samples
		rep.Fans[f] = FanResult{AverageRPM: avg, MaxRPM: peak[f], Health: HealthOf(avg)}
	}
	rep.InSync = InSync(rep.Fans[0].AverageRPM, rep.Fans[1].AverageRPM)
	rep.Verdict = VerdictOf(rep.Fans[0].AverageRPM, rep.Fans[1].AverageRPM)

	log.Info().
		Int("fan1_avg_rpm", rep.Fans[0].AverageRPM).
		Int("fan1_max_rpm", rep.Fans[0].MaxRPM).
		Str("fan1_health", rep.Fans[0].Health.String()).
		Int("fan2_avg_rpm", rep.Fans[1].AverageRPM).
		Int("fan2_max_rpm", rep.Fans[1].MaxRPM).
		Str("fan2_health", rep.Fans[1].Health.String()).
		Bool("in_sync", rep.InSync).
		Str("verdict", rep.Verdict.String()).
		Msg("Fan test complete")

	return rep, nil
}

func progress(opts Options, v float64) {
	if opts.Progress != nil {
		opts.Progress(min(v, 1))
	}
}

func wait(ctx context.Context, d time.Duration) error {
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

func wrap(err error) error {
	return errors.New().Wrap(errors.ErrFanTest, err)
}
