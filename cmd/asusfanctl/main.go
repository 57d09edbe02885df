package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"codeberg.org/mutker/asusfanctl/internal/config"
	"codeberg.org/mutker/asusfanctl/internal/control"
	"codeberg.org/mutker/asusfanctl/internal/driver"
	"codeberg.org/mutker/asusfanctl/internal/errlog"
	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/fan"
	"codeberg.org/mutker/asusfanctl/internal/fantest"
	"codeberg.org/mutker/asusfanctl/internal/gpu"
	"codeberg.org/mutker/asusfanctl/internal/lifecycle"
	"codeberg.org/mutker/asusfanctl/internal/logger"
	"codeberg.org/mutker/asusfanctl/internal/metrics"
	"codeberg.org/mutker/asusfanctl/internal/monitor"
	"codeberg.org/mutker/asusfanctl/internal/pid"
	"codeberg.org/mutker/asusfanctl/internal/sensors"
	"github.com/spf13/pflag"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		fmt.Printf("invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Str("config_file", cfg.ConfigFile).Str("mode", string(cfg.Mode)).Msg("Config loaded")
}

func main() {
	if err := run(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("asusfanctl failed")
		}
		logger.Fatal().Err(err).Msg("asusfanctl failed")
	}
}

func run() error {
	if cfg.PIDFile {
		pf := pid.New("")
		if err := pf.Write(); err != nil {
			return err
		}
		defer func() {
			if err := pf.Remove(); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	log := logger.Default()

	session, err := driver.Open(driver.NewWinIO(cfg.DLLPath), log)
	if err != nil {
		recordStartupFailure(err, log)
		return err
	}

	sink, err := errlog.New(errlog.Config{
		Backend: cfg.ErrorLog.Backend,
		Path:    cfg.ErrorLog.Path,
		Session: session.ID(),
	}, log)
	if err != nil {
		_ = session.Close()
		return err
	}
	defer sink.Close()

	// closed after the lifecycle manager has stopped every loop
	gpus := gpu.NewEnumerator(log)
	defer gpus.Close()
	temps := sensors.NewReader(session, sensors.NewHost(log), gpus, log)

	fans := fan.New(session, log)
	manager := lifecycle.New(session, fans, log)
	defer func() {
		if err := manager.Shutdown(); err != nil {
			sink.Log(err, debug.Stack())
			logger.Error().Err(err).Msg("Shutdown did not complete cleanly")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	switch cfg.Mode {
	case config.ModeReset:
		return resetFans(fans)
	case config.ModeTest:
		return runFanTest(ctx, fans, sink, log)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Listen != "" {
		collector = metrics.NewCollector()
		srv := metrics.NewServer(cfg.Metrics.Listen, collector, log)
		if err := srv.Start(); err != nil {
			sink.Log(err, nil)
			logger.Error().Err(err).Msg("Metrics endpoint unavailable")
		} else {
			manager.Track(srv)
		}
	}

	switch cfg.Mode {
	case config.ModeDuty:
		applyDuty(fans, sink)
	case config.ModeAuto:
		if err := startAuto(ctx, temps, fans, manager, collector, sink, log); err != nil {
			return err
		}
	}

	return monitorUntilDone(ctx, temps, fans, manager, collector, sink, log)
}

func monitorUntilDone(
	ctx context.Context,
	temps monitor.Thermometer,
	fans *fan.Controller,
	manager *lifecycle.Manager,
	collector *metrics.Collector,
	sink errlog.Sink,
	log logger.Logger,
) error {
	loop := monitor.New(monitor.Config{
		Interval:    cfg.IntervalDuration(),
		MaxRatedRPM: cfg.MaxRatedRPM,
	}, temps, fans, sink, log)
	loop.Subscribe(monitor.NewLogSubscriber(log, cfg.LogTicks))
	if collector != nil {
		loop.Subscribe(collector)
	}

	if err := loop.Start(ctx); err != nil {
		return err
	}
	manager.Track(loop)
	logger.Info().Dur("interval", cfg.IntervalDuration()).Msg("Monitor mode activated. Logging fan status...")

	<-ctx.Done()

	return nil
}

func startAuto(
	ctx context.Context,
	temps control.Thermometer,
	fans *fan.Controller,
	manager *lifecycle.Manager,
	collector *metrics.Collector,
	sink errlog.Sink,
	log logger.Logger,
) error {
	ctrl := control.New(control.Config{
		Setpoint:       cfg.Setpoint,
		SampleInterval: cfg.IntervalDuration(),
		RateLimit:      cfg.RateLimit,
		SettleDelay:    cfg.SettleDuration(),
	}, temps, fans, log)

	observe := func(res control.Result) {
		if collector != nil {
			collector.ObserveAdjustment(res)
		}
	}

	if cfg.AutoInterval == 0 {
		res, err := ctrl.Adjust(ctx)
		if err != nil {
			sink.Log(err, debug.Stack())
			logger.Error().Err(err).Msg("Automatic fan adjustment failed")
			return nil
		}
		observe(res)
		return nil
	}

	runner := control.NewRunner(ctrl, cfg.AutoIntervalDuration(), log)
	runner.OnResult(observe)
	runner.OnError(func(err error) {
		sink.Log(err, debug.Stack())
	})
	if err := runner.Start(ctx); err != nil {
		return err
	}
	manager.Track(runner)

	return nil
}

func applyDuty(fans *fan.Controller, sink errlog.Sink) {
	if err := fans.SetAllFansDuty(cfg.Duty); err != nil {
		sink.Log(err, debug.Stack())
		logger.Error().Err(err).Int("duty", cfg.Duty).Msg("Failed to set fan duty")
		return
	}
	logger.Info().Int("duty", cfg.Duty).Msg("Fan duty set for all fans")
}

func resetFans(fans *fan.Controller) error {
	if err := fans.ResetAllFans(); err != nil {
		return err
	}
	logger.Info().Msg("All fans returned to automatic mode")
	return nil
}

func runFanTest(ctx context.Context, fans *fan.Controller, sink errlog.Sink, log logger.Logger) error {
	opts := fantest.DefaultOptions()
	opts.Progress = func(p float64) {
		logger.Debug().Float64("progress", p).Msg("Fan test")
	}

	rep, err := fantest.Run(ctx, fans, opts, log)
	if err != nil {
		sink.Log(err, debug.Stack())
		return err
	}

	fmt.Printf("Fan 1: avg %d RPM, max %d RPM, %s\n", rep.Fans[0].AverageRPM, rep.Fans[0].MaxRPM, rep.Fans[0].Health)
	fmt.Printf("Fan 2: avg %d RPM, max %d RPM, %s\n", rep.Fans[1].AverageRPM, rep.Fans[1].MaxRPM, rep.Fans[1].Health)
	sync := "Bad Sync"
	if rep.InSync {
		sync = "Good Sync"
	}
	fmt.Printf("Sync: %s\nOverall: %s\n", sync, rep.Verdict)

	return nil
}

// recordStartupFailure writes a driver init failure to a sessionless error
// log, best effort.
func recordStartupFailure(err error, log logger.Logger) {
	sink, sinkErr := errlog.New(errlog.Config{
		Backend: cfg.ErrorLog.Backend,
		Path:    cfg.ErrorLog.Path,
	}, log)
	if sinkErr != nil {
		return
	}
	sink.Log(err, debug.Stack())
	_ = sink.Close()
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
