package monitor

import "codeberg.org/mutker/asusfanctl/internal/logger"

// LogSubscriber writes each tick to the process log, at info level when
// verbose and debug otherwise.
type LogSubscriber struct {
	logger  logger.Logger
	verbose bool
}

func NewLogSubscriber(log logger.Logger, verbose bool) *LogSubscriber {
	return &LogSubscriber{logger: log, verbose: verbose}
}

func (s *LogSubscriber) OnTick(ev Event) {
	e := s.logger.Debug()
	if s.verbose {
		e = s.logger.Info()
	}

	zev := e.Int("cpu_temperature", ev.CPU.Celsius).
		Int("fan1_rpm", ev.Fan1RPM).
		Int("fan2_rpm", ev.Fan2RPM).
		Float64("speed_percent", ev.SpeedPercent)
	if ev.GPU.Available {
		zev = zev.Int("gpu_temperature", ev.GPU.Celsius)
	} else {
		zev = zev.Str("gpu_temperature", "unavailable")
	}
	zev.Msg("")
}

func (s *LogSubscriber) OnError(ev ErrorEvent) {
	s.logger.Warn().Str("error", ev.Message).Msg("Monitor reported an error")
}
