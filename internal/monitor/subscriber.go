package monitor

import (
	"time"

	"codeberg.org/mutker/asusfanctl/internal/sensors"
)

// Event is one successful tick.
type Event struct {
	Time         time.Time
	CPU          sensors.Temperature
	GPU          sensors.Temperature
	FanCount     int
	Fan1RPM      int
	Fan2RPM      int
	SpeedPercent float64
}

// ErrorEvent reports a failed tick. The loop continues after it.
type ErrorEvent struct {
	Time    time.Time
	Err     error
	Message string
}

// Subscriber receives tick outcomes on the monitor goroutine. Any hand-off
// to another context is the subscriber's job.
type Subscriber interface {
	OnTick(Event)
	OnError(ErrorEvent)
}

// Funcs adapts plain functions to a Subscriber; nil fields are skipped.
type Funcs struct {
	Tick  func(Event)
	Error func(ErrorEvent)
}

func (f Funcs) OnTick(ev Event) {
	if f.Tick != nil {
		f.Tick(ev)
	}
}

func (f Funcs) OnError(ev ErrorEvent) {
	if f.Error != nil {
		f.Error(ev)
	}
}
