// Package driver owns the low-level fan I/O interface: the raw driver boundary
// and the Session that holds exclusive access to it.
package driver

// Driver is the raw vendor I/O boundary. Implementations are not safe for
// concurrent use; callers go through a Session.
type Driver interface {
	// Init acquires the underlying I/O interface.
	Init() error
	// Shutdown releases the underlying I/O interface.
	Shutdown() error

	// SelectFan makes index the target of subsequent fan calls.
	SelectFan(index byte) error
	// SetTestMode enables (1) or disables (0) manual control of the selected fan.
	SetTestMode(enabled byte) error
	// SetDuty writes a raw 0-255 duty value to the selected fan.
	SetDuty(value byte) error

	FanCount() (int, error)
	// FanRPM returns the raw RPM counter of the selected fan.
	FanRPM() (int, error)
	// CPUTemperature returns whole degrees Celsius, 0 when the sensor has no data.
	CPUTemperature() (int, error)
}

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
