//go:build !windows

package driver

import (
	"fmt"
	"runtime"
)

const DefaultDLL = "AsusWinIO64.dll"

// WinIO is unavailable off Windows; Init always fails so Open reports a
// DriverInitError before any fan is touched.
type WinIO struct {
	path string
}

func NewWinIO(path string) *WinIO {
	if path == "" {
		path = DefaultDLL
	}
	return &WinIO{path: path}
}

func (w *WinIO) Init() error {
	return fmt.Errorf("%s requires windows, running on %s", w.path, runtime.GOOS)
}

func (*WinIO) Shutdown() error { return nil }
func (*WinIO) SelectFan(byte) error { return errUnsupported }
func (*WinIO) SetTestMode(byte) error { return errUnsupported }
func (*WinIO) SetDuty(byte) error { return errUnsupported }
func (*WinIO) FanCount() (int, error) { return 0, errUnsupported }
func (*WinIO) FanRPM() (int, error) { return 0, errUnsupported }
func (*WinIO) CPUTemperature() (int, error) { return 0, errUnsupported }

var errUnsupported = fmt.Errorf("winio: unsupported platform %s", runtime.GOOS)
