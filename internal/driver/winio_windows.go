//go:build windows

package driver

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// DefaultDLL is the vendor library shipped with the board utilities.
const DefaultDLL = "AsusWinIO64.dll"

// WinIO binds the vendor WinIO DLL.
type WinIO struct {
	dll *windows.LazyDLL

	initialize     *windows.LazyProc
	shutdown       *windows.LazyProc
	setFanIndex    *windows.LazyProc
	setFanTestMode *windows.LazyProc
	setFanPwmDuty  *windows.LazyProc
	fanCounts      *windows.LazyProc
	fanRPM         *windows.LazyProc
	cpuTemperature *windows.LazyProc
}

func NewWinIO(path string) *WinIO {
	if path == "" {
		path = DefaultDLL
	}
	dll := windows.NewLazyDLL(path)

	return &WinIO{
		dll:            dll,
		initialize:     dll.NewProc("InitializeWinIo"),
		shutdown:       dll.NewProc("ShutdownWinIo"),
		setFanIndex:    dll.NewProc("HealthyTable_SetFanIndex"),
		setFanTestMode: dll.NewProc("HealthyTable_SetFanTestMode"),
		setFanPwmDuty:  dll.NewProc("HealthyTable_SetFanPwmDuty"),
		fanCounts:      dll.NewProc("HealthyTable_FanCounts"),
		fanRPM:         dll.NewProc("HealthyTable_FanRPM"),
		cpuTemperature: dll.NewProc("Thermal_Read_Cpu_Temperature"),
	}
}

func (w *WinIO) Init() error {
	if err := w.dll.Load(); err != nil {
		return fmt.Errorf("load %s: %w", w.dll.Name, err)
	}

	for _, p := range []*windows.LazyProc{
		w.initialize, w.shutdown, w.setFanIndex, w.setFanTestMode,
		w.setFanPwmDuty, w.fanCounts, w.fanRPM, w.cpuTemperature,
	} {
		if err := p.Find(); err != nil {
			return fmt.Errorf("resolve %s: %w", p.Name, err)
		}
	}

	if r, _, _ := w.initialize.Call(); int32(r) == 0 {
		return fmt.Errorf("InitializeWinIo returned 0 (driver missing or insufficient privilege)")
	}

	return nil
}

func (w *WinIO) Shutdown() error {
	if err := w.shutdown.Find(); err != nil {
		return err
	}
	w.shutdown.Call()
	return nil
}

func (w *WinIO) SelectFan(index byte) error {
	w.setFanIndex.Call(uintptr(index))
	return nil
}

func (w *WinIO) SetTestMode(enabled byte) error {
	w.setFanTestMode.Call(uintptr(enabled))
	return nil
}

func (w *WinIO) SetDuty(value byte) error {
	w.setFanPwmDuty.Call(uintptr(value))
	return nil
}

func (w *WinIO) FanCount() (int, error) {
	r, _, _ := w.fanCounts.Call()
	return int(int32(r)), nil
}

func (w *WinIO) FanRPM() (int, error) {
	r, _, _ := w.fanRPM.Call()
	return int(int32(r)), nil
}

func (w *WinIO) CPUTemperature() (int, error) {
	r, _, _ := w.cpuTemperature.Call()
	return int(int32(r)), nil
}
