// Package drivertest provides a scriptable in-memory driver that records
// every boundary call.
package drivertest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Fake implements driver.Driver.
type Fake struct {
	mu sync.Mutex

	// Fans is the count reported by FanCount.
	Fans int
	// RPM is the per-fan counter returned by FanRPM for the selected fan.
	RPM map[int]int
	// CPU is returned by CPUTemperature; 0 means "no data".
	CPU int
	// InitErr makes Init fail.
	InitErr error
	// Fail maps a call name (e.g. "set_duty") to the error it returns.
	Fail map[string]error
	// FailFan limits Fail to calls made while this fan is selected (-1 = any).
	FailFan int
	// Delay is added to every call, used to widen race windows.
	Delay time.Duration
	// OnCall runs after every recorded call, outside the fake's lock.
	OnCall func(call string)

	selected int
	testMode map[int]byte
	duty     map[int]byte
	calls    []string
	inFlight atomic.Int32
	overlap  atomic.Bool
}

// New returns a Fake reporting fans fans, each with a zero RPM counter.
func New(fans int) *Fake {
	return &Fake{
		Fans:     fans,
		RPM:      map[int]int{},
		FailFan:  -1,
		testMode: map[int]byte{},
		duty:     map[int]byte{},
	}
}

func (f *Fake) enter(call string) error {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	name := call
	for i, c := range call {
		if c == '(' {
			name = call[:i]
			break
		}
	}
	var err error
	if e, ok := f.Fail[name]; ok && (f.FailFan < 0 || f.FailFan == f.selected) {
		err = e
	}
	hook := f.OnCall
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	return err
}

func (f *Fake) Init() error {
	if err := f.enter("init"); err != nil {
		return err
	}
	return f.InitErr
}

func (f *Fake) Shutdown() error {
	return f.enter("shutdown")
}

func (f *Fake) SelectFan(index byte) error {
	f.mu.Lock()
	f.selected = int(index)
	f.mu.Unlock()
	return f.enter(fmt.Sprintf("select_fan(%d)", index))
}

func (f *Fake) SetTestMode(enabled byte) error {
	if err := f.enter(fmt.Sprintf("set_test_mode(%d)", enabled)); err != nil {
		return err
	}
	f.mu.Lock()
	f.testMode[f.selected] = enabled
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetDuty(value byte) error {
	if err := f.enter(fmt.Sprintf("set_duty(%d)", value)); err != nil {
		return err
	}
	f.mu.Lock()
	f.duty[f.selected] = value
	f.mu.Unlock()
	return nil
}

func (f *Fake) FanCount() (int, error) {
	if err := f.enter("fan_count"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fans, nil
}

func (f *Fake) FanRPM() (int, error) {
	if err := f.enter("fan_rpm"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RPM[f.selected], nil
}

func (f *Fake) CPUTemperature() (int, error) {
	if err := f.enter("cpu_temp"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CPU, nil
}

// SetCPU changes the reported CPU temperature.
func (f *Fake) SetCPU(c int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CPU = c
}

// SetRPM changes the counter reported for fan index.
func (f *Fake) SetRPM(index, rpm int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RPM[index] = rpm
}

// Calls returns a copy of every recorded call in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// ResetCalls forgets recorded calls.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Writes returns the recorded set_test_mode and set_duty calls.
func (f *Fake) Writes() []string {
	var out []string
	for _, c := range f.Calls() {
		if len(c) > 4 && c[:4] == "set_" {
			out = append(out, c)
		}
	}
	return out
}

// TestMode returns the last test mode written for fan index.
func (f *Fake) TestMode(index int) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.testMode[index]
}

// Duty returns the last raw duty written for fan index.
func (f *Fake) Duty(index int) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty[index]
}

// Overlapped reports whether two calls were ever in flight at once.
func (f *Fake) Overlapped() bool {
	return f.overlap.Load()
}
