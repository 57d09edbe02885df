//go:build windows

package pid

import "golang.org/x/sys/windows"

const stillActive = 259

func processAlive(pid int) bool {
	//nolint:gosec // G115: pids fit in uint32 on Windows
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
