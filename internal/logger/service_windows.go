//go:build windows

package logger

func isProcessGroupLeader() bool {
	return false
}
