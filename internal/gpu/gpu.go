// Package gpu enumerates GPUs and reports their core temperature.
package gpu

import "context"

// Info describes one enumerated GPU.
type Info struct {
	Index       int
	Name        string
	Temperature int
}

// Enumerator lists the GPUs present on the host.
type Enumerator interface {
	GPUs(ctx context.Context) ([]Info, error)
	Close() error
}
