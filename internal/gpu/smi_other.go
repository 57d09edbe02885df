//go:build !linux

package gpu

import (
	"context"
	"os/exec"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

// NewEnumerator returns the platform GPU enumerator.
func NewEnumerator(log logger.Logger) Enumerator {
	return &SMI{run: runSMI, logger: log}
}

func runSMI(ctx context.Context) ([]byte, error) {
	path, err := exec.LookPath(smiBinary)
	if err != nil {
		return nil, errors.New().Wrap(ErrNotInitialized, err)
	}
	//nolint:gosec // G204: fixed binary and arguments
	return exec.CommandContext(ctx, path, smiArgs...).Output()
}
