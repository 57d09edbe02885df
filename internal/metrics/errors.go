package metrics

import "codeberg.org/mutker/asusfanctl/internal/errors"

const (
	ErrInvalidListen = errors.ErrorCode("metrics_invalid_listen_address")
	ErrServe         = errors.ErrorCode("metrics_serve_failed")
)
