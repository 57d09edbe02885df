package gpu

import "codeberg.org/mutker/asusfanctl/internal/errors"

const (
	ErrNotInitialized        = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed            = errors.ErrorCode("gpu_init_failed")
	ErrShutdownFailed        = errors.ErrorCode("gpu_shutdown_failed")
	ErrDeviceCountFailed     = errors.ErrorCode("gpu_device_count_failed")
	ErrDeviceNotFound        = errors.ErrorCode("gpu_device_not_found")
	ErrTemperatureReadFailed = errors.ErrorCode("gpu_temperature_read_failed")
	ErrQueryFailed           = errors.ErrorCode("gpu_query_failed")
	ErrClosed                = errors.ErrorCode("gpu_enumerator_closed")
)
