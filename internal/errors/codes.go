package errors

// Driver and session errors
const (
	ErrDriverInit       ErrorCode = "driver_init_failed"
	ErrDriverShutdown   ErrorCode = "driver_shutdown_failed"
	ErrSessionNotActive ErrorCode = "session_not_active"
	ErrAlreadyRunning   ErrorCode = "already_running"
)

// Caller errors. The operation is aborted, the session stays usable.
const (
	ErrInvalidIndex    ErrorCode = "invalid_fan_index"
	ErrInvalidArgument ErrorCode = "invalid_argument"
)

// Recoverable runtime errors
const (
	ErrTemperatureUnavailable ErrorCode = "temperature_unavailable"
	ErrTransientIO            ErrorCode = "transient_io"
	ErrTimeout                ErrorCode = "operation_timeout"
)

// Configuration errors
const (
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
)

// Application errors
const (
	ErrInternal     ErrorCode = "internal_error"
	ErrResetFans    ErrorCode = "reset_fans_failed"
	ErrFanTest      ErrorCode = "fan_test_failed"
	ErrInitErrorLog ErrorCode = "init_error_log_failed"
	ErrInitMetrics  ErrorCode = "init_metrics_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrDriverInit:             "Failed to initialize fan driver",
	ErrDriverShutdown:         "Failed to shut down fan driver",
	ErrSessionNotActive:       "Driver session is not active",
	ErrAlreadyRunning:         "Another instance is already running",
	ErrInvalidIndex:           "Fan index out of range",
	ErrInvalidArgument:        "Invalid argument provided",
	ErrTemperatureUnavailable: "Temperature reading unavailable",
	ErrTransientIO:            "Device I/O failed",
	ErrTimeout:                "Operation timed out",
	ErrInvalidConfig:          "Invalid configuration",
	ErrReadConfig:             "Failed to read configuration",
	ErrBindFlags:              "Failed to bind flags",
	ErrInvalidInterval:        "Invalid interval value",
	ErrInvalidLogLevel:        "Invalid log level",
	ErrInternal:               "Internal error occurred",
	ErrResetFans:              "Failed to reset fans to automatic mode",
	ErrFanTest:                "Fan test failed",
	ErrInitErrorLog:           "Failed to initialize error log",
	ErrInitMetrics:            "Failed to initialize metrics",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
