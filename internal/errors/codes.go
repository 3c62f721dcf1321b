package errors

const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrSaveConfig      ErrorCode = "save_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrWatchConfig     ErrorCode = "watch_config_failed"

	// Game list errors
	ErrAlreadyExists    ErrorCode = "already_exists"
	ErrResourceNotFound ErrorCode = "resource_not_found"

	// Control loop errors
	ErrTelemetryUnavailable ErrorCode = "telemetry_unavailable"
	ErrApplyFailed          ErrorCode = "apply_failed"
	ErrLockPoisoned         ErrorCode = "lock_poisoned"
	ErrTimeout              ErrorCode = "operation_timeout"

	// IPC errors
	ErrProtocol     ErrorCode = "protocol_error"
	ErrListenSocket ErrorCode = "listen_socket_failed"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:             "Internal error occurred",
	ErrInvalidArgument:      "Invalid argument provided",
	ErrUnavailable:          "Service unavailable",
	ErrAlreadyRunning:       "Another instance is already running",
	ErrInvalidConfig:        "Invalid configuration",
	ErrMissingConfig:        "Missing configuration",
	ErrBindFlags:            "Failed to bind flags",
	ErrReadConfig:           "Failed to read configuration",
	ErrSaveConfig:           "Failed to save configuration",
	ErrInvalidInterval:      "Invalid interval value",
	ErrInvalidLogLevel:      "Invalid log level",
	ErrWatchConfig:          "Failed to watch configuration",
	ErrAlreadyExists:        "Package already exists",
	ErrResourceNotFound:     "Package not found",
	ErrTelemetryUnavailable: "Telemetry unavailable",
	ErrApplyFailed:          "Failed to apply tuning",
	ErrLockPoisoned:         "lock poisoned",
	ErrTimeout:              "Operation timed out",
	ErrProtocol:             "Invalid command",
	ErrListenSocket:         "Failed to listen on socket",
	ErrInitFailed:           "Initialization failed",
	ErrShutdownFailed:       "Shutdown failed",
	ErrInitMetrics:          "Failed to initialize metrics",
	ErrCollectMetrics:       "Failed to collect metrics data",
	ErrCloseMetrics:         "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
