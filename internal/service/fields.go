package service

// Standard structured-logging field names. Use these exact names so
// log lines stay queryable across the whole bridge.
const (
	// Core identifiers
	LogFieldAccount   = "account"
	LogFieldMessageID = "message_id"
	LogFieldRecipient = "recipient"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldMessageKind = "message_kind"
	LogFieldTier        = "tier"
	LogFieldDirection   = "direction" // "incoming" or "outgoing"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and request tracing
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldUserAgent  = "user_agent"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)
