package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// InvalidInput: symbol mismatch, unknown exchange, malformed message.
// Surfaced synchronously, never retried.
const (
	CodeUnknownExchange    Code = "UNKNOWN_EXCHANGE"
	CodeSymbolMismatch     Code = "SYMBOL_MISMATCH"
	CodeMalformedMessage   Code = "MALFORMED_MESSAGE"
	CodeEmptySymbol        Code = "EMPTY_SYMBOL"
	CodeSubscribeNotReady  Code = "SUBSCRIBE_NOT_READY"
	CodeUseOfDestroyedPool Code = "USE_OF_DESTROYED_POOL"
)

// TransientNetwork: socket close/read/write failure, dial failure.
// Locally recovered by the reconnection manager; surfaced as error events.
const (
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketDialTimeout     Code = "WEBSOCKET_DIAL_TIMEOUT"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
	CodeMaxRetriesReached        Code = "MAX_RETRIES_REACHED"
)

// Protocol: exchange returns a structured error code. Symbol-unavailable
// variants are debug-level drops, not errors.
const (
	CodeExchangeProtocolError Code = "EXCHANGE_PROTOCOL_ERROR"
	CodeSymbolUnavailable     Code = "SYMBOL_UNAVAILABLE"
	CodeAuthenticationFailed  Code = "AUTHENTICATION_FAILED"
)

// ResourceExhaustion.
const (
	CodePoolCapacityReached Code = "POOL_CAPACITY_REACHED"
)

// Persistence: repository upsert/mark-ended failures.
const (
	CodeRepositoryUpsertFailed    Code = "REPOSITORY_UPSERT_FAILED"
	CodeRepositoryMarkEndedFailed Code = "REPOSITORY_MARK_ENDED_FAILED"
)

// Cache errors
const (
	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"
)

// Circuit breaker errors
const (
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)

// REST fallback errors (used when a WS client's health check is degraded).
const (
	CodeRestFallbackFailed Code = "REST_FALLBACK_FAILED"
)
