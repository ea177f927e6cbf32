package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// InvalidInput
	CodeUnknownExchange:    "Unknown exchange identifier",
	CodeSymbolMismatch:     "Symbol does not match pair context",
	CodeMalformedMessage:   "Malformed exchange message",
	CodeEmptySymbol:        "Symbol must not be empty",
	CodeSubscribeNotReady:  "Client is not ready to accept subscriptions",
	CodeUseOfDestroyedPool: "Connection pool has been destroyed",

	// TransientNetwork
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketDialTimeout:     "WebSocket dial timed out",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeMaxRetriesReached:        "Maximum reconnect attempts reached",

	// Protocol
	CodeExchangeProtocolError: "Exchange returned a protocol error",
	CodeSymbolUnavailable:     "Symbol not available on this exchange",
	CodeAuthenticationFailed:  "Private channel authentication failed",

	// ResourceExhaustion
	CodePoolCapacityReached: "Connection pool reached per-connection capacity",

	// Persistence
	CodeRepositoryUpsertFailed:    "Opportunity repository upsert failed",
	CodeRepositoryMarkEndedFailed: "Opportunity repository mark-ended failed",

	// Cache errors
	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",

	// REST fallback
	CodeRestFallbackFailed: "REST fallback request failed",
}
