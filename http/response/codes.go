package response

import "net/http"

const (
	// General & System
	ErrSystem         = "SYS_INTERNAL_ERROR"
	ErrBadRequest     = "SYS_BAD_REQUEST"
	ErrServiceUnavail = "SYS_SERVICE_UNAVAILABLE"
	ErrGatewayTimeout = "SYS_GATEWAY_TIMEOUT"
	ErrMethodNotAllow = "SYS_METHOD_NOT_ALLOWED"

	// Validation
	ErrValidation    = "VAL_INVALID_INPUT"
	ErrMissingField  = "VAL_MISSING_FIELD"
	ErrInvalidFormat = "VAL_INVALID_FORMAT"

	// Auth
	ErrMissingToken = "AUTH_MISSING_TOKEN"
	ErrInvalidToken = "AUTH_INVALID_TOKEN"
	ErrForbidden    = "AUTH_FORBIDDEN"

	// Resource / Data (Database Mapped)
	ErrNotFound        = "RES_NOT_FOUND"
	ErrAlreadyExists   = "RES_ALREADY_EXISTS"
	ErrConflict        = "RES_CONFLICT"
	ErrVersionMismatch = "RES_VERSION_MISMATCH"

	// Business Logic
	ErrRateLimit = "BIZ_RATE_LIMIT_EXCEEDED"
)

func MapStatus(code string) int {
	switch code {
	case ErrBadRequest, ErrValidation, ErrMissingField, ErrInvalidFormat:
		return http.StatusBadRequest

	case ErrMissingToken, ErrInvalidToken:
		return http.StatusUnauthorized

	case ErrForbidden:
		return http.StatusForbidden

	case ErrNotFound:
		return http.StatusNotFound

	case ErrMethodNotAllow:
		return http.StatusMethodNotAllowed

	case ErrAlreadyExists, ErrConflict, ErrVersionMismatch:
		return http.StatusConflict

	case ErrRateLimit:
		return http.StatusTooManyRequests

	case ErrServiceUnavail, ErrGatewayTimeout:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
