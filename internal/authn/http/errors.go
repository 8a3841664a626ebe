package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/doorman/pkg/httpx"
)

// APIError is the uniform error envelope every endpoint returns. Failure
// detail is deliberately coarse; the precise reason lives in the audit trail
// only.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error as a JSON response with no-store caching.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

var (
	errInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_request",
		Description: "the request is malformed or missing required parameters",
	}

	// errInvalidCredentials covers every login denial: unknown email,
	// wrong password, inactive account. One body for all of them.
	errInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "invalid_credentials",
		Description: "the provided credentials are invalid",
	}

	// errInvalidToken covers every refresh denial: unknown, expired,
	// revoked, reused.
	errInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "invalid_token",
		Description: "the provided token is invalid",
	}

	errUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "unauthorized",
		Description: "a valid bearer token is required",
	}

	errServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        "server_error",
		Description: "an internal error occurred",
	}
)

// writeLocked reports a throttled scope: 429 plus a Retry-After header
// carrying the exact remaining lockout in whole seconds.
func writeLocked(w http.ResponseWriter, retryAfterSeconds int64) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
	e := &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        "too_many_attempts",
		Description: "too many failed attempts, retry later",
	}
	e.WriteError(w)
}
