package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/service"
	"github.com/aussiebroadwan/doorman/pkg/httpx"
	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	AuthService *service.AuthService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

// ServeHTTP authenticates an email/password pair and returns a token pair.
// Every denial shares the same 401 body; a throttled scope gets 429 with
// Retry-After. Who or what failed is never revealed to the client.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errInvalidRequest.WriteError(w)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		errInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Login(ctx, service.LoginRequest{
		Email:            req.Email,
		Password:         req.Password,
		SourceIP:         httpx.IPKeyExtractor(r),
		UserAgent:        r.UserAgent(),
		DeviceDescriptor: req.Device,
	})
	if err != nil {
		var locked *service.AccountLockedError
		switch {
		case errors.As(err, &locked):
			writeLocked(w, int64(locked.RetryAfter/time.Second))
		case errors.Is(err, service.ErrInvalidCredentials),
			errors.Is(err, service.ErrInactiveAccount):
			errInvalidCredentials.WriteError(w)
		case errors.Is(err, service.ErrUpstreamTimeout):
			log.Error("login timed out against the store", "err", err)
			errServerError.WriteError(w)
		default:
			log.Error("login failed", "err", err)
			errServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}
