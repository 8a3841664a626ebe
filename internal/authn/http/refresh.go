package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/doorman/internal/authn/service"
	"github.com/aussiebroadwan/doorman/pkg/httpx"
	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

// RefreshHandler serves POST /v1/auth/refresh.
type RefreshHandler struct {
	AuthService *service.AuthService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Device       string `json:"device,omitempty"`
}

// ServeHTTP rotates a refresh token. Expired, revoked, reused, and unknown
// tokens all produce the identical 401; reuse additionally triggers the
// session-family revocation inside the service.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		errInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(ctx, service.RefreshRequest{
		RefreshToken:     req.RefreshToken,
		SourceIP:         httpx.IPKeyExtractor(r),
		UserAgent:        r.UserAgent(),
		DeviceDescriptor: req.Device,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired),
			errors.Is(err, service.ErrTokenRevoked),
			errors.Is(err, service.ErrTokenReuseDetected),
			errors.Is(err, service.ErrTokenMalformed):
			errInvalidToken.WriteError(w)
		default:
			log.Error("refresh failed", "err", err)
			errServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}
