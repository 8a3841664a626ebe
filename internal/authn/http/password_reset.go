package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/doorman/internal/authn/service"
	"github.com/aussiebroadwan/doorman/pkg/httpx"
	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

// ResetRequestHandler serves POST /v1/auth/password-reset/request.
type ResetRequestHandler struct {
	ResetService *service.ResetService
}

type resetRequestBody struct {
	Email string `json:"email"`
}

type resetRequestResponse struct {
	Status string `json:"status"`
}

// ServeHTTP initiates a password reset. The response is 200 with an
// identical body whether or not the email maps to an account, so this
// endpoint cannot be used to enumerate accounts.
func (h *ResetRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body resetRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errInvalidRequest.WriteError(w)
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" {
		errInvalidRequest.WriteError(w)
		return
	}

	h.ResetService.Request(r.Context(), service.ResetRequest{
		Email:     body.Email,
		SourceIP:  httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	})

	httpx.WriteJSON(w, http.StatusOK, resetRequestResponse{
		Status: "if the account exists, a reset token has been sent",
	})
}

// ResetConfirmHandler serves POST /v1/auth/password-reset/confirm.
type ResetConfirmHandler struct {
	ResetService *service.ResetService
}

type resetConfirmBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ServeHTTP completes a reset. Unknown, expired, and already-used tokens all
// collapse to the same 401.
func (h *ResetConfirmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var body resetConfirmBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.Token == "" || body.NewPassword == "" {
		errInvalidRequest.WriteError(w)
		return
	}

	err := h.ResetService.Confirm(ctx, service.ConfirmRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
		SourceIP:    httpx.IPKeyExtractor(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResetTokenNotFound),
			errors.Is(err, service.ErrResetTokenExpired),
			errors.Is(err, service.ErrResetTokenAlreadyUsed):
			errInvalidToken.WriteError(w)
		default:
			log.Error("reset confirm failed", "err", err)
			errServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resetRequestResponse{Status: "password updated"})
}
