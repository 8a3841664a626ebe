package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/doorman/internal/authn/service"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
	"github.com/aussiebroadwan/doorman/pkg/httpx"
	"github.com/aussiebroadwan/doorman/pkg/jwtx"
	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

// LogoutHandler serves POST /v1/auth/logout. The caller authenticates with
// their access token. With an empty body every refresh token they hold is
// revoked in one bulk statement; supplying a refresh_token revokes just that
// session.
type LogoutHandler struct {
	AuthService *service.AuthService
	Codec       *jwtx.Codec
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type logoutResponse struct {
	RevokedSessions int64 `json:"revoked_sessions"`
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token, ok := bearerToken(r)
	if !ok {
		errUnauthorized.WriteError(w)
		return
	}
	claims, err := h.Codec.Verify(token)
	if err != nil {
		errUnauthorized.WriteError(w)
		return
	}

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errInvalidRequest.WriteError(w)
		return
	}

	if req.RefreshToken != "" {
		err := h.AuthService.Logout(ctx, claims.Subject, req.RefreshToken, httpx.IPKeyExtractor(r))
		switch {
		case err == nil:
			httpx.WriteJSON(w, http.StatusOK, logoutResponse{RevokedSessions: 1})
		case errors.Is(err, store.ErrNotFound):
			errInvalidToken.WriteError(w)
		default:
			log.Error("logout failed", "err", err)
			errServerError.WriteError(w)
		}
		return
	}

	n, err := h.AuthService.LogoutAll(ctx, claims.Subject, httpx.IPKeyExtractor(r))
	if err != nil {
		log.Error("logout failed", "err", err)
		errServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, logoutResponse{RevokedSessions: n})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
