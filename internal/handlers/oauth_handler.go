package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/destinations/youtube"
	"github.com/ternarybob/dragonfly/internal/interfaces"
)

// OAuthHandler drives the destination OAuth consent flow. The consent
// URL carries the account ID as state; the callback exchanges the code
// and stores the refresh token on that account.
type OAuthHandler struct {
	accounts interfaces.AccountStorage
	uploader *youtube.Uploader
	logger   arbor.ILogger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(accounts interfaces.AccountStorage, uploader *youtube.Uploader, logger arbor.ILogger) *OAuthHandler {
	return &OAuthHandler{
		accounts: accounts,
		uploader: uploader,
		logger:   logger,
	}
}

// AuthURLHandler handles GET /api/youtube/auth-url/{accountID}
func (h *OAuthHandler) AuthURLHandler(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if _, err := h.accounts.Get(r.Context(), accountID); err != nil {
		if err == interfaces.ErrAccountNotFound {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"auth_url": h.uploader.AuthURL(accountID),
	})
}

// CallbackHandler handles GET /api/youtube/oauth2callback
func (h *OAuthHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	code := r.URL.Query().Get("code")
	accountID := r.URL.Query().Get("state")
	if code == "" || accountID == "" {
		WriteError(w, http.StatusBadRequest, "Missing code or state parameter")
		return
	}

	refreshToken, err := h.uploader.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("OAuth code exchange failed")
		WriteError(w, http.StatusBadGateway, "OAuth code exchange failed")
		return
	}

	if err := h.accounts.SetRefreshToken(r.Context(), accountID, refreshToken); err != nil {
		if err == interfaces.ErrAccountNotFound {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to store refresh token")
		WriteError(w, http.StatusInternalServerError, "Failed to store credential")
		return
	}

	h.logger.Info().Str("account_id", accountID).Msg("Destination credential stored")

	WriteSuccess(w, "Account authorized")
}
