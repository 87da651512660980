package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
)

// AccountHandler serves tracked account CRUD endpoints
type AccountHandler struct {
	accounts interfaces.AccountStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts interfaces.AccountStorage, logger arbor.ILogger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		validate: validator.New(),
		logger:   logger,
	}
}

// accountRequest is the create/update payload
type accountRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
	SecUID      string `json:"sec_uid" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// accountResponse never exposes the stored credential, only whether
// one is present.
type accountResponse struct {
	*models.Account
	HasCredential bool `json:"has_credential"`
}

func toResponse(account *models.Account) accountResponse {
	return accountResponse{Account: account, HasCredential: account.Eligible()}
}

// ListHandler handles GET /api/accounts and POST /api/accounts
func (h *AccountHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := h.accounts.List(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to list accounts")
			WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
			return
		}

		responses := make([]accountResponse, 0, len(accounts))
		for _, account := range accounts {
			responses = append(responses, toResponse(account))
		}
		WriteJSON(w, http.StatusOK, responses)

	case http.MethodPost:
		h.createAccount(w, r)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AccountHandler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account := &models.Account{
		ID:          uuid.New().String(),
		DisplayName: req.DisplayName,
		SecUID:      req.SecUID,
		Email:       req.Email,
	}

	if err := h.accounts.Create(r.Context(), account); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create account")
		WriteError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	h.logger.Info().
		Str("account_id", account.ID).
		Str("display_name", account.DisplayName).
		Msg("Account created")

	WriteJSON(w, http.StatusCreated, toResponse(account))
}

// AccountHandler handles GET/PATCH/DELETE /api/accounts/{id}
func (h *AccountHandler) AccountHandler(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		account, err := h.accounts.Get(r.Context(), id)
		if err == interfaces.ErrAccountNotFound {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to get account")
			return
		}
		WriteJSON(w, http.StatusOK, toResponse(account))

	case http.MethodPatch:
		h.patchAccount(w, r, id)

	case http.MethodDelete:
		err := h.accounts.Delete(r.Context(), id)
		if err == interfaces.ErrAccountNotFound {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete account")
			return
		}
		WriteSuccess(w, "Account deleted")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AccountHandler) patchAccount(w http.ResponseWriter, r *http.Request, id string) {
	account, err := h.accounts.Get(r.Context(), id)
	if err == interfaces.ErrAccountNotFound {
		WriteError(w, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		SecUID      *string `json:"sec_uid"`
		Email       *string `json:"email" validate:"omitempty,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.DisplayName != nil {
		account.DisplayName = *req.DisplayName
	}
	if req.SecUID != nil {
		account.SecUID = *req.SecUID
	}
	if req.Email != nil {
		account.Email = *req.Email
	}

	if err := h.accounts.Update(r.Context(), account); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to update account")
		return
	}

	WriteJSON(w, http.StatusOK, toResponse(account))
}
