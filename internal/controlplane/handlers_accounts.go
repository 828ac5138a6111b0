package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reddit-fleet/controller/internal/models"
)

// handleCreateAccount implements POST /accounts: encrypts the inline
// secret/password at rest via internal/security before persisting (spec
// §6 "Credentials ... mask all secrets with a constant sentinel").
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountName == "" {
		writeError(w, http.StatusBadRequest, "account_name is required")
		return
	}

	encryptedSecret, err := s.cipher.Encrypt(req.ClientSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt client secret: "+err.Error())
		return
	}
	encryptedPassword, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encrypt password: "+err.Error())
		return
	}

	account := &models.Account{
		AccountName:  req.AccountName,
		ClientID:     req.ClientID,
		ClientSecret: encryptedSecret,
		Username:     req.Username,
		Password:     encryptedPassword,
		UserAgent:    req.UserAgent,
	}
	if err := s.store.UpsertAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, account.Mask())
}

// handleListAccounts implements GET /accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.GetAllAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	masked := make([]models.MaskedAccount, 0, len(accounts))
	for _, account := range accounts {
		masked = append(masked, account.Mask())
	}
	writeJSON(w, http.StatusOK, masked)
}

// handleGetAccount implements GET /accounts/{n}.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["n"]
	account, err := s.store.GetAccount(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "no such account")
		return
	}
	writeJSON(w, http.StatusOK, account.Mask())
}

// handleDeleteAccount implements DELETE /accounts/{n}.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["n"]
	if err := s.store.DeleteAccount(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAccountStats implements GET /accounts/stats.
func (s *Server) handleAccountStats(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.GetAllAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AccountsStatsResponse{TotalAccounts: len(accounts)})
}
