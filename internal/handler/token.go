package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/study-timer/internal/service"
)

// TokenHandler issues JWTs for password accounts. The browser client keeps
// both tokens and sends the access token as "Authorization: Bearer <jwt>".
type TokenHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(accounts *service.AccountService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{accounts: accounts, logger: logger}
}

// HandleObtain exchanges credentials for an access and a refresh token.
//
// HTTP: POST /api/token/
// REQUEST BODY: {"username": "alice", "password": "..."}
// Response: {"access": "...", "refresh": "..."}, 401 on bad credentials
func (h *TokenHandler) HandleObtain(w http.ResponseWriter, r *http.Request) {
	var username, password string
	req, err := decodeObject(w, r)
	if err == nil {
		err = req.Strings(map[string]*string{"username": &username, "password": &password})
	}
	if err != nil {
		writeInvalidJSON(w)
		return
	}

	pair, err := h.accounts.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh exchanges a refresh token for a new access token.
//
// HTTP: POST /api/token/refresh/
// REQUEST BODY: {"refresh": "..."}
// Response: {"access": "..."}
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var refresh string
	req, err := decodeObject(w, r)
	if err == nil {
		err = req.Strings(map[string]*string{"refresh": &refresh})
	}
	if err != nil {
		writeInvalidJSON(w)
		return
	}

	access, err := h.accounts.Refresh(r.Context(), refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}
