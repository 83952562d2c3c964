package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/study-timer/internal/apperror"
	"github.com/sakif/study-timer/internal/auth"
	"github.com/sakif/study-timer/internal/model"
	"github.com/sakif/study-timer/internal/service"
)

const msgInvalidPreferences = "Invalid preferences data."

// UserHandler serves registration, the profile and the username check.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister           → POST /user/register
//   - HandleProfile            → GET  /user/
//   - HandleUpdatePreferences  → PUT  /user/
//   - HandleCheckUsername      → GET  /user/check?username=
type UserHandler struct {
	accounts *service.AccountService
	prefs    *service.PreferenceService
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(accounts *service.AccountService, prefs *service.PreferenceService, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, prefs: prefs, logger: logger}
}

type registerResponse struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Name     *string `json:"name"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /user/register
// REQUEST BODY: {"username": "alice", "password": "...", "name": "Alice"}
//
// 201 with the created account (never the password), or 400 with every
// field problem at once:
//
//	{"error":"validation_error","message":"...","fields":{"username":["..."]}}
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	req, err := decodeObject(w, r)
	if err == nil {
		err = req.Strings(map[string]*string{
			"username": &in.Username,
			"password": &in.Password,
			"name":     &in.Name,
		})
	}
	if err != nil {
		h.logger.Warn("invalid register JSON", slog.String("error", err.Error()))
		writeInvalidJSON(w)
		return
	}

	user, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.NameOrNil(),
	})
}

type profileResponse struct {
	Username    string            `json:"username"`
	Name        *string           `json:"name"`
	Preferences model.Preferences `json:"preferences"`
}

// HandleProfile returns the authenticated user's profile and preferences.
//
// HTTP: GET /user/
// Auth: Required
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrFail(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		Username:    user.Username,
		Name:        user.NameOrNil(),
		Preferences: user.Preferences,
	})
}

type updatePreferencesResponse struct {
	Message     string            `json:"message"`
	Preferences model.Preferences `json:"preferences"`
}

// HandleUpdatePreferences merges a partial preference document.
//
// HTTP: PUT /user/
// Auth: Required
// REQUEST BODY: {"preferences": {"theme": "dark"}}
//
// Anything but a JSON object under "preferences" is a 400 and nothing is
// written. Recognised keys with the wrong shape are skipped silently.
func (h *UserHandler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrFail(w, r)
	if !ok {
		return
	}

	req, err := decodeObject(w, r)
	if err != nil {
		h.logger.Warn("invalid preferences JSON",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, h.logger, apperror.InvalidPayload(msgInvalidPreferences))
		return
	}

	prefs, err := h.prefs.UpdatePreferences(r.Context(), userID, req["preferences"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updatePreferencesResponse{
		Message:     "Preferences updated successfully.",
		Preferences: prefs,
	})
}

// HandleCheckUsername reports whether a username is taken.
//
// HTTP: GET /user/check?username=alice
//
// Response: {"exists": true}. A missing parameter gets the bare 400 body the
// sign-up form expects: {"error": "Username is required."}
func (h *UserHandler) HandleCheckUsername(w http.ResponseWriter, r *http.Request) {
	exists, err := h.accounts.UsernameExists(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		var appErr *apperror.AppError
		if errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": appErr.Message})
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// userIDOrFail returns the user ID RequireAuth stored in the context. It
// writes a 401 and returns false if there is none, which only happens when a
// route was mounted outside the auth group.
func userIDOrFail(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication credentials were not provided or are invalid.",
		})
		return "", false
	}
	return userID, true
}
