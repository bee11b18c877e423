package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/llm-relay/internal/auth"
	"github.com/sakif/llm-relay/internal/service"
)

// AuthHandler serves registration, login, and token introspection.
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// credentialsRequest is the shared request body for register and login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the shared success body: the token goes straight into
// the response — this is an API-only service, no cookies involved.
type authResponse struct {
	UserID      string `json:"user_id"`
	UserEmail   string `json:"user_email"`
	AccessToken string `json:"access_token"`
}

// HandleRegister creates a new account.
//
// HTTP: POST /auth/register
// Body: {"email": "...", "password": "..."}
// 201 on success; 409 if the email is already registered.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid register body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	result, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		UserID:      result.User.ID,
		UserEmail:   result.User.Email,
		AccessToken: result.Token,
	})
}

// HandleLogin verifies credentials and returns a fresh access token.
//
// HTTP: POST /auth/login
// 401 on unknown email or wrong password — same body for both.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid login body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:      result.User.ID,
		UserEmail:   result.User.Email,
		AccessToken: result.Token,
	})
}

// HandleSecureData echoes the authenticated user's ID.
//
// HTTP: GET /secure-data
// Auth: bearer token (RequireAuth middleware)
//
// Exists so clients can check whether a stored token is still valid
// without triggering any real work.
func (h *AuthHandler) HandleSecureData(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, but don't assume.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID})
}
