package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/handler/dto"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/response"
	"github.com/idxstock/stockapi/internal/service"
)

// AuthService is the account surface used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
	RegenerateKey(ctx context.Context, userID string) (string, error)
}

// AuthHandler handles registration, login and key management.
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// SessionResponse is returned by register and login.
type SessionResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// APIKeyResponse is returned by key regeneration.
type APIKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const missing = "Nama, email, dan password harus diisi"

	var req dto.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Normalize()
	if !validateBody(w, &req, missing) {
		return
	}

	result, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			response.Error(w, http.StatusBadRequest, response.CodeMissingFields, missing)
		case errors.Is(err, service.ErrInvalidPassword):
			response.Error(w, http.StatusBadRequest, response.CodeInvalidPassword, "Password minimal 6 karakter")
		case errors.Is(err, service.ErrEmailExists):
			response.Error(w, http.StatusConflict, response.CodeEmailExists, "Email sudah terdaftar")
		default:
			serverError(h.logger, w, r, "register failed", err)
		}
		return
	}

	h.logger.Info("user_registered", "user_id", result.User.ID)
	response.OK(w, http.StatusCreated, "Registrasi berhasil", SessionResponse{
		User:      result.User,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}, nil)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const missing = "Email dan password harus diisi"

	var req dto.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validateBody(w, &req, missing) {
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			response.Error(w, http.StatusBadRequest, response.CodeMissingFields, missing)
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidCredentials, "Email atau password salah")
		default:
			serverError(h.logger, w, r, "login failed", err)
		}
		return
	}

	response.OK(w, http.StatusOK, "Login berhasil", SessionResponse{
		User:      result.User,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}, nil)
}

// Profile handles GET /auth/profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Profile(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Token tidak valid")
			return
		}
		serverError(h.logger, w, r, "profile lookup failed", err)
		return
	}
	response.OK(w, http.StatusOK, "", user, nil)
}

// RegenerateKey handles POST /auth/regenerate-key.
func (h *AuthHandler) RegenerateKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.RegenerateKey(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Token tidak valid")
			return
		}
		serverError(h.logger, w, r, "api key regeneration failed", err)
		return
	}
	response.OK(w, http.StatusOK, "API Key berhasil di-generate", APIKeyResponse{APIKey: key}, nil)
}
