package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/services"
)

type RegisterRequest struct {
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	TenantID   string     `json:"tenantId"`
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	DeviceID   *uuid.UUID `json:"deviceId,omitempty"`
	DeviceName string     `json:"deviceName,omitempty"`
	Platform   string     `json:"platform,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    uuid.UUID `json:"userId"`
	DeviceID  uuid.UUID `json:"deviceId"`
	TenantID  string    `json:"tenantId"`
}

type AuthHandler struct {
	auth   *services.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *services.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "tenantId, email and password are required", http.StatusBadRequest)
		return
	}

	err := h.auth.Register(r.Context(), req.TenantID, req.Email, req.Password, req.Name)
	if errors.Is(err, services.ErrEmailExists) {
		http.Error(w, "Email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("failed to register user", "email", req.Email, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.auth.Login(r.Context(), services.LoginRequest{
		TenantID:   req.TenantID,
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		Platform:   req.Platform,
	})
	if errors.Is(err, services.ErrInvalidCredentials) {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if errors.Is(err, services.ErrDeviceRevoked) {
		http.Error(w, "Device has been revoked", http.StatusForbidden)
		return
	}
	if err != nil {
		h.logger.Error("failed to login", "email", req.Email, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, LoginResponse{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		UserID:    resp.UserID,
		DeviceID:  resp.DeviceID,
		TenantID:  resp.TenantID,
	})
}
