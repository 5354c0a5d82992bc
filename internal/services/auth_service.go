package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrDeviceRevoked      = errors.New("device has been revoked")
)

type AuthService struct {
	userRepo    repositories.UserRepository
	deviceRepo  repositories.DeviceRepository
	sessionRepo repositories.SessionRepository
	jwtSecret   string
	jwtExpiry   time.Duration
}

type LoginRequest struct {
	TenantID   string
	Email      string
	Password   string
	DeviceID   *uuid.UUID // nil means register a new device
	DeviceName string
	Platform   string
}

type LoginResponse struct {
	Token     string
	ExpiresAt time.Time
	UserID    uuid.UUID
	DeviceID  uuid.UUID
	TenantID  string
}

// TokenClaims is the authenticated identity injected into request context.
// DeviceID doubles as the sync clientId.
type TokenClaims struct {
	TenantID  string
	UserID    uuid.UUID
	DeviceID  uuid.UUID
	SessionID string
}

func NewAuthService(
	userRepo repositories.UserRepository,
	deviceRepo repositories.DeviceRepository,
	sessionRepo repositories.SessionRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		deviceRepo:  deviceRepo,
		sessionRepo: sessionRepo,
		jwtSecret:   jwtSecret,
		jwtExpiry:   jwtExpiry,
	}
}

func (s *AuthService) Register(ctx context.Context, tenantID, email, password, name string) error {
	existing, err := s.userRepo.GetByEmail(ctx, tenantID, email)
	if err == nil && existing != nil {
		return ErrEmailExists
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.TenantID, req.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	var device *models.Device
	if req.DeviceID != nil {
		device, err = s.deviceRepo.GetByID(ctx, *req.DeviceID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, errors.New("device not found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get device: %w", err)
		}
		if device.UserID != user.ID {
			return nil, errors.New("device does not belong to user")
		}
		if device.RevokedAt != nil {
			return nil, ErrDeviceRevoked
		}
	} else {
		device = &models.Device{
			UserID:   user.ID,
			TenantID: user.TenantID,
			Name:     req.DeviceName,
			Platform: req.Platform,
		}
		if err := s.deviceRepo.Create(ctx, device); err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
	}

	sessionID := uuid.New().String()
	expiresAt := time.Now().Add(s.jwtExpiry)
	session := &models.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TenantID:  user.TenantID,
		DeviceID:  device.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(user, device.ID, sessionID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		DeviceID:  device.ID,
		TenantID:  user.TenantID,
	}, nil
}

func (s *AuthService) generateToken(user *models.User, deviceID uuid.UUID, sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":       user.ID.String(),
		"tenant_id": user.TenantID,
		"device_id": deviceID.String(),
		"jti":       sessionID,
		"exp":       expiresAt.Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// Authenticate verifies the token signature and checks the session is still
// live in Redis, so revoked sessions die before their JWT expiry.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, err := s.verifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessionRepo.GetByID(ctx, claims.SessionID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) verifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	tenantID, _ := claims["tenant_id"].(string)
	deviceStr, _ := claims["device_id"].(string)
	sessionID, _ := claims["jti"].(string)

	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}
	deviceID, err := uuid.Parse(deviceStr)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if tenantID == "" || sessionID == "" {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		TenantID:  tenantID,
		UserID:    userID,
		DeviceID:  deviceID,
		SessionID: sessionID,
	}, nil
}
