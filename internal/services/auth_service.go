package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserDisabled is returned when an inactive user tries to log in
	ErrUserDisabled = errors.New("user account is disabled")
	// ErrUserExists is returned when the username or email is taken
	ErrUserExists = errors.New("username or email already exists")
	// ErrUserNotFound is returned when a user id does not resolve
	ErrUserNotFound = errors.New("user not found")
)

// AuthService handles authentication business logic
type AuthService struct {
	userRepo   repository.UserRepository
	jwtManager *auth.JWTManager
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo repository.UserRepository, jwtManager *auth.JWTManager, m *metrics.Metrics, log *logger.Logger) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		metrics:    m,
		logger:     log,
	}
}

// Register creates a staff account. Elevated roles are provisioned with CreateUser.
func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	return s.CreateUser(ctx, req, models.RoleStaff)
}

// CreateUser creates an active user holding role
func (s *AuthService) CreateUser(ctx context.Context, req *models.RegisterRequest, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	if err := validateInput(req); err != nil {
		return nil, err
	}

	// Hash password
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Department:   req.Department,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered",
		logger.UserID(user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)

	user.PasswordHash = ""
	return user, nil
}

// Login authenticates a user and returns an access token carrying the role claim
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		s.metrics.RecordAuth("password", "invalid")
		return nil, ErrInvalidCredentials
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.WithError(err).Error("Stored password hash is unusable", logger.UserID(user.ID))
		}
		s.metrics.RecordAuth("password", "invalid")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.metrics.RecordAuth("password", "disabled")
		return nil, ErrUserDisabled
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.metrics.RecordAuth("password", "success")
	s.logger.Info("User logged in", logger.UserID(user.ID), zap.String("username", user.Username))

	// Remove password hash from response
	user.PasswordHash = ""

	return &models.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   s.jwtManager.GetAccessTokenTTL(),
		TokenType:   "Bearer",
		User:        *user,
	}, nil
}

// GetUser returns the user behind an authenticated identity
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}
