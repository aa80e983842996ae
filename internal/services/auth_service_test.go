package services

import (
	"context"
	"testing"

	"github.com/davidmoltin/procurement-workflows/internal/mocks"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T) (*AuthService, *auth.JWTManager) {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { auth.BcryptCost = 12 })

	jwtManager := auth.NewJWTManager("test-secret-0123456789", 0)
	return NewAuthService(mocks.NewUserRepository(), jwtManager, nil, logger.NewForTesting()), jwtManager
}

func registerRequest() *models.RegisterRequest {
	return &models.RegisterRequest{
		Username: "jdoe",
		Email:    "JDoe@Example.com",
		Password: "correct-horse",
	}
}

func TestAuthService_RegisterCreatesStaff(t *testing.T) {
	svc, _ := newTestAuthService(t)

	user, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, models.RoleStaff, user.Role)
	assert.Equal(t, "jdoe@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.Empty(t, user.PasswordHash)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerRequest())
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc, _ := newTestAuthService(t)

	req := registerRequest()
	req.Password = "short"
	_, err := svc.Register(context.Background(), req)
	assertValidation(t, err, "password")

	req = registerRequest()
	req.Email = "not-an-email"
	_, err = svc.Register(context.Background(), req)
	assertValidation(t, err, "email")
}

func TestAuthService_CreateUserWithRole(t *testing.T) {
	svc, _ := newTestAuthService(t)

	user, err := svc.CreateUser(context.Background(), registerRequest(), models.RoleFinance)
	require.NoError(t, err)
	assert.Equal(t, models.RoleFinance, user.Role)

	_, err = svc.CreateUser(context.Background(), registerRequest(), models.Role("auditor"))
	assertValidation(t, err, "role")
}

func TestAuthService_Login(t *testing.T) {
	svc, jwtManager := newTestAuthService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, registerRequest(), models.RoleApproverLevel2)
	require.NoError(t, err)

	resp, err := svc.Login(ctx, &models.LoginRequest{Username: "jdoe", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int(auth.AccessTokenDuration.Seconds()), resp.ExpiresIn)
	assert.Empty(t, resp.User.PasswordHash)

	claims, err := jwtManager.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.UserID)
	assert.Equal(t, string(models.RoleApproverLevel2), claims.Role)
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "jdoe", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "jdoe"})
	assertValidation(t, err, "password")
}

func TestAuthService_LoginDisabled(t *testing.T) {
	auth.BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { auth.BcryptCost = 12 })

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	users := mocks.NewUserRepository(&models.User{
		ID:           uuid.New(),
		Username:     "former",
		Email:        "former@example.com",
		PasswordHash: hash,
		Role:         models.RoleStaff,
		IsActive:     false,
	})
	svc := NewAuthService(users, auth.NewJWTManager("test-secret-0123456789", 0), nil, logger.NewForTesting())

	_, err = svc.Login(context.Background(), &models.LoginRequest{Username: "former", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestAuthService_GetUser(t *testing.T) {
	svc, _ := newTestAuthService(t)

	created, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	user, err := svc.GetUser(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
