package main

import (
	"context"
	"testing"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/mocks"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedUsers(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewUserRepository()
	svc := services.NewAuthService(repo, auth.NewJWTManager("seed-secret-0123456789", time.Hour), nil, logger.NewForTesting())

	result, err := seedUsers(ctx, svc, models.Roles, "changeme123", "example.com")
	require.NoError(t, err)
	assert.Len(t, result.Created, len(models.Roles))
	assert.Empty(t, result.Skipped)

	approvers, err := repo.ListByRole(ctx, models.RoleApproverLevel1)
	require.NoError(t, err)
	require.Len(t, approvers, 1)
	assert.Equal(t, "approverlevel1", approvers[0].Username)
	assert.Equal(t, "approverlevel1@example.com", approvers[0].Email)
	assert.Equal(t, "Approver Level 1", approvers[0].DisplayName())

	// re-running is safe
	result, err = seedUsers(ctx, svc, models.Roles, "changeme123", "example.com")
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Len(t, result.Skipped, len(models.Roles))
}

func TestSeedUsers_WeakPassword(t *testing.T) {
	svc := services.NewAuthService(mocks.NewUserRepository(), auth.NewJWTManager("seed-secret-0123456789", time.Hour), nil, logger.NewForTesting())
	_, err := seedUsers(context.Background(), svc, []models.Role{models.RoleStaff}, "short", "example.com")
	var vErr *services.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestParseRoles(t *testing.T) {
	roles, err := parseRoles("")
	require.NoError(t, err)
	assert.Equal(t, models.Roles, roles)

	roles, err = parseRoles("finance, admin")
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleFinance, models.RoleAdmin}, roles)

	_, err = parseRoles("finance,auditor")
	assert.Error(t, err)
}
