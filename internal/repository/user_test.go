package repository

import (
	"context"
	"errors"
	"testing"

	"reciapp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "jose_recolector", Role: models.RoleCollector}
	require.NoError(t, repo.Create(ctx, user))
	require.NotZero(t, user.ID)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "jose_recolector", got.Username)
	assert.Equal(t, models.RoleCollector, got.Role)
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), 404)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUserRepository_ListByRole(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Username: "c1", Role: models.RoleCollector}))
	require.NoError(t, repo.Create(ctx, &models.User{Username: "r1", Role: models.RoleRequester}))
	require.NoError(t, repo.Create(ctx, &models.User{Username: "r2", Role: models.RoleRequester}))

	requesters, err := repo.ListByRole(ctx, models.RoleRequester)
	require.NoError(t, err)
	assert.Len(t, requesters, 2)
	for _, u := range requesters {
		assert.Equal(t, models.RoleRequester, u.Role)
	}
}
