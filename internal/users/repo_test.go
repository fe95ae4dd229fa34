package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/appointly-backend/pkg/db/dbtest"
)

func TestUpsertTelegramCreatesThenUpdates(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := repo.UpsertTelegram(ctx, TelegramProfile{
		TelegramUserID: 4242,
		FirstName:      "Ana",
		Username:       "ana",
	}, first)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "Ana", created.DisplayName())
	require.NotNil(t, created.Username)
	assert.Equal(t, "ana", *created.Username)

	second := first.Add(48 * time.Hour)
	updated, err := repo.UpsertTelegram(ctx, TelegramProfile{
		TelegramUserID: 4242,
		FirstName:      "Ana",
		LastName:       "Lima",
		Username:       "ana_l",
	}, second)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Ana Lima", updated.DisplayName())
	assert.Equal(t, "ana_l", *updated.Username)
	require.NotNil(t, updated.LastLoginAt)
	assert.True(t, updated.LastLoginAt.Equal(second))
}

func TestFindByIDMissing(t *testing.T) {
	repo := NewRepository(dbtest.OpenSQLite(t))
	user, err := repo.FindByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, user)
}
