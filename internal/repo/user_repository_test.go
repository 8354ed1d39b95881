package repo

import (
	"SecureDrop/internal/model"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	r := NewUserRepository(db)
	ctx := context.Background()

	// успешное создание
	u, err := r.CreateUser(ctx, &model.User{Login: "john", Email: " John@Example.com ", Password: "hash"})
	assert.NoError(t, err)
	assert.NotZero(t, u.ID)

	// поиск по логину — найдено
	got, err := r.GetUserByLogin(ctx, "john")
	assert.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	// email нормализуется
	got, err = r.GetByEmail(ctx, "JOHN@example.com")
	assert.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = r.GetByID(ctx, u.ID)
	assert.NoError(t, err)
	assert.Equal(t, "john", got.Login)

	ok, err := r.Exists(ctx, u.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, u.ID+100)
	assert.NoError(t, err)
	assert.False(t, ok)

	// уникальный логин — вторая вставка должна дать ошибку
	_, err = r.CreateUser(ctx, &model.User{Login: "john", Password: "x"})
	assert.Error(t, err)

	// поиск несуществующего — ожидаем ErrNotFound
	got, err = r.GetUserByLogin(ctx, "doesnotexist")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNotFound)
}
