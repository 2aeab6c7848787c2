package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vikasavnish/stockmemo/internal/models"
)

func TestUserService(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	user, err := NewAuthService(db, []byte("k"), time.Hour).Register(models.RegisterRequest{Username: "hana", Password: "pw"})
	require.NoError(t, err)

	users := NewUserService(db)
	got, err := users.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hana", got.Username)

	updated, err := users.UpdateEmail(user.ID, "hana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hana@example.com", updated.Email)

	got, err = users.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hana@example.com", got.Email)

	_, err = users.GetUser("missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
