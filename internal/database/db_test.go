package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithForeignKeys(t *testing.T) {
	assert.Equal(t, "data/app.db?_foreign_keys=on", withForeignKeys("data/app.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", withForeignKeys("file:x?mode=memory"))
	assert.Equal(t, "file:x?_fk=1", withForeignKeys("file:x?_fk=1"))
}

func TestOpen_SQLiteFileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "resources.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	user := &models.User{Username: "owner", Email: "owner@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", user.ID.String())
	assert.Equal(t, models.RoleUser, user.Role)

	res := &models.Resource{Name: "Go", URL: "https://go.dev/", Description: "d", CreatedByID: user.ID}
	require.NoError(t, db.Create(res).Error)
	assert.NotZero(t, res.ID)

	var loaded models.Resource
	require.NoError(t, db.Preload("CreatedBy").First(&loaded, res.ID).Error)
	assert.Equal(t, user.ID, loaded.CreatedByID)
	assert.Equal(t, "owner@example.com", loaded.CreatedBy.Email)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.Close()
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")

	_, err = ConnectRedis("not a url")
	assert.Error(t, err)
}
