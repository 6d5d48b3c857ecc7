package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldworks/event-scheduler-go/pkg/database"
	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

func TestHMACKeyRoundTrip(t *testing.T) {
	t.Setenv("API_MASTER_SECRET", "test-secret")

	key := GenerateHMACKey("warehouse-app")
	userID, err := VerifyHMACKey(key)
	require.NoError(t, err)
	assert.Equal(t, "warehouse-app", userID)
}

func TestVerifyHMACKeyRejectsTampering(t *testing.T) {
	t.Setenv("API_MASTER_SECRET", "test-secret")

	key := GenerateHMACKey("warehouse-app")
	_, err := VerifyHMACKey("other-app." + key[len("warehouse-app."):])
	assert.Error(t, err)

	_, err = VerifyHMACKey("not-a-key")
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestEnsureAdminExists(t *testing.T) {
	t.Setenv("ADMIN_USERNAME", "ops")
	t.Setenv("ADMIN_PASSWORD", "hunter2")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	require.NoError(t, EnsureAdminExists(db))

	var admin models.AdminUser
	require.NoError(t, db.Where("username = ?", "ops").First(&admin).Error)
	assert.True(t, CheckPasswordHash("hunter2", admin.PasswordHash))

	// A second call never creates a duplicate.
	require.NoError(t, EnsureAdminExists(db))
	var count int64
	require.NoError(t, db.Model(&models.AdminUser{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
