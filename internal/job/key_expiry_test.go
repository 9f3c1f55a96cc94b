package job

import (
	"context"
	"testing"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/infrastructure/database"
	"couponmarket/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func TestKeyExpirySweep_NotifiesEachExpiredKeyOnce(t *testing.T) {
	db := newJobTestDB(t)
	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{AdminNotifications: "test.admin.notifications"},
		},
	}
	j := NewKeyExpiryJob(db, cfg)
	ctx := context.Background()

	expired := &model.CreditKey{
		Code: "key-expired", RequestNo: "REQ-1", UserID: 1, Amount: 100,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	live := &model.CreditKey{
		Code: "key-live", RequestNo: "REQ-2", UserID: 2, Amount: 200,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	spent := &model.CreditKey{
		Code: "key-spent", RequestNo: "REQ-3", UserID: 3, Amount: 300,
		IsUsed: true, ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(expired).Error)
	require.NoError(t, db.Create(live).Error)
	require.NoError(t, db.Create(spent).Error)

	j.sweepExpiredKeys(ctx)

	// only the expired, unspent key is announced
	var msgs []*model.OutboxMessage
	require.NoError(t, db.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, "REQ-1", msgs[0].MessageKey)
	assert.Equal(t, "test.admin.notifications", msgs[0].Topic)

	var key model.CreditKey
	require.NoError(t, db.Where("code = ?", "key-expired").First(&key).Error)
	assert.True(t, key.ExpiredNotified)

	// a second pass stages nothing new
	j.sweepExpiredKeys(ctx)
	require.NoError(t, db.Find(&msgs).Error)
	assert.Len(t, msgs, 1)
}
