package service_test

import (
	"testing"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/infrastructure/database"
	"couponmarket/internal/model"
	"couponmarket/internal/validate"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory store per test. A single connection
// keeps every session on the same sqlite database.
func newTestDB(t *testing.T) *gorm.DB {
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

// testConfig carries the business constants the scenarios assume. Trusted
// URLs are empty so redemptions exercise the local fallback path.
func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				RedemptionEvents:   "test.redemption.events",
				AdminNotifications: "test.admin.notifications",
			},
		},
		Business: config.BusinessConfig{
			CouponCreationCost: 50,
			ReferrerBonus:      500,
			KeyValidityHours:   72,
			MaxRetryCount:      5,
		},
	}
}

func createAccount(t *testing.T, db *gorm.DB, userID, balance int64) *model.Account {
	t.Helper()
	account := &model.Account{
		UserID:  userID,
		Balance: balance,
		Roles:   model.RoleCustomer,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func getAccount(t *testing.T, db *gorm.DB, userID int64) *model.Account {
	t.Helper()
	var account model.Account
	require.NoError(t, db.Where("user_id = ?", userID).First(&account).Error)
	return &account
}

func getCoupon(t *testing.T, db *gorm.DB, couponNo string) *model.Coupon {
	t.Helper()
	var coupon model.Coupon
	require.NoError(t, db.Where("coupon_no = ?", couponNo).First(&coupon).Error)
	return &coupon
}

func defaultTerms(t *testing.T, maxUses int, commission, reward int64) *validate.CouponTerms {
	t.Helper()
	exp := time.Now().Add(48 * time.Hour)
	terms, err := validate.Validate(validate.Sanitize(validate.CouponInput{
		Title:         "Lunch deal",
		Description:   "20% off lunch menu",
		DiscountType:  "PERCENTAGE",
		DiscountValue: 20,
		MaxUses:       &maxUses,
		ExpiresAt:     &exp,
		Commission:    &commission,
		Reward:        &reward,
	}), time.Now())
	require.NoError(t, err)
	return terms
}
