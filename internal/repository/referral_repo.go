package repository

import (
	"context"
	"errors"
	"time"

	"couponmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Create records a signup-via-referral link. The unique index on
// referred_id means repeated signup callbacks cannot produce duplicates.
func (r *ReferralRepository) Create(ctx context.Context, referral *model.Referral) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "referred_id"}},
			DoNothing: true,
		}).
		Create(referral).Error
}

// GetPendingByReferred returns the unrewarded referral for a referred
// account, or nil when there is none.
func (r *ReferralRepository) GetPendingByReferred(ctx context.Context, tx *gorm.DB, referredID int64) (*model.Referral, error) {
	if tx == nil {
		tx = r.db
	}
	var referral model.Referral
	err := tx.WithContext(ctx).
		Where("referred_id = ? AND status = ?", referredID, model.ReferralStatusPending).
		First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// MarkRewarded performs the one-way PENDING -> REWARDED transition. Guarded
// on the current status so the bonus can only ever be attached once.
func (r *ReferralRepository) MarkRewarded(ctx context.Context, tx *gorm.DB, referredID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Referral{}).
		Where("referred_id = ? AND status = ?", referredID, model.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":      model.ReferralStatusRewarded,
			"rewarded_at": now,
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
