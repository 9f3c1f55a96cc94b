package repository

import (
	"context"
	"errors"

	"couponmarket/internal/model"

	"gorm.io/gorm"
)

type RedemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// Create appends one redemption receipt. Receipts are append-only; there is
// no update or delete on this repository on purpose.
func (r *RedemptionRepository) Create(ctx context.Context, tx *gorm.DB, redemption *model.Redemption) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(redemption).Error
}

func (r *RedemptionRepository) GetByRedemptionNo(ctx context.Context, redemptionNo string) (*model.Redemption, error) {
	var redemption model.Redemption
	err := r.db.WithContext(ctx).Where("redemption_no = ?", redemptionNo).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &redemption, nil
}

func (r *RedemptionRepository) ListByCoupon(ctx context.Context, couponNo string, page, pageSize int) ([]*model.Redemption, int64, error) {
	var redemptions []*model.Redemption
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Redemption{}).Where("coupon_no = ?", couponNo)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&redemptions).Error

	return redemptions, total, err
}

// ListUnreconciledOwners returns owner user ids that have at least one
// redemption against their coupons while their first-redemption flag is
// still unset. Feeds the privileged reconciliation pass that closes the
// fallback path's capability gap.
func (r *RedemptionRepository) ListUnreconciledOwners(ctx context.Context, limit int) ([]int64, error) {
	var ownerIDs []int64
	err := r.db.WithContext(ctx).
		Model(&model.Redemption{}).
		Distinct("coupon.owner_id").
		Joins("JOIN coupon ON coupon.coupon_no = redemption.coupon_no").
		Joins("JOIN account ON account.user_id = coupon.owner_id").
		Where("account.first_redeemed = ?", false).
		Limit(limit).
		Pluck("coupon.owner_id", &ownerIDs).Error
	return ownerIDs, err
}

// SaveContact persists post-commit customer details for one redemption.
// Never part of the ledger transaction.
func (r *RedemptionRepository) SaveContact(ctx context.Context, contact *model.RedemptionContact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}
