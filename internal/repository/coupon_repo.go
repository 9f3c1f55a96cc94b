package repository

import (
	"context"
	"errors"

	"couponmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCouponExhausted = errors.New("coupon has no uses left")
)

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Create(ctx context.Context, tx *gorm.DB, coupon *model.Coupon) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(coupon).Error
}

func (r *CouponRepository) GetByCouponNo(ctx context.Context, couponNo string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.db.WithContext(ctx).Where("coupon_no = ?", couponNo).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// ConsumeUse decrements UsesLeft by one, guarded by the inventory floor and
// the version the caller read. Zero rows affected means the inventory ran
// out or a concurrent redemption advanced the version.
func (r *CouponRepository) ConsumeUse(ctx context.Context, tx *gorm.DB, couponNo string, version int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("coupon_no = ? AND uses_left > 0 AND version = ?", couponNo, version).
		Updates(map[string]interface{}{
			"uses_left": gorm.Expr("uses_left - 1"),
			"version":   gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		coupon, err := r.GetByCouponNo(ctx, couponNo)
		if err != nil {
			return err
		}
		if coupon.UsesLeft <= 0 {
			return ErrCouponExhausted
		}
		return ErrOptimisticLock
	}

	return nil
}

// IncrementViews bumps the view counter outside any transaction. The
// counter is best effort and not a ledger invariant.
func (r *CouponRepository) IncrementViews(ctx context.Context, couponNo string) error {
	return r.db.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("coupon_no = ?", couponNo).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

// ListByOwner returns an owner's coupons, newest first.
func (r *CouponRepository) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Coupon, int64, error) {
	var coupons []*model.Coupon
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Coupon{}).Where("owner_id = ?", ownerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&coupons).Error

	return coupons, total, err
}

// ListActive returns redeemable coupons, optionally filtered by country.
// Global coupons match every location; targeted coupons are matched against
// the JSON-encoded country list with a substring predicate, which is exact
// enough because stored values are quoted.
func (r *CouponRepository) ListActive(ctx context.Context, country string, page, pageSize int) ([]*model.Coupon, int64, error) {
	var coupons []*model.Coupon
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Coupon{}).Where("uses_left > 0")
	if country != "" {
		query = query.Where("is_global = ? OR countries LIKE ?", true, "%\""+country+"\"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&coupons).Error

	return coupons, total, err
}
