package repository

import (
	"context"

	"couponmarket/internal/model"

	"gorm.io/gorm"
)

// CreditLogRepository appends and reads the immutable ledger log. Append is
// the only write: entries are never updated or deleted.
type CreditLogRepository struct {
	db *gorm.DB
}

func NewCreditLogRepository(db *gorm.DB) *CreditLogRepository {
	return &CreditLogRepository{db: db}
}

// Append writes one entry. Must be called inside the same transaction as
// the balance mutation it documents.
func (r *CreditLogRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.CreditLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *CreditLogRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditLog, int64, error) {
	var entries []*model.CreditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CreditLog{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

func (r *CreditLogRepository) ListByRefNo(ctx context.Context, refNo string) ([]*model.CreditLog, error) {
	var entries []*model.CreditLog
	err := r.db.WithContext(ctx).
		Where("ref_no = ?", refNo).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// SumByUserID returns the sum of signed amounts for one account. For every
// account this must equal current balance minus initial balance.
func (r *CreditLogRepository) SumByUserID(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditLog{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
