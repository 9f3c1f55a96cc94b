package repository

import (
	"context"
	"errors"
	"time"

	"couponmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRequestNotFound = errors.New("credit request not found")
	ErrKeyNotFound     = errors.New("credit key not found")
)

// CreditRepository covers the out-of-band top-up workflow: credit requests
// and the single-use keys minted against them.
type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) CreateRequest(ctx context.Context, request *model.CreditRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *CreditRepository) GetRequestByNo(ctx context.Context, requestNo string) (*model.CreditRequest, error) {
	var request model.CreditRequest
	err := r.db.WithContext(ctx).Where("request_no = ?", requestNo).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

// UpdateRequestStatus performs one state-machine transition, guarded on the
// expected current status.
func (r *CreditRepository) UpdateRequestStatus(ctx context.Context, tx *gorm.DB, requestNo, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CreditRequest{}).
		Where("request_no = ? AND status = ?", requestNo, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (r *CreditRepository) ListRequestsByStatus(ctx context.Context, status string, limit int) ([]*model.CreditRequest, error) {
	var requests []*model.CreditRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (r *CreditRepository) CreateKey(ctx context.Context, tx *gorm.DB, key *model.CreditKey) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(key).Error
}

func (r *CreditRepository) GetKeyByCode(ctx context.Context, code string) (*model.CreditKey, error) {
	var key model.CreditKey
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

// MarkKeyUsed flips IsUsed under full guards: unused, unexpired, and bound
// to the presented account. Zero rows affected means some guard failed and
// the caller re-reads the key to produce the precise typed error. Two
// concurrent activations can both pass their reads, but only one update
// wins here, so a key credits its account at most once.
func (r *CreditRepository) MarkKeyUsed(ctx context.Context, tx *gorm.DB, code string, userID int64, now time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CreditKey{}).
		Where("code = ? AND user_id = ? AND is_used = ? AND expires_at > ?", code, userID, false, now).
		Updates(map[string]interface{}{
			"is_used": true,
			"used_at": now,
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ListExpiredUnnotifiedKeys feeds the expiry sweep job.
func (r *CreditRepository) ListExpiredUnnotifiedKeys(ctx context.Context, now time.Time, limit int) ([]*model.CreditKey, error) {
	var keys []*model.CreditKey
	err := r.db.WithContext(ctx).
		Where("is_used = ? AND expired_notified = ? AND expires_at <= ?", false, false, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&keys).Error
	return keys, err
}

func (r *CreditRepository) MarkKeyExpiredNotified(ctx context.Context, tx *gorm.DB, code string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.CreditKey{}).
		Where("code = ?", code).
		Update("expired_notified", true).Error
}
