package model

import (
	"time"
)

const (
	CreditRequestStatusPending      = "PENDING"
	CreditRequestStatusKeyGenerated = "KEY_GENERATED"
	CreditRequestStatusCompleted    = "COMPLETED"
)

// ValidRequestTransitions is the credit top-up state machine. COMPLETED is
// terminal; no transition reverses.
var ValidRequestTransitions = map[string][]string{
	CreditRequestStatusPending:      {CreditRequestStatusKeyGenerated},
	CreditRequestStatusKeyGenerated: {CreditRequestStatusCompleted},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidRequestTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// CreditRequest is a shop owner's application for an out-of-band credit
// top-up. It carries no ledger effect on its own; only key activation
// touches balances.
type CreditRequest struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Status    string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditRequest) TableName() string {
	return "credit_request"
}

// CreditKey is a single-use, time-boxed activation code minted by an
// administrator against a credit request. A key mutates a balance at most
// once: the IsUsed false -> true flip happens in the same transaction as
// the credit.
type CreditKey struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	RequestNo string `gorm:"type:varchar(64);index;not null" json:"request_no"`
	UserID    int64  `gorm:"index;not null" json:"user_id"` // the only account this key may credit
	Amount    int64  `gorm:"not null" json:"amount"`

	IsUsed bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt *time.Time `json:"used_at"`

	ExpiresAt       time.Time `gorm:"not null" json:"expires_at"`
	ExpiredNotified bool      `gorm:"not null;default:false" json:"expired_notified"` // admin notification sent by the expiry sweep

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditKey) TableName() string {
	return "credit_key"
}
