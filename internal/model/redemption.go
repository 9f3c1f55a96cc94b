package model

import (
	"time"
)

// Redemption is the canonical receipt of one successful coupon use.
//
// Append-only: rows are never updated or deleted. CommissionEarned and
// RewardEarned are snapshots of the coupon's fields at redemption time, so
// later edits to the coupon cannot retroactively change historical payouts.
type Redemption struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo string `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	CouponNo     string `gorm:"type:varchar(64);index;not null" json:"coupon_no"`
	RedeemerID   int64  `gorm:"index;not null" json:"redeemer_id"`
	AffiliateID  *int64 `gorm:"index" json:"affiliate_id"` // set when an affiliate drove the redemption

	CommissionEarned int64 `gorm:"not null;default:0" json:"commission_earned"`
	RewardEarned     int64 `gorm:"not null;default:0" json:"reward_earned"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Redemption) TableName() string {
	return "redemption"
}

// RedemptionContact holds extended customer details captured after a
// redemption commits. Written outside the ledger transaction; losing a row
// never invalidates the redemption itself.
type RedemptionContact struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	Name         string    `gorm:"type:varchar(128)" json:"name"`
	Phone        string    `gorm:"type:varchar(32)" json:"phone"`
	Email        string    `gorm:"type:varchar(128)" json:"email"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RedemptionContact) TableName() string {
	return "redemption_contact"
}
