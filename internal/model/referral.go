package model

import (
	"time"
)

const (
	ReferralStatusPending  = "PENDING"
	ReferralStatusRewarded = "REWARDED"
)

// Referral records one shop-owner signup via referral. The PENDING ->
// REWARDED transition happens at most once, gated by the referred account's
// FirstRedeemed flag, and is never reversed.
type Referral struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID int64      `gorm:"index;not null" json:"referrer_id"`
	ReferredID int64      `gorm:"uniqueIndex;not null" json:"referred_id"`
	Status     string     `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RewardedAt *time.Time `json:"rewarded_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Referral) TableName() string {
	return "referral"
}
