package model

import (
	"time"
)

// Closed set of ledger-log entry types. Every balance mutation carries
// exactly one of these.
const (
	CreditLogTypeCreationCost        = "CREATION_COST"        // coupon publishing fee, negative
	CreditLogTypeCustomerReward      = "CUSTOMER_REWARD"      // per-redemption reward to the redeemer
	CreditLogTypeAffiliateCommission = "AFFILIATE_COMMISSION" // per-redemption commission to the affiliate
	CreditLogTypeReferrerBonus       = "REFERRER_BONUS"       // one-time bonus per referred shop owner
	CreditLogTypeCreditPurchase      = "CREDIT_PURCHASE"      // credit key activation
	CreditLogTypeAdminGrant          = "ADMIN_GRANT"          // direct administrative mint
)

// CreditLog is the immutable audit record of one balance mutation.
//
// Rows are only ever appended, inside the same transaction as the balance
// change they describe: no orphaned audit entries for aborted mutations,
// no committed mutations without a trail. BalanceBefore/BalanceAfter make
// per-account conservation checkable by replay.
type CreditLog struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	LogNo     string `gorm:"type:varchar(64);uniqueIndex;not null" json:"log_no"`
	UserID    int64  `gorm:"index;not null" json:"user_id"`
	RefNo     string `gorm:"type:varchar(64);index;not null" json:"ref_no"` // coupon / redemption / key number this entry belongs to
	Amount    int64  `gorm:"not null" json:"amount"`                        // signed: positive credit, negative debit
	Type      string `gorm:"type:varchar(32);not null" json:"type"`

	BalanceBefore int64 `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64 `gorm:"not null" json:"balance_after"`

	Detail    string    `gorm:"type:varchar(256)" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditLog) TableName() string {
	return "credit_log"
}
