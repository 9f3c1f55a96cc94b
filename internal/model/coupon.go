package model

import (
	"encoding/json"
	"time"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

// Coupon is one published offer with bounded inventory.
//
// UsesLeft is set to MaxUses at creation and only ever decremented, one per
// redemption, inside the redemption transaction. ViewCount is a best-effort
// counter and not part of the ledger invariants.
type Coupon struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CouponNo    string `gorm:"type:varchar(64);uniqueIndex;not null" json:"coupon_no"`
	OwnerID     int64  `gorm:"index;not null" json:"owner_id"` // user id of the publishing shop owner
	Title       string `gorm:"type:varchar(128);not null" json:"title"`
	Description string `gorm:"type:varchar(512);not null" json:"description"`

	DiscountType  string `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountValue int64  `gorm:"not null" json:"discount_value"`

	MaxUses  int `gorm:"not null" json:"max_uses"`
	UsesLeft int `gorm:"not null" json:"uses_left"` // 0 <= UsesLeft <= MaxUses

	// Validity window: exactly one of ExpiresAt / ValidDays is populated.
	ExpiresAt *time.Time `json:"expires_at"`
	ValidDays *int       `json:"valid_days"`

	CommissionAmount int64 `gorm:"not null;default:0" json:"commission_amount"` // credits per redemption to the driving affiliate
	RewardAmount     int64 `gorm:"not null;default:0" json:"reward_amount"`     // credits per redemption to the customer

	// Targeting: global coupons carry empty location lists.
	IsGlobal  bool   `gorm:"not null;default:false" json:"is_global"`
	Countries string `gorm:"type:text" json:"countries"` // JSON-encoded []string
	Cities    string `gorm:"type:text" json:"cities"`
	Areas     string `gorm:"type:text" json:"areas"`

	ViewCount int64 `gorm:"not null;default:0" json:"view_count"`

	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

// ExpiryTime resolves the effective expiry of the validity window: the
// absolute timestamp if present, otherwise creation time plus ValidDays.
// The zero time means the coupon never expires.
func (c *Coupon) ExpiryTime() time.Time {
	if c.ExpiresAt != nil {
		return *c.ExpiresAt
	}
	if c.ValidDays != nil {
		return c.CreatedAt.AddDate(0, 0, *c.ValidDays)
	}
	return time.Time{}
}

// Expired reports whether the coupon's validity window has passed at now.
func (c *Coupon) Expired(now time.Time) bool {
	exp := c.ExpiryTime()
	return !exp.IsZero() && !now.Before(exp)
}

// EncodeList marshals a targeting list for storage in a text column.
func EncodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// DecodeList unmarshals a stored targeting list.
func DecodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}
