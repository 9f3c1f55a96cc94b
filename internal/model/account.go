package model

import (
	"strings"
	"time"
)

const (
	RoleShopOwner = "shop_owner"
	RoleAffiliate = "affiliate"
	RoleCustomer  = "customer"
)

// Account holds one participant's credit balance. Roles are a non-exclusive
// set; the same account can publish coupons and promote them.
//
// Balance is only ever mutated inside a ledger transaction, together with
// the CreditLog row describing the change.
type Account struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64  `gorm:"uniqueIndex;not null" json:"user_id"` // external identity, assigned at signup
	Balance      int64  `gorm:"not null;default:0" json:"balance"`   // available credits, never negative
	Roles        string `gorm:"type:varchar(64);not null;default:customer" json:"roles"`
	FirstRedeemed bool  `gorm:"not null;default:false" json:"first_redeemed"` // one-time flag gating the referrer bonus
	ReferrerID   *int64 `gorm:"index" json:"referrer_id"`                     // user id of whoever referred this account

	// Location profile, used to default coupon targeting.
	Country  string `gorm:"type:varchar(64)" json:"country"`
	City     string `gorm:"type:varchar(64)" json:"city"`
	District string `gorm:"type:varchar(64)" json:"district"`

	Version   int       `gorm:"not null;default:0" json:"version"` // optimistic lock
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// HasRole reports whether the role set contains the given role.
func (a *Account) HasRole(role string) bool {
	for _, r := range strings.Split(a.Roles, ",") {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}

// AddRole appends a role to the set if not already present.
func (a *Account) AddRole(role string) {
	if a.HasRole(role) {
		return
	}
	if a.Roles == "" {
		a.Roles = role
		return
	}
	a.Roles = a.Roles + "," + role
}
