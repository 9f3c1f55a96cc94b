package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(CreditRequestStatusPending, CreditRequestStatusKeyGenerated))
	assert.True(t, CanTransitionTo(CreditRequestStatusKeyGenerated, CreditRequestStatusCompleted))

	// no reversals, no skips, COMPLETED is terminal
	assert.False(t, CanTransitionTo(CreditRequestStatusPending, CreditRequestStatusCompleted))
	assert.False(t, CanTransitionTo(CreditRequestStatusKeyGenerated, CreditRequestStatusPending))
	assert.False(t, CanTransitionTo(CreditRequestStatusCompleted, CreditRequestStatusPending))
	assert.False(t, CanTransitionTo(CreditRequestStatusCompleted, CreditRequestStatusKeyGenerated))
	assert.False(t, CanTransitionTo("UNKNOWN", CreditRequestStatusCompleted))
}

func TestAccountRoles(t *testing.T) {
	a := &Account{Roles: "shop_owner,affiliate"}

	assert.True(t, a.HasRole(RoleShopOwner))
	assert.True(t, a.HasRole(RoleAffiliate))
	assert.False(t, a.HasRole(RoleCustomer))

	a.AddRole(RoleCustomer)
	assert.True(t, a.HasRole(RoleCustomer))

	// adding twice does not duplicate
	a.AddRole(RoleCustomer)
	assert.Equal(t, "shop_owner,affiliate,customer", a.Roles)

	empty := &Account{}
	empty.AddRole(RoleAffiliate)
	assert.Equal(t, "affiliate", empty.Roles)
}

func TestCouponExpiry_AbsoluteDate(t *testing.T) {
	now := time.Now()
	exp := now.Add(24 * time.Hour)
	c := &Coupon{ExpiresAt: &exp}

	assert.Equal(t, exp, c.ExpiryTime())
	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(exp))
	assert.True(t, c.Expired(exp.Add(time.Minute)))
}

func TestCouponExpiry_ValidDays(t *testing.T) {
	created := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	days := 10
	c := &Coupon{CreatedAt: created, ValidDays: &days}

	assert.Equal(t, created.AddDate(0, 0, 10), c.ExpiryTime())
	assert.False(t, c.Expired(created.AddDate(0, 0, 9)))
	assert.True(t, c.Expired(created.AddDate(0, 0, 11)))
}

func TestCouponExpiry_NoWindow(t *testing.T) {
	c := &Coupon{}
	assert.True(t, c.ExpiryTime().IsZero())
	assert.False(t, c.Expired(time.Now()))
}

func TestTargetingListCodec(t *testing.T) {
	assert.Equal(t, "[]", EncodeList(nil))
	assert.Equal(t, `["TR","DE"]`, EncodeList([]string{"TR", "DE"}))

	assert.Equal(t, []string{"TR", "DE"}, DecodeList(`["TR","DE"]`))
	assert.Empty(t, DecodeList("[]"))
	assert.Nil(t, DecodeList(""))
	assert.Nil(t, DecodeList("not json"))
}
