package service_test

import (
	"context"
	"testing"
	"time"

	"couponmarket/internal/model"
	"couponmarket/internal/repository"
	"couponmarket/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupCoupon creates a funded owner and one coupon in a fresh store.
func setupCoupon(t *testing.T, db *gorm.DB, maxUses int, commission, reward int64) *model.Coupon {
	t.Helper()
	createAccount(t, db, 1, 100)
	coupon, err := service.NewCouponService(db, testConfig()).
		CreateCoupon(context.Background(), 1, defaultTerms(t, maxUses, commission, reward))
	require.NoError(t, err)
	return coupon
}

func TestRedeem_PaysRewardAndCommission(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 1, 5, 10)
	createAccount(t, db, 2, 0) // redeemer
	createAccount(t, db, 3, 0) // affiliate

	affiliateID := int64(3)
	result, err := svc.Redeem(ctx, &service.RedeemRequest{
		CouponNo:    coupon.CouponNo,
		RedeemerID:  2,
		AffiliateID: &affiliateID,
	})
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, int64(10), result.RewardEarned)
	assert.Equal(t, int64(5), result.CommissionEarned)

	assert.Equal(t, 0, getCoupon(t, db, coupon.CouponNo).UsesLeft)
	assert.Equal(t, int64(10), getAccount(t, db, 2).Balance)
	assert.Equal(t, int64(5), getAccount(t, db, 3).Balance)

	// the receipt carries the amounts actually paid
	redemption, err := repository.NewRedemptionRepository(db).GetByRedemptionNo(ctx, result.RedemptionNo)
	require.NoError(t, err)
	assert.Equal(t, coupon.CouponNo, redemption.CouponNo)
	assert.Equal(t, int64(2), redemption.RedeemerID)
	assert.Equal(t, int64(10), redemption.RewardEarned)
	assert.Equal(t, int64(5), redemption.CommissionEarned)

	// each payout has its own ledger entry keyed by the receipt
	entries, err := repository.NewCreditLogRepository(db).ListByRefNo(ctx, result.RedemptionNo)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// inventory is gone: the next attempt is rejected before any write
	_, err = svc.Redeem(ctx, &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 4})
	assert.ErrorIs(t, err, service.ErrCouponExhausted)
}

func TestRedeem_SnapshotSurvivesCouponEdit(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 5, 0, 10)
	createAccount(t, db, 2, 0)

	result, err := svc.Redeem(ctx, &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 2})
	require.NoError(t, err)

	// bump the reward after the fact; the committed receipt must not move
	require.NoError(t, db.Model(&model.Coupon{}).
		Where("coupon_no = ?", coupon.CouponNo).
		Update("reward_amount", 999).Error)

	redemption, err := repository.NewRedemptionRepository(db).GetByRedemptionNo(ctx, result.RedemptionNo)
	require.NoError(t, err)
	assert.Equal(t, int64(10), redemption.RewardEarned)
}

func TestRedeem_ExpiredCoupon(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())

	past := time.Now().Add(-time.Hour)
	coupon := &model.Coupon{
		CouponNo: "CPN-EXPIRED", OwnerID: 1, Title: "Old deal", Description: "gone",
		DiscountType: model.DiscountTypePercentage, DiscountValue: 10,
		MaxUses: 5, UsesLeft: 5, ExpiresAt: &past,
	}
	require.NoError(t, db.Create(coupon).Error)

	_, err := svc.Redeem(context.Background(), &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 2})
	assert.ErrorIs(t, err, service.ErrCouponExpired)
	assert.Equal(t, 5, getCoupon(t, db, coupon.CouponNo).UsesLeft)
}

func TestRedeem_UnknownCoupon(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())

	_, err := svc.Redeem(context.Background(), &service.RedeemRequest{CouponNo: "CPN-NOPE", RedeemerID: 2})
	assert.ErrorIs(t, err, service.ErrCouponNotFound)
}

func TestRedeem_OwnerAsAffiliateEarnsNothing(t *testing.T) {
	// self-referral: the owner passing themselves as affiliate gets no
	// commission
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 1, 5, 0)
	createAccount(t, db, 2, 0)

	ownerID := int64(1)
	result, err := svc.Redeem(ctx, &service.RedeemRequest{
		CouponNo:    coupon.CouponNo,
		RedeemerID:  2,
		AffiliateID: &ownerID,
	})
	require.NoError(t, err)

	assert.Zero(t, result.CommissionEarned)
	assert.Equal(t, int64(50), getAccount(t, db, 1).Balance) // creation fee only
}

func TestRedeem_UnresolvableRedeemerForfeitsReward(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 1, 0, 10)

	// redeemer 99 has no account; the redemption still commits
	result, err := svc.Redeem(ctx, &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 99})
	require.NoError(t, err)

	assert.Zero(t, result.RewardEarned)
	assert.Equal(t, 0, getCoupon(t, db, coupon.CouponNo).UsesLeft)
}

func TestRedeem_SameAccountRedeemerAndAffiliate(t *testing.T) {
	// one account collects both payouts; two guarded increments on the
	// same row must both land
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 1, 5, 10)
	createAccount(t, db, 2, 0)

	affiliateID := int64(2)
	result, err := svc.Redeem(ctx, &service.RedeemRequest{
		CouponNo:    coupon.CouponNo,
		RedeemerID:  2,
		AffiliateID: &affiliateID,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.RewardEarned)
	assert.Equal(t, int64(5), result.CommissionEarned)
	assert.Equal(t, int64(15), getAccount(t, db, 2).Balance)

	// the two ledger entries chain: each BalanceAfter feeds the next
	entries, err := repository.NewCreditLogRepository(db).ListByRefNo(ctx, result.RedemptionNo)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, e.BalanceBefore+e.Amount, e.BalanceAfter)
	}
}

func TestRedeem_LedgerMatchesBalances(t *testing.T) {
	// conservation: for every touched account, the signed ledger sum equals
	// the balance movement
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 3, 5, 10)
	createAccount(t, db, 2, 0)
	createAccount(t, db, 3, 20)

	affiliateID := int64(3)
	for i := 0; i < 3; i++ {
		_, err := svc.Redeem(ctx, &service.RedeemRequest{
			CouponNo:    coupon.CouponNo,
			RedeemerID:  2,
			AffiliateID: &affiliateID,
		})
		require.NoError(t, err)
	}

	logRepo := repository.NewCreditLogRepository(db)
	for _, tc := range []struct {
		userID  int64
		initial int64
	}{
		{1, 100}, {2, 0}, {3, 20},
	} {
		sum, err := logRepo.SumByUserID(ctx, tc.userID)
		require.NoError(t, err)
		assert.Equal(t, tc.initial+sum, getAccount(t, db, tc.userID).Balance,
			"ledger sum must explain the balance of user %d", tc.userID)
	}
}

func TestRedeem_PersistsContactAfterCommit(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 1, 0, 0)

	result, err := svc.Redeem(ctx, &service.RedeemRequest{
		CouponNo:   coupon.CouponNo,
		RedeemerID: 2,
		Contact:    &service.ContactDetails{Name: "Ada", Phone: "555-0100", Email: "ada@example.com"},
	})
	require.NoError(t, err)

	var contact model.RedemptionContact
	require.NoError(t, db.Where("redemption_no = ?", result.RedemptionNo).First(&contact).Error)
	assert.Equal(t, "Ada", contact.Name)
	assert.Equal(t, "555-0100", contact.Phone)
}

func TestReconcileOwner_PaysReferrerBonusOnce(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	accountSvc := service.NewAccountService(db)
	redeemSvc := service.NewRedeemService(db, nil, cfg)
	ctx := context.Background()

	createAccount(t, db, 10, 0) // referrer

	referrerID := int64(10)
	owner, err := accountSvc.Register(ctx, &service.RegisterRequest{
		UserID:     1,
		Roles:      []string{model.RoleShopOwner},
		ReferrerID: &referrerID,
	})
	require.NoError(t, err)
	assert.False(t, owner.FirstRedeemed)

	require.NoError(t, db.Model(&model.Account{}).
		Where("user_id = ?", int64(1)).
		Update("balance", 100).Error)

	coupon, err := service.NewCouponService(db, cfg).
		CreateCoupon(ctx, 1, defaultTerms(t, 2, 0, 0))
	require.NoError(t, err)

	_, err = redeemSvc.Redeem(ctx, &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 2})
	require.NoError(t, err)

	// the degraded path leaves the owner flag for reconciliation
	assert.False(t, getAccount(t, db, 1).FirstRedeemed)

	owners, err := repository.NewRedemptionRepository(db).ListUnreconciledOwners(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, owners)

	require.NoError(t, redeemSvc.ReconcileOwner(ctx, 1))

	assert.True(t, getAccount(t, db, 1).FirstRedeemed)
	assert.Equal(t, int64(500), getAccount(t, db, 10).Balance)

	var referral model.Referral
	require.NoError(t, db.Where("referred_id = ?", int64(1)).First(&referral).Error)
	assert.Equal(t, model.ReferralStatusRewarded, referral.Status)

	// idempotent: a second pass (or a second redemption) pays nothing more
	_, err = redeemSvc.Redeem(ctx, &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 3})
	require.NoError(t, err)
	require.NoError(t, redeemSvc.ReconcileOwner(ctx, 1))
	assert.Equal(t, int64(500), getAccount(t, db, 10).Balance)

	owners, err = repository.NewRedemptionRepository(db).ListUnreconciledOwners(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestReconcileOwner_NoReferralJustSetsFlag(t *testing.T) {
	db := newTestDB(t)
	redeemSvc := service.NewRedeemService(db, nil, testConfig())
	ctx := context.Background()

	coupon := setupCoupon(t, db, 1, 0, 0)
	_, err := redeemSvc.Redeem(ctx, &service.RedeemRequest{CouponNo: coupon.CouponNo, RedeemerID: 2})
	require.NoError(t, err)

	require.NoError(t, redeemSvc.ReconcileOwner(ctx, 1))
	assert.True(t, getAccount(t, db, 1).FirstRedeemed)

	var count int64
	require.NoError(t, db.Model(&model.CreditLog{}).
		Where("type = ?", model.CreditLogTypeReferrerBonus).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}
