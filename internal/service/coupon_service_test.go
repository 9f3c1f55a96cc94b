package service_test

import (
	"context"
	"testing"

	"couponmarket/internal/model"
	"couponmarket/internal/repository"
	"couponmarket/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCoupon_ChargesFeeAndSetsInventory(t *testing.T) {
	// owner with 100 credits creates one coupon (fee 50): balance drops to
	// 50, one ledger entry of -50, full inventory on the new coupon
	db := newTestDB(t)
	cfg := testConfig()
	svc := service.NewCouponService(db, cfg)
	ctx := context.Background()

	createAccount(t, db, 1, 100)

	coupon, err := svc.CreateCoupon(ctx, 1, defaultTerms(t, 10, 5, 10))
	require.NoError(t, err)

	assert.Equal(t, 10, coupon.MaxUses)
	assert.Equal(t, 10, coupon.UsesLeft)
	assert.Equal(t, int64(50), getAccount(t, db, 1).Balance)

	logRepo := repository.NewCreditLogRepository(db)
	entries, total, err := logRepo.ListByUserID(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.CreditLogTypeCreationCost, entries[0].Type)
	assert.Equal(t, int64(-50), entries[0].Amount)
	assert.Equal(t, int64(100), entries[0].BalanceBefore)
	assert.Equal(t, int64(50), entries[0].BalanceAfter)
	assert.Equal(t, coupon.CouponNo, entries[0].RefNo)

	// the creation event is staged in the same transaction
	outboxRepo := repository.NewOutboxRepository(db)
	msgs, err := outboxRepo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, coupon.CouponNo, msgs[0].MessageKey)
}

func TestCreateCoupon_InsufficientCredits(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewCouponService(db, testConfig())
	ctx := context.Background()

	createAccount(t, db, 1, 49)

	_, err := svc.CreateCoupon(ctx, 1, defaultTerms(t, 10, 0, 0))
	assert.ErrorIs(t, err, service.ErrInsufficientCredits)

	// nothing created, nothing charged
	assert.Equal(t, int64(49), getAccount(t, db, 1).Balance)

	var count int64
	require.NoError(t, db.Model(&model.Coupon{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
	require.NoError(t, db.Model(&model.CreditLog{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestCreateCoupon_UnknownOwner(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewCouponService(db, testConfig())

	_, err := svc.CreateCoupon(context.Background(), 42, defaultTerms(t, 1, 0, 0))
	assert.ErrorIs(t, err, service.ErrAccountNotFound)
}

func TestCreateCoupon_TargetingFromOwnerProfile(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewCouponService(db, testConfig())
	ctx := context.Background()

	account := &model.Account{
		UserID: 1, Balance: 200, Roles: model.RoleShopOwner,
		Country: "TR", City: "Istanbul", District: "Kadikoy",
	}
	require.NoError(t, db.Create(account).Error)

	coupon, err := svc.CreateCoupon(ctx, 1, defaultTerms(t, 5, 0, 0))
	require.NoError(t, err)

	assert.False(t, coupon.IsGlobal)
	assert.Equal(t, []string{"TR"}, model.DecodeList(coupon.Countries))
	assert.Equal(t, []string{"Istanbul"}, model.DecodeList(coupon.Cities))
	assert.Equal(t, []string{"Kadikoy"}, model.DecodeList(coupon.Areas))

	// a global coupon empties the location lists
	terms := defaultTerms(t, 5, 0, 0)
	terms.IsGlobal = true
	global, err := svc.CreateCoupon(ctx, 1, terms)
	require.NoError(t, err)

	assert.True(t, global.IsGlobal)
	assert.Empty(t, model.DecodeList(global.Countries))
	assert.Empty(t, model.DecodeList(global.Cities))
	assert.Empty(t, model.DecodeList(global.Areas))
}

func TestListActiveCoupons_CountryFilter(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewCouponService(db, testConfig())
	ctx := context.Background()

	owner := &model.Account{UserID: 1, Balance: 500, Roles: model.RoleShopOwner, Country: "TR"}
	require.NoError(t, db.Create(owner).Error)
	other := &model.Account{UserID: 2, Balance: 500, Roles: model.RoleShopOwner, Country: "DE"}
	require.NoError(t, db.Create(other).Error)

	_, err := svc.CreateCoupon(ctx, 1, defaultTerms(t, 5, 0, 0))
	require.NoError(t, err)
	_, err = svc.CreateCoupon(ctx, 2, defaultTerms(t, 5, 0, 0))
	require.NoError(t, err)

	globalTerms := defaultTerms(t, 5, 0, 0)
	globalTerms.IsGlobal = true
	_, err = svc.CreateCoupon(ctx, 2, globalTerms)
	require.NoError(t, err)

	coupons, total, err := svc.ListActiveCoupons(ctx, "TR", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total) // the TR-targeted one plus the global one
	assert.Len(t, coupons, 2)

	_, total, err = svc.ListActiveCoupons(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestTrackView_DegradesToDirectIncrement(t *testing.T) {
	// no trusted endpoint configured: the view lands as a direct counter
	// increment
	db := newTestDB(t)
	svc := service.NewCouponService(db, testConfig())
	ctx := context.Background()

	createAccount(t, db, 1, 100)
	coupon, err := svc.CreateCoupon(ctx, 1, defaultTerms(t, 5, 0, 0))
	require.NoError(t, err)

	require.NoError(t, svc.TrackView(ctx, coupon.CouponNo))
	require.NoError(t, svc.TrackView(ctx, coupon.CouponNo))

	assert.EqualValues(t, 2, getCoupon(t, db, coupon.CouponNo).ViewCount)
}
