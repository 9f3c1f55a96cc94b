package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/infrastructure/lock"
	"couponmarket/internal/model"
	"couponmarket/internal/repository"
	"couponmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// RedeemService is the redemption transaction orchestrator. Every
// redemption mutates up to four documents (coupon inventory, redeemer
// balance, affiliate balance, referral state) plus the append-only receipt
// and ledger log, and all of it commits or aborts as one unit.
//
// Execution is two-tier: the privileged remote callable first, then a local
// store transaction when the callable is unreachable. The two paths have
// different permission envelopes and are kept as separate code paths on
// purpose — the local one cannot touch the coupon owner's account, so the
// first-redemption flag and the referrer bonus are left to the privileged
// reconciliation job.
type RedeemService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config

	primary  redeemExecutor
	fallback redeemExecutor

	couponRepo     *repository.CouponRepository
	accountRepo    *repository.AccountRepository
	redemptionRepo *repository.RedemptionRepository
	referralRepo   *repository.ReferralRepository
	logRepo        *repository.CreditLogRepository
	outboxRepo     *repository.OutboxRepository
}

// redeemExecutor is one execution tier of the redemption. The two
// implementations are never unified because their permission envelopes
// differ; the service selects between them at call time.
type redeemExecutor interface {
	Execute(ctx context.Context, req *RedeemRequest) (*RedeemResult, error)
}

func NewRedeemService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RedeemService {
	s := &RedeemService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		couponRepo:     repository.NewCouponRepository(db),
		accountRepo:    repository.NewAccountRepository(db),
		redemptionRepo: repository.NewRedemptionRepository(db),
		referralRepo:   repository.NewReferralRepository(db),
		logRepo:        repository.NewCreditLogRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
	s.primary = &trustedExecutor{client: NewTrustedClient(&cfg.Trusted)}
	s.fallback = &localExecutor{s: s}
	return s
}

type RedeemRequest struct {
	CouponNo    string
	RedeemerID  int64
	AffiliateID *int64
	Contact     *ContactDetails // optional, persisted after commit
}

// ContactDetails is the optional customer profile captured for reporting.
type ContactDetails struct {
	Name  string
	Phone string
	Email string
}

type RedeemResult struct {
	RedemptionNo     string `json:"redemption_no"`
	CouponNo         string `json:"coupon_no"`
	RewardEarned     int64  `json:"reward_earned"`
	CommissionEarned int64  `json:"commission_earned"`
	Degraded         bool   `json:"degraded"` // true when the local fallback executed
	Message          string `json:"message,omitempty"`
}

// Redeem executes one coupon redemption.
func (s *RedeemService) Redeem(ctx context.Context, req *RedeemRequest) (*RedeemResult, error) {
	// Best-effort duplicate-submission guard; the store transaction is the
	// correctness boundary, not this lock.
	if s.redisClient != nil {
		redeemLock := lock.NewRedeemLock(s.redisClient, req.RedeemerID, req.CouponNo)
		if err := redeemLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("system busy, please retry: %w", err)
		}
		defer redeemLock.Unlock(ctx)
	}

	result, err := s.primary.Execute(ctx, req)
	if errors.Is(err, ErrTrustedUnavailable) {
		log.Printf("trusted redeem callable unavailable, falling back to local transaction: couponNo=%s, redeemerID=%d",
			req.CouponNo, req.RedeemerID)
		result, err = s.fallback.Execute(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	// Post-commit side channel: contact details are reporting data keyed by
	// the receipt. A failure here is logged, never surfaced — the ledger
	// mutation is already committed.
	if req.Contact != nil && result.RedemptionNo != "" {
		contact := &model.RedemptionContact{
			RedemptionNo: result.RedemptionNo,
			Name:         req.Contact.Name,
			Phone:        req.Contact.Phone,
			Email:        req.Contact.Email,
		}
		if err := s.redemptionRepo.SaveContact(ctx, contact); err != nil {
			log.Printf("failed to persist redemption contact (redemption committed): redemptionNo=%s, err=%v",
				result.RedemptionNo, err)
		}
	}

	return result, nil
}

// trustedExecutor drives the privileged callable. The callable runs the
// full sequence server-side, including the owner's first-redemption flag
// and the one-time referrer bonus, which the local tier is not permitted
// to do.
type trustedExecutor struct {
	client *TrustedClient
}

func (e *trustedExecutor) Execute(ctx context.Context, req *RedeemRequest) (*RedeemResult, error) {
	redemptionNo, err := e.client.Redeem(ctx, req.RedeemerID, req.CouponNo, req.AffiliateID)
	if err != nil {
		return nil, err
	}
	return &RedeemResult{
		RedemptionNo: redemptionNo,
		CouponNo:     req.CouponNo,
		Message:      "redeemed",
	}, nil
}

// payout is one pending balance credit inside the redemption transaction.
type payout struct {
	userID        int64
	amount        int64
	logType       string
	detail        string
	balanceBefore int64
	version       int // account version the guarded increment expects
}

// localExecutor is the client-driven fallback tier: the identical read /
// validate / write sequence against the store directly. All reads happen
// before any write; a write-conflict aborts the whole unit and the
// operation restarts from fresh reads, up to the retry limit.
//
// Known capability gap: this tier cannot write the coupon owner's account,
// so the first-redemption flag stays unset and any pending referrer bonus
// is deferred to the reconciliation job. Degraded mode is logged, never
// silent.
type localExecutor struct {
	s *RedeemService
}

func (e *localExecutor) Execute(ctx context.Context, req *RedeemRequest) (*RedeemResult, error) {
	for attempt := 0; attempt < conflictRetryLimit; attempt++ {
		result, err := e.s.redeemLocalOnce(ctx, req)
		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConflictRetry
}

func (s *RedeemService) redeemLocalOnce(ctx context.Context, req *RedeemRequest) (*RedeemResult, error) {
	now := time.Now()

	// ---- reads ----

	coupon, err := s.couponRepo.GetByCouponNo(ctx, req.CouponNo)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}

	if coupon.UsesLeft <= 0 {
		return nil, ErrCouponExhausted
	}
	if coupon.Expired(now) {
		return nil, ErrCouponExpired
	}

	var redeemer *model.Account
	if coupon.RewardAmount > 0 {
		redeemer, err = s.accountRepo.GetByUserID(ctx, req.RedeemerID)
		if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
		// An unresolvable redeemer forfeits the reward; the redemption
		// itself still proceeds.
	}

	var affiliate *model.Account
	if req.AffiliateID != nil && *req.AffiliateID != coupon.OwnerID && coupon.CommissionAmount > 0 {
		affiliate, err = s.accountRepo.GetByUserID(ctx, *req.AffiliateID)
		if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
	}

	// Snapshot amounts now; later coupon edits must not change what this
	// redemption paid.
	var rewardPaid, commissionPaid int64
	var payouts []payout
	versionOffset := map[int64]int{}

	nextVersion := func(a *model.Account) int {
		v := a.Version + versionOffset[a.UserID]
		versionOffset[a.UserID]++
		return v
	}

	if redeemer != nil {
		rewardPaid = coupon.RewardAmount
		payouts = append(payouts, payout{
			userID:        redeemer.UserID,
			amount:        rewardPaid,
			logType:       model.CreditLogTypeCustomerReward,
			detail:        fmt.Sprintf("customer reward - %s", coupon.Title),
			balanceBefore: redeemer.Balance,
			version:       nextVersion(redeemer),
		})
	}
	if affiliate != nil {
		commissionPaid = coupon.CommissionAmount
		before := affiliate.Balance
		if redeemer != nil && affiliate.UserID == redeemer.UserID {
			before += rewardPaid
		}
		payouts = append(payouts, payout{
			userID:        affiliate.UserID,
			amount:        commissionPaid,
			logType:       model.CreditLogTypeAffiliateCommission,
			detail:        fmt.Sprintf("affiliate commission - %s", coupon.Title),
			balanceBefore: before,
			version:       nextVersion(affiliate),
		})
	}

	redemption := &model.Redemption{
		RedemptionNo:     idgen.GenerateRedemptionNo(),
		CouponNo:         coupon.CouponNo,
		RedeemerID:       req.RedeemerID,
		AffiliateID:      req.AffiliateID,
		CommissionEarned: commissionPaid,
		RewardEarned:     rewardPaid,
	}

	// ---- writes, one atomic unit ----

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.couponRepo.ConsumeUse(ctx, tx, coupon.CouponNo, coupon.Version); err != nil {
			return err
		}

		for _, p := range payouts {
			if err := s.accountRepo.Increase(ctx, tx, p.userID, p.amount, p.version); err != nil {
				return err
			}
			entry := &model.CreditLog{
				LogNo:         idgen.GenerateLogNo(),
				UserID:        p.userID,
				RefNo:         redemption.RedemptionNo,
				Amount:        p.amount,
				Type:          p.logType,
				BalanceBefore: p.balanceBefore,
				BalanceAfter:  p.balanceBefore + p.amount,
				Detail:        p.detail,
			}
			if err := s.logRepo.Append(ctx, tx, entry); err != nil {
				return fmt.Errorf("failed to append credit log: %w", err)
			}
		}

		if err := s.redemptionRepo.Create(ctx, tx, redemption); err != nil {
			return fmt.Errorf("failed to write redemption: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":             "coupon_redeemed",
			"redemption_no":     redemption.RedemptionNo,
			"coupon_no":         coupon.CouponNo,
			"redeemer_id":       req.RedeemerID,
			"affiliate_id":      req.AffiliateID,
			"reward_earned":     rewardPaid,
			"commission_earned": commissionPaid,
			"degraded":          true,
			"redeemed_at":       now.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: redemption.RedemptionNo,
			Topic:      s.cfg.Kafka.Topic.RedemptionEvents,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("failed to stage outbox message: %w", err)
		}

		return nil
	})

	if errors.Is(err, repository.ErrCouponExhausted) {
		return nil, ErrCouponExhausted
	}
	if err != nil {
		return nil, err
	}

	log.Printf("redemption committed (degraded mode, owner flag deferred to reconciliation): redemptionNo=%s, couponNo=%s, ownerID=%d",
		redemption.RedemptionNo, coupon.CouponNo, coupon.OwnerID)

	return &RedeemResult{
		RedemptionNo:     redemption.RedemptionNo,
		CouponNo:         coupon.CouponNo,
		RewardEarned:     rewardPaid,
		CommissionEarned: commissionPaid,
		Degraded:         true,
		Message:          "redeemed in degraded mode",
	}, nil
}

// ReconcileOwner is the privileged completion of degraded redemptions for
// one coupon owner: set the first-redemption flag and, when a pending
// referral exists, pay the one-time referrer bonus. The flag guard makes
// the whole thing idempotent; calling it twice pays nothing twice.
func (s *RedeemService) ReconcileOwner(ctx context.Context, ownerID int64) error {
	for attempt := 0; attempt < conflictRetryLimit; attempt++ {
		err := s.reconcileOwnerOnce(ctx, ownerID)
		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		return err
	}
	return ErrConflictRetry
}

func (s *RedeemService) reconcileOwnerOnce(ctx context.Context, ownerID int64) error {
	referral, err := s.referralRepo.GetPendingByReferred(ctx, nil, ownerID)
	if err != nil {
		return err
	}

	var referrer *model.Account
	if referral != nil {
		referrer, err = s.accountRepo.GetByUserID(ctx, referral.ReferrerID)
		if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
	}

	bonus := s.cfg.Business.ReferrerBonus

	return s.db.Transaction(func(tx *gorm.DB) error {
		// The flag flip is the idempotency guard: losing this race means
		// another pass already reconciled the owner.
		flipped, err := s.accountRepo.MarkFirstRedeemed(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		if referral == nil || referrer == nil || bonus <= 0 {
			return nil
		}

		rewarded, err := s.referralRepo.MarkRewarded(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if !rewarded {
			return nil
		}

		if err := s.accountRepo.Increase(ctx, tx, referrer.UserID, bonus, referrer.Version); err != nil {
			return err
		}

		entry := &model.CreditLog{
			LogNo:         idgen.GenerateLogNo(),
			UserID:        referrer.UserID,
			RefNo:         fmt.Sprintf("REFERRAL-%d", ownerID),
			Amount:        bonus,
			Type:          model.CreditLogTypeReferrerBonus,
			BalanceBefore: referrer.Balance,
			BalanceAfter:  referrer.Balance + bonus,
			Detail:        fmt.Sprintf("referrer bonus for referred owner %d", ownerID),
		}
		if err := s.logRepo.Append(ctx, tx, entry); err != nil {
			return fmt.Errorf("failed to append credit log: %w", err)
		}

		log.Printf("referrer bonus paid: referrerID=%d, referredID=%d, bonus=%d", referrer.UserID, ownerID, bonus)
		return nil
	})
}
