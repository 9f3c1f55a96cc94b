package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"couponmarket/internal/config"
	"couponmarket/internal/model"
	"couponmarket/internal/repository"
	"couponmarket/internal/validate"
	"couponmarket/pkg/idgen"

	"gorm.io/gorm"
)

type CouponService struct {
	db          *gorm.DB
	cfg         *config.Config
	trusted     *TrustedClient
	couponRepo  *repository.CouponRepository
	accountRepo *repository.AccountRepository
	logRepo     *repository.CreditLogRepository
	outboxRepo  *repository.OutboxRepository
}

func NewCouponService(db *gorm.DB, cfg *config.Config) *CouponService {
	return &CouponService{
		db:          db,
		cfg:         cfg,
		trusted:     NewTrustedClient(&cfg.Trusted),
		couponRepo:  repository.NewCouponRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		logRepo:     repository.NewCreditLogRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// CreateCoupon publishes a new offer. Input must already have passed the
// validate layer; here the owner is charged the fixed creation fee, the
// coupon is inserted with full inventory, and the fee's ledger entry plus
// the activity event are committed in the same transaction.
func (s *CouponService) CreateCoupon(ctx context.Context, ownerID int64, terms *validate.CouponTerms) (*model.Coupon, error) {
	fee := s.cfg.Business.CouponCreationCost

	for attempt := 0; attempt < conflictRetryLimit; attempt++ {
		// Fresh reads on every attempt: the version guard below is only
		// meaningful against state read this round.
		owner, err := s.accountRepo.GetByUserID(ctx, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}

		if owner.Balance < fee {
			return nil, ErrInsufficientCredits
		}

		targeting := validate.DeriveTargeting(validate.OwnerProfile{
			Country:  owner.Country,
			City:     owner.City,
			District: owner.District,
		}, terms.IsGlobal)

		coupon := &model.Coupon{
			CouponNo:         idgen.GenerateCouponNo(),
			OwnerID:          ownerID,
			Title:            terms.Title,
			Description:      terms.Description,
			DiscountType:     terms.DiscountType,
			DiscountValue:    terms.DiscountValue,
			MaxUses:          terms.MaxUses,
			UsesLeft:         terms.MaxUses,
			ExpiresAt:        terms.ExpiresAt,
			ValidDays:        terms.ValidDays,
			CommissionAmount: terms.Commission,
			RewardAmount:     terms.Reward,
			IsGlobal:         targeting.IsGlobal,
			Countries:        model.EncodeList(targeting.Countries),
			Cities:           model.EncodeList(targeting.Cities),
			Areas:            model.EncodeList(targeting.Areas),
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.accountRepo.Deduct(ctx, tx, ownerID, fee, owner.Version); err != nil {
				return err
			}

			if err := s.couponRepo.Create(ctx, tx, coupon); err != nil {
				return fmt.Errorf("failed to create coupon: %w", err)
			}

			entry := &model.CreditLog{
				LogNo:         idgen.GenerateLogNo(),
				UserID:        ownerID,
				RefNo:         coupon.CouponNo,
				Amount:        -fee,
				Type:          model.CreditLogTypeCreationCost,
				BalanceBefore: owner.Balance,
				BalanceAfter:  owner.Balance - fee,
				Detail:        fmt.Sprintf("coupon creation fee - %s", coupon.Title),
			}
			if err := s.logRepo.Append(ctx, tx, entry); err != nil {
				return fmt.Errorf("failed to append credit log: %w", err)
			}

			payload, _ := json.Marshal(map[string]interface{}{
				"event":     "coupon_created",
				"coupon_no": coupon.CouponNo,
				"owner_id":  ownerID,
				"fee":       fee,
				"max_uses":  coupon.MaxUses,
			})
			outboxMsg := &model.OutboxMessage{
				MessageKey: coupon.CouponNo,
				Topic:      s.cfg.Kafka.Topic.RedemptionEvents,
				Payload:    string(payload),
				Status:     model.OutboxStatusPending,
			}
			if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
				return fmt.Errorf("failed to stage outbox message: %w", err)
			}

			return nil
		})

		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			return nil, ErrInsufficientCredits
		}
		if err != nil {
			return nil, err
		}

		log.Printf("coupon created: couponNo=%s, ownerID=%d, fee=%d", coupon.CouponNo, ownerID, fee)
		return coupon, nil
	}

	return nil, ErrConflictRetry
}

func (s *CouponService) GetCoupon(ctx context.Context, couponNo string) (*model.Coupon, error) {
	coupon, err := s.couponRepo.GetByCouponNo(ctx, couponNo)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func (s *CouponService) ListOwnerCoupons(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Coupon, int64, error) {
	return s.couponRepo.ListByOwner(ctx, ownerID, page, pageSize)
}

func (s *CouponService) ListActiveCoupons(ctx context.Context, country string, page, pageSize int) ([]*model.Coupon, int64, error) {
	return s.couponRepo.ListActive(ctx, country, page, pageSize)
}

// TrackView records one coupon view. The trusted click callable is fire and
// forget; when it is unreachable the view degrades to a direct,
// non-transactional counter increment. View counts are not a ledger
// invariant, so losing one under contention is acceptable.
func (s *CouponService) TrackView(ctx context.Context, couponNo string) error {
	err := s.trusted.Track(ctx, couponNo)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrTrustedUnavailable) {
		return err
	}

	log.Printf("click callable unavailable, incrementing view counter directly: couponNo=%s", couponNo)
	return s.couponRepo.IncrementViews(ctx, couponNo)
}
