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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditService runs the out-of-band top-up workflow: request, key
// generation, key activation. Only activation touches balances.
type CreditService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	creditRepo  *repository.CreditRepository
	accountRepo *repository.AccountRepository
	logRepo     *repository.CreditLogRepository
	outboxRepo  *repository.OutboxRepository
}

func NewCreditService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *CreditService {
	return &CreditService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		creditRepo:  repository.NewCreditRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		logRepo:     repository.NewCreditLogRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// SubmitRequest opens a PENDING credit request. No ledger effect.
func (s *CreditService) SubmitRequest(ctx context.Context, userID, amount int64) (*model.CreditRequest, error) {
	if amount <= 0 {
		return nil, errors.New("requested amount must be positive")
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	request := &model.CreditRequest{
		RequestNo: idgen.GenerateRequestNo(),
		UserID:    userID,
		Amount:    amount,
		Status:    model.CreditRequestStatusPending,
	}
	if err := s.creditRepo.CreateRequest(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// GenerateKey mints the single-use, time-boxed activation code for a
// pending request and moves the request to KEY_GENERATED. Administrator
// operation; still no ledger effect.
func (s *CreditService) GenerateKey(ctx context.Context, requestNo string) (*model.CreditKey, error) {
	request, err := s.creditRepo.GetRequestByNo(ctx, requestNo)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, ErrRequestStateInvalid
		}
		return nil, err
	}

	if !model.CanTransitionTo(request.Status, model.CreditRequestStatusKeyGenerated) {
		return nil, ErrRequestStateInvalid
	}

	validity := time.Duration(s.cfg.Business.KeyValidityHours) * time.Hour
	if validity <= 0 {
		validity = 72 * time.Hour
	}

	key := &model.CreditKey{
		Code:      uuid.NewString(),
		RequestNo: request.RequestNo,
		UserID:    request.UserID,
		Amount:    request.Amount,
		ExpiresAt: time.Now().Add(validity),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.creditRepo.UpdateRequestStatus(ctx, tx, requestNo,
			model.CreditRequestStatusPending, model.CreditRequestStatusKeyGenerated); err != nil {
			return err
		}
		return s.creditRepo.CreateKey(ctx, tx, key)
	})
	if errors.Is(err, repository.ErrOptimisticLock) {
		return nil, ErrRequestStateInvalid
	}
	if err != nil {
		return nil, err
	}

	log.Printf("credit key generated: requestNo=%s, userID=%d, amount=%d", requestNo, request.UserID, request.Amount)
	return key, nil
}

// ActivateKey credits the presented account within one atomic unit: mark
// the key used, raise the balance, append the ledger entry, complete the
// request. The guarded key update is what makes a key spendable at most
// once — two concurrent activations produce exactly one credit and one
// KeyAlreadyUsed.
func (s *CreditService) ActivateKey(ctx context.Context, userID int64, code string) (*model.CreditLog, error) {
	if s.redisClient != nil {
		activateLock := lock.NewActivateLock(s.redisClient, code, fmt.Sprintf("%d", userID))
		if err := activateLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("system busy, please retry: %w", err)
		}
		defer activateLock.Unlock(ctx)
	}

	for attempt := 0; attempt < conflictRetryLimit; attempt++ {
		entry, err := s.activateKeyOnce(ctx, userID, code)
		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		return entry, err
	}
	return nil, ErrConflictRetry
}

func (s *CreditService) activateKeyOnce(ctx context.Context, userID int64, code string) (*model.CreditLog, error) {
	now := time.Now()

	// ---- reads ----

	key, err := s.creditRepo.GetKeyByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if err := classifyKey(key, userID, now); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry := &model.CreditLog{
		LogNo:         idgen.GenerateLogNo(),
		UserID:        userID,
		RefNo:         key.RequestNo,
		Amount:        key.Amount,
		Type:          model.CreditLogTypeCreditPurchase,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + key.Amount,
		Detail:        fmt.Sprintf("credit key activation - %s", key.RequestNo),
	}

	// ---- writes, one atomic unit ----

	err = s.db.Transaction(func(tx *gorm.DB) error {
		used, err := s.creditRepo.MarkKeyUsed(ctx, tx, code, userID, now)
		if err != nil {
			return err
		}
		if !used {
			// Some guard failed since the read; re-read to produce the
			// precise typed outcome.
			fresh, err := s.creditRepo.GetKeyByCode(ctx, code)
			if err != nil {
				return err
			}
			if err := classifyKey(fresh, userID, now); err != nil {
				return err
			}
			return repository.ErrOptimisticLock
		}

		if err := s.accountRepo.Increase(ctx, tx, userID, key.Amount, account.Version); err != nil {
			return err
		}

		if err := s.logRepo.Append(ctx, tx, entry); err != nil {
			return fmt.Errorf("failed to append credit log: %w", err)
		}

		if err := s.creditRepo.UpdateRequestStatus(ctx, tx, key.RequestNo,
			model.CreditRequestStatusKeyGenerated, model.CreditRequestStatusCompleted); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":      "credit_key_activated",
			"request_no": key.RequestNo,
			"user_id":    userID,
			"amount":     key.Amount,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: key.RequestNo,
			Topic:      s.cfg.Kafka.Topic.AdminNotifications,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("credit key activated: requestNo=%s, userID=%d, amount=%d", key.RequestNo, userID, key.Amount)
	return entry, nil
}

// classifyKey maps a key's state to the typed activation outcome, with
// account mismatch taking precedence so a foreign key never leaks its
// used/expired state.
func classifyKey(key *model.CreditKey, userID int64, now time.Time) error {
	if key.UserID != userID {
		return ErrKeyAccountMismatch
	}
	if key.IsUsed {
		return ErrKeyAlreadyUsed
	}
	if !key.ExpiresAt.After(now) {
		return ErrKeyExpired
	}
	return nil
}

// AdminGrant directly mints credits to an account with an audit entry.
// Administrative side channel; the usual path is the key workflow.
func (s *CreditService) AdminGrant(ctx context.Context, userID, amount int64, reason string) (*model.CreditLog, error) {
	if amount <= 0 {
		return nil, errors.New("grant amount must be positive")
	}

	for attempt := 0; attempt < conflictRetryLimit; attempt++ {
		account, err := s.accountRepo.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		entry := &model.CreditLog{
			LogNo:         idgen.GenerateLogNo(),
			UserID:        userID,
			RefNo:         fmt.Sprintf("GRANT-%s", idgen.GenerateRequestNo()),
			Amount:        amount,
			Type:          model.CreditLogTypeAdminGrant,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance + amount,
			Detail:        reason,
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.accountRepo.Increase(ctx, tx, userID, amount, account.Version); err != nil {
				return err
			}
			return s.logRepo.Append(ctx, tx, entry)
		})
		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return entry, nil
	}
	return nil, ErrConflictRetry
}
