package service

import (
	"context"
	"errors"

	"couponmarket/internal/model"
	"couponmarket/internal/repository"

	"gorm.io/gorm"
)

type AccountService struct {
	db           *gorm.DB
	accountRepo  *repository.AccountRepository
	referralRepo *repository.ReferralRepository
	logRepo      *repository.CreditLogRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		db:           db,
		accountRepo:  repository.NewAccountRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		logRepo:      repository.NewCreditLogRepository(db),
	}
}

type RegisterRequest struct {
	UserID     int64
	Roles      []string
	ReferrerID *int64
	Country    string
	City       string
	District   string
}

// Register materializes the ledger account for a signed-up user. Identity
// and sessions are owned by the auth collaborator; this only creates the
// balance record, the location profile, and the referral linkage.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*model.Account, error) {
	account, err := s.accountRepo.GetByUserID(ctx, req.UserID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	if account == nil {
		account = &model.Account{
			UserID:     req.UserID,
			Balance:    0,
			ReferrerID: req.ReferrerID,
			Country:    req.Country,
			City:       req.City,
			District:   req.District,
		}
		for _, role := range req.Roles {
			account.AddRole(role)
		}
		if account.Roles == "" {
			account.Roles = model.RoleCustomer
		}
		if err := s.accountRepo.Create(ctx, account); err != nil {
			return nil, err
		}
	}

	// A shop owner signing up via referral creates the pending referral
	// that the first qualifying redemption later rewards.
	if req.ReferrerID != nil && account.HasRole(model.RoleShopOwner) {
		referral := &model.Referral{
			ReferrerID: *req.ReferrerID,
			ReferredID: req.UserID,
			Status:     model.ReferralStatusPending,
		}
		if err := s.referralRepo.Create(ctx, referral); err != nil {
			return nil, err
		}
	}

	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// ListCreditLogs returns an account's ledger trail, newest first.
func (s *AccountService) ListCreditLogs(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditLog, int64, error) {
	return s.logRepo.ListByUserID(ctx, userID, page, pageSize)
}
