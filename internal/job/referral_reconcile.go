package job

import (
	"context"
	"log"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/repository"
	"couponmarket/internal/service"

	"gorm.io/gorm"
)

// ReferralReconcileJob closes the fallback path's capability gap. Degraded
// redemptions cannot flip the coupon owner's first-redemption flag, so
// referrer bonuses would otherwise be skipped silently. This job runs with
// full store privileges, finds owners that have redemptions but no flag,
// and completes the flag flip plus the pending bonus payout.
type ReferralReconcileJob struct {
	db             *gorm.DB
	redemptionRepo *repository.RedemptionRepository
	redeemService  *service.RedeemService
	cfg            *config.Config
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
}

func NewReferralReconcileJob(db *gorm.DB, redeemService *service.RedeemService, cfg *config.Config) *ReferralReconcileJob {
	return &ReferralReconcileJob{
		db:             db,
		redemptionRepo: repository.NewRedemptionRepository(db),
		redeemService:  redeemService,
		cfg:            cfg,
		stopCh:         make(chan struct{}),
		interval:       30 * time.Second,
		batchSize:      50,
	}
}

func (j *ReferralReconcileJob) Start(ctx context.Context) {
	log.Println("[ReferralReconcileJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReferralReconcileJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[ReferralReconcileJob] stopped")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *ReferralReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReferralReconcileJob) reconcile(ctx context.Context) {
	ownerIDs, err := j.redemptionRepo.ListUnreconciledOwners(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ReferralReconcileJob] failed to query unreconciled owners: %v", err)
		return
	}

	if len(ownerIDs) == 0 {
		return
	}

	log.Printf("[ReferralReconcileJob] found %d owners to reconcile", len(ownerIDs))

	for _, ownerID := range ownerIDs {
		if err := j.redeemService.ReconcileOwner(ctx, ownerID); err != nil {
			log.Printf("[ReferralReconcileJob] reconciliation failed: ownerID=%d, err=%v", ownerID, err)
			continue
		}
		log.Printf("[ReferralReconcileJob] owner reconciled: ownerID=%d", ownerID)
	}
}
