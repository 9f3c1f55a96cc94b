package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/model"
	"couponmarket/internal/repository"

	"gorm.io/gorm"
)

// KeyExpiryJob sweeps credit keys that expired without being activated and
// emits one admin notification per key. Expired keys are rejected at
// activation time by their timestamp; the sweep only exists so an
// administrator learns that a minted key went unused.
type KeyExpiryJob struct {
	db         *gorm.DB
	creditRepo *repository.CreditRepository
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewKeyExpiryJob(db *gorm.DB, cfg *config.Config) *KeyExpiryJob {
	return &KeyExpiryJob{
		db:         db,
		creditRepo: repository.NewCreditRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   time.Minute,
		batchSize:  100,
	}
}

func (j *KeyExpiryJob) Start(ctx context.Context) {
	log.Println("[KeyExpiryJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[KeyExpiryJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[KeyExpiryJob] stopped")
			return
		case <-ticker.C:
			j.sweepExpiredKeys(ctx)
		}
	}
}

func (j *KeyExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *KeyExpiryJob) sweepExpiredKeys(ctx context.Context) {
	keys, err := j.creditRepo.ListExpiredUnnotifiedKeys(ctx, time.Now(), j.batchSize)
	if err != nil {
		log.Printf("[KeyExpiryJob] failed to query expired keys: %v", err)
		return
	}

	if len(keys) == 0 {
		return
	}

	log.Printf("[KeyExpiryJob] found %d expired unused keys", len(keys))

	for _, key := range keys {
		j.notifyExpired(ctx, key)
	}
}

func (j *KeyExpiryJob) notifyExpired(ctx context.Context, key *model.CreditKey) {
	payload, _ := json.Marshal(map[string]interface{}{
		"event":      "credit_key_expired",
		"request_no": key.RequestNo,
		"user_id":    key.UserID,
		"amount":     key.Amount,
		"expired_at": key.ExpiresAt.Format(time.RFC3339),
	})

	// Notification staging and the notified flag flip share a transaction
	// so a key is announced at most once.
	err := j.db.Transaction(func(tx *gorm.DB) error {
		if err := j.creditRepo.MarkKeyExpiredNotified(ctx, tx, key.Code); err != nil {
			return err
		}
		return j.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: key.RequestNo,
			Topic:      j.cfg.Kafka.Topic.AdminNotifications,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		log.Printf("[KeyExpiryJob] failed to stage expiry notification: requestNo=%s, err=%v", key.RequestNo, err)
		return
	}

	log.Printf("[KeyExpiryJob] expiry notification staged: requestNo=%s, userID=%d", key.RequestNo, key.UserID)
}
