package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/commercestack/internal/models"
)

// ErrInsufficientCredit reports that a user's balance cannot cover a
// reservation. gormCreditStore keeps no balance and never returns it.
var ErrInsufficientCredit = errors.New("store: insufficient credit")

// Receipt is a pre-authorized hold on a user's credit balance,
// committed on success or refunded on failure (spec glossary
// "Reservation / receipt"). Pricing policy and abuse checks are
// explicitly out of scope (spec §1); this store only guarantees the
// reserve/commit/refund atomicity and idempotency spec §5 requires.
type Receipt struct {
	models.BaseModel

	UserID string `gorm:"not null;size:64;index" json:"userId"`
	JobID  string `gorm:"size:26;index" json:"jobId,omitempty"`
	Amount int64  `gorm:"not null" json:"amount"`

	// State is one of reserved, committed, refunded. Exactly one of
	// commit/refund must eventually run per spec §8 "Credit
	// conservation".
	State string `gorm:"not null;size:20;index" json:"state"`

	// IdempotencyKey is {jobId}:{event}, enforced unique so a retried
	// commit/refund call is a no-op rather than a double-debit.
	IdempotencyKey string `gorm:"size:128;uniqueIndex" json:"idempotencyKey"`
}

func (Receipt) TableName() string { return "credit_receipts" }

const (
	receiptStateReserved  = "reserved"
	receiptStateCommitted = "committed"
	receiptStateRefunded  = "refunded"
)

// CreditStore is the narrow credit interface the job lifecycle
// consumes (spec §1: "The core consumes only reserve(userId, amount)
// → receipt and refund(receipt)"; commit is the symmetric
// success-path operation implied by §4.7 "Completion: ... commit
// reserved credits").
type CreditStore interface {
	Reserve(ctx context.Context, userID string, jobID string, amount int64) (*Receipt, error)
	Commit(ctx context.Context, receipt *Receipt) error
	Refund(ctx context.Context, receipt *Receipt) error
}

// gormCreditStore implements CreditStore with one atomic row
// update/insert per call, the same serialized-transaction idiom
// internal/repository/job_repo.go uses for AcquireJob.
type gormCreditStore struct {
	db *gorm.DB
}

// NewGormCreditStore returns a CreditStore backed by db.
func NewGormCreditStore(db *gorm.DB) CreditStore {
	return &gormCreditStore{db: db}
}

func (s *gormCreditStore) Reserve(ctx context.Context, userID, jobID string, amount int64) (*Receipt, error) {
	r := &Receipt{
		UserID:         userID,
		JobID:          jobID,
		Amount:         amount,
		State:          receiptStateReserved,
		IdempotencyKey: fmt.Sprintf("%s:reserve", jobID),
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("store: reserve credit: %w", err)
	}
	return r, nil
}

func (s *gormCreditStore) Commit(ctx context.Context, receipt *Receipt) error {
	return s.transition(ctx, receipt, receiptStateCommitted, "commit")
}

func (s *gormCreditStore) Refund(ctx context.Context, receipt *Receipt) error {
	return s.transition(ctx, receipt, receiptStateRefunded, "refund")
}

// transition performs the state change idempotently: a retried call
// with the same {jobId}:{event} idempotency key only affects a row
// still in "reserved" state, so a redelivered commit/refund is a
// harmless no-op rather than a double-debit (spec §8 "Credit
// conservation").
func (s *gormCreditStore) transition(ctx context.Context, receipt *Receipt, newState, event string) error {
	key := fmt.Sprintf("%s:%s", receipt.JobID, event)
	res := s.db.WithContext(ctx).Model(&Receipt{}).
		Where("id = ? AND state = ?", receipt.ID, receiptStateReserved).
		Updates(map[string]any{"state": newState, "idempotency_key": key})
	if res.Error != nil {
		return fmt.Errorf("store: %s credit: %w", event, res.Error)
	}
	if res.RowsAffected == 0 {
		// Already committed/refunded by a prior delivery; idempotent no-op.
		return nil
	}
	receipt.State = newState
	return nil
}
