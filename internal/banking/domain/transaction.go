package domain

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

type TransactionStatus string

const (
	StatusBooked    TransactionStatus = "BOOKED"
	StatusPending   TransactionStatus = "PENDING"
	StatusUndefined TransactionStatus = "UNDEFINED"
)

// Classification sources, in the order the cascade tries them.
const (
	SourceProvider           = "provider"
	SourceUserRule           = "user_rule"
	SourceMCC                = "mcc"
	SourceMerchantPattern    = "merchant_pattern"
	SourceDescriptionPattern = "description_pattern"
	SourceAmountHeuristic    = "amount_heuristic"
	SourceAI                 = "ai"
	SourceDefault            = "default"
)

type Transaction struct {
	ID                    string
	ExternalTransactionID string // immutable, the sole upsert conflict key
	AccountID             string
	UserID                string // user UUID
	AmountUnscaled        int64
	AmountScale           int32
	CurrencyCode          string
	BookedDate            time.Time
	ValueDate             *time.Time
	TransactionDate       *time.Time
	Status                TransactionStatus
	OriginalStatus        string
	StatusUpdatedAt       time.Time
	Description           string
	OriginalDescription   string
	MerchantName          *string
	MerchantCategoryCode  *string
	ProviderCategory      *string
	MainCategory          string
	SubCategory           string
	CategorySource        string
	CategoryConfidence    float64
	NeedsReview           bool
	CategorizedAt         time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Amount decodes the stored unscaled value: amount = unscaled * 10^-scale.
func (t *Transaction) Amount() float64 {
	return float64(t.AmountUnscaled) * math.Pow(10, -float64(t.AmountScale))
}

func (t *Transaction) Validate() error {
	if t.ExternalTransactionID == "" {
		return fmt.Errorf("transaction is missing an external transaction id")
	}
	if t.BookedDate.IsZero() {
		return fmt.Errorf("transaction %s is missing a booked date", t.ExternalTransactionID)
	}
	switch t.Status {
	case StatusBooked, StatusPending, StatusUndefined:
	default:
		return fmt.Errorf("transaction %s has unknown status %q", t.ExternalTransactionID, t.Status)
	}
	return nil
}

// ParseAmount converts the aggregator's string-encoded unscaled value and
// scale into the stored integer representation.
func ParseAmount(unscaledValue, scale string) (int64, int32, error) {
	unscaled, err := strconv.ParseInt(unscaledValue, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid unscaled value %q: %w", unscaledValue, err)
	}
	s, err := strconv.ParseInt(scale, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid scale %q: %w", scale, err)
	}
	return unscaled, int32(s), nil
}

// NormalizeStatus maps any provider status string onto the closed status set,
// keeping the original value alongside.
func NormalizeStatus(raw string) TransactionStatus {
	switch TransactionStatus(raw) {
	case StatusBooked, StatusPending:
		return TransactionStatus(raw)
	default:
		return StatusUndefined
	}
}

// UpsertOutcome reports the row timestamps returned by a bulk write. A row
// whose created_at equals updated_at was inserted by that write.
type UpsertOutcome struct {
	ExternalTransactionID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (o UpsertOutcome) WasCreated() bool {
	return o.CreatedAt.Equal(o.UpdatedAt)
}

// SyncStatus is the aggregate view of what is stored for one account.
type SyncStatus struct {
	LastSynced        *time.Time
	TotalTransactions int64
	OldestDate        *time.Time
	NewestDate        *time.Time
}

type TransactionRepository interface {
	UpsertBatch(ctx context.Context, transactions []Transaction) ([]UpsertOutcome, error)
	ComputeSyncStatus(ctx context.Context, userID, accountID string) (*SyncStatus, error)
}
