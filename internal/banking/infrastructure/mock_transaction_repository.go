package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/openledger/banksync/internal/banking/domain"
)

// MockTransactionRepository emulates the upsert semantics of the real store
// in memory: conflict on external id, untouched rows when nothing changed,
// created/updated told apart by row timestamps.
type MockTransactionRepository struct {
	Rows map[string]domain.Transaction

	// FailOnExternalID makes any batch containing this id fail, to exercise
	// batch fault isolation.
	FailOnExternalID string

	clock int64
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{Rows: make(map[string]domain.Transaction)}
}

func (m *MockTransactionRepository) tick() time.Time {
	m.clock++
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.clock) * time.Second)
}

func (m *MockTransactionRepository) UpsertBatch(_ context.Context, transactions []domain.Transaction) ([]domain.UpsertOutcome, error) {
	for _, tx := range transactions {
		if m.FailOnExternalID != "" && tx.ExternalTransactionID == m.FailOnExternalID {
			return nil, fmt.Errorf("simulated write failure on %s", tx.ExternalTransactionID)
		}
	}

	now := m.tick()
	var outcomes []domain.UpsertOutcome
	for _, tx := range transactions {
		existing, ok := m.Rows[tx.ExternalTransactionID]
		if !ok {
			tx.CreatedAt = now
			tx.UpdatedAt = now
			tx.StatusUpdatedAt = now
			m.Rows[tx.ExternalTransactionID] = tx
			outcomes = append(outcomes, domain.UpsertOutcome{
				ExternalTransactionID: tx.ExternalTransactionID, CreatedAt: now, UpdatedAt: now,
			})
			continue
		}

		if !mutableFieldsDiffer(existing, tx) {
			continue
		}
		tx.CreatedAt = existing.CreatedAt
		tx.UpdatedAt = now
		if existing.Status != tx.Status {
			tx.StatusUpdatedAt = now
		} else {
			tx.StatusUpdatedAt = existing.StatusUpdatedAt
		}
		m.Rows[tx.ExternalTransactionID] = tx
		outcomes = append(outcomes, domain.UpsertOutcome{
			ExternalTransactionID: tx.ExternalTransactionID, CreatedAt: existing.CreatedAt, UpdatedAt: now,
		})
	}
	return outcomes, nil
}

func mutableFieldsDiffer(a, b domain.Transaction) bool {
	if a.Status != b.Status || a.AmountUnscaled != b.AmountUnscaled || a.AmountScale != b.AmountScale {
		return true
	}
	if a.Description != b.Description || a.OriginalDescription != b.OriginalDescription {
		return true
	}
	if (a.MerchantName == nil) != (b.MerchantName == nil) {
		return true
	}
	if a.MerchantName != nil && *a.MerchantName != *b.MerchantName {
		return true
	}
	return a.MainCategory != b.MainCategory || a.SubCategory != b.SubCategory || a.NeedsReview != b.NeedsReview
}

func (m *MockTransactionRepository) ComputeSyncStatus(_ context.Context, userID, accountID string) (*domain.SyncStatus, error) {
	var status domain.SyncStatus
	for _, tx := range m.Rows {
		if tx.UserID != userID || tx.AccountID != accountID {
			continue
		}
		status.TotalTransactions++
		booked := tx.BookedDate
		if status.OldestDate == nil || booked.Before(*status.OldestDate) {
			oldest := booked
			status.OldestDate = &oldest
		}
		if status.NewestDate == nil || booked.After(*status.NewestDate) {
			newest := booked
			status.NewestDate = &newest
		}
	}
	return &status, nil
}
