package application

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openledger/banksync/internal/banking/domain"
	bankingErrors "github.com/openledger/banksync/internal/banking/errors"
)

const (
	// storeBatchSize is how many transactions share one database transaction.
	storeBatchSize = 50

	maxDescriptionLength = 500
	maxMerchantLength    = 255
)

// Classifier assigns a category to every transaction in place.
type Classifier interface {
	ClassifyAll(ctx context.Context, transactions []domain.Transaction) error
}

// TransactionStore performs at-least-once-safe batch persistence: classify,
// map, and bulk-upsert in fixed-size batches, each inside one database
// transaction. A failing batch is recorded and the rest continue.
type TransactionStore struct {
	repo       domain.TransactionRepository
	classifier Classifier
	batchSize  int
	log        zerolog.Logger
}

func NewTransactionStore(repo domain.TransactionRepository, classifier Classifier, log zerolog.Logger) *TransactionStore {
	return &TransactionStore{repo: repo, classifier: classifier, batchSize: storeBatchSize, log: log}
}

// StoreBatch classifies and persists the transactions for one account.
// Re-running it with an identical list yields zero net row-count change.
func (s *TransactionStore) StoreBatch(ctx context.Context, userID, accountID string, transactions []domain.Transaction) domain.StoreResult {
	var result domain.StoreResult

	for start := 0; start < len(transactions); start += s.batchSize {
		end := start + s.batchSize
		if end > len(transactions) {
			end = len(transactions)
		}

		batch := make([]domain.Transaction, end-start)
		copy(batch, transactions[start:end])

		created, updated, err := s.storeOne(ctx, userID, accountID, batch)
		if err != nil {
			batchErr := bankingErrors.NewBatchError(start, end-1, err)
			s.log.Warn().Err(err).
				Str("account_id", accountID).
				Int("batch_start", start).
				Int("batch_end", end-1).
				Msg("storing transaction batch failed, continuing with the next batch")
			result.Errors = append(result.Errors, batchErr.Error())
			continue
		}
		result.Created += created
		result.Updated += updated
	}
	return result
}

func (s *TransactionStore) storeOne(ctx context.Context, userID, accountID string, batch []domain.Transaction) (created, updated int, err error) {
	for i := range batch {
		batch[i].UserID = userID
		batch[i].AccountID = accountID
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		if err := batch[i].Validate(); err != nil {
			return 0, 0, err
		}
	}

	if err := s.classifier.ClassifyAll(ctx, batch); err != nil {
		return 0, 0, err
	}

	for i := range batch {
		batch[i].Description = truncate(batch[i].Description, maxDescriptionLength)
		batch[i].OriginalDescription = truncate(batch[i].OriginalDescription, maxDescriptionLength)
		if batch[i].MerchantName != nil {
			merchant := truncate(*batch[i].MerchantName, maxMerchantLength)
			batch[i].MerchantName = &merchant
		}
	}

	outcomes, err := s.repo.UpsertBatch(ctx, batch)
	if err != nil {
		return 0, 0, err
	}
	for _, outcome := range outcomes {
		if outcome.WasCreated() {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

// SyncStatus reports the stored aggregate for one account.
func (s *TransactionStore) SyncStatus(ctx context.Context, userID, accountID string) (*domain.SyncStatus, error) {
	return s.repo.ComputeSyncStatus(ctx, userID, accountID)
}

// truncate caps s at max bytes without splitting a multi-byte rune; the
// database rejects text columns holding invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
