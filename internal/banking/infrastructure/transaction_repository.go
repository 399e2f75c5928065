package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/openledger/banksync/internal/banking/domain"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const upsertColumnCount = 23

// UpsertBatch writes the whole batch with one multi-row statement inside one
// database transaction, keyed on external_transaction_id. On conflict the
// mutable fields are overwritten; status_updated_at is only refreshed when
// the incoming status differs from the stored one. Rows whose mutable fields
// are unchanged are left untouched and are not returned, so re-ingesting an
// identical batch reports neither creates nor updates.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, transactions []domain.Transaction) ([]domain.UpsertOutcome, error) {
	if len(transactions) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(transactions))
	args := make([]interface{}, 0, len(transactions)*upsertColumnCount)
	for i, tx := range transactions {
		base := i * upsertColumnCount
		marks := make([]string, upsertColumnCount)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
		args = append(args,
			tx.ID, tx.ExternalTransactionID, tx.AccountID, tx.UserID,
			tx.AmountUnscaled, tx.AmountScale, tx.CurrencyCode,
			tx.BookedDate, tx.ValueDate, tx.TransactionDate,
			string(tx.Status), tx.OriginalStatus,
			tx.Description, tx.OriginalDescription,
			tx.MerchantName, tx.MerchantCategoryCode, tx.ProviderCategory,
			tx.MainCategory, tx.SubCategory, tx.CategorySource,
			tx.CategoryConfidence, tx.NeedsReview, tx.CategorizedAt,
		)
	}

	query := `
		INSERT INTO transactions (id, external_transaction_id, account_id, user_id,
			amount_unscaled, amount_scale, currency_code,
			booked_date, value_date, transaction_date,
			status, original_status,
			description, original_description,
			merchant_name, merchant_category_code, provider_category,
			main_category, sub_category, category_source,
			category_confidence, needs_review, categorized_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (external_transaction_id) DO UPDATE SET
			status = EXCLUDED.status,
			original_status = EXCLUDED.original_status,
			amount_unscaled = EXCLUDED.amount_unscaled,
			amount_scale = EXCLUDED.amount_scale,
			description = EXCLUDED.description,
			original_description = EXCLUDED.original_description,
			merchant_name = EXCLUDED.merchant_name,
			merchant_category_code = EXCLUDED.merchant_category_code,
			provider_category = EXCLUDED.provider_category,
			main_category = EXCLUDED.main_category,
			sub_category = EXCLUDED.sub_category,
			category_source = EXCLUDED.category_source,
			category_confidence = EXCLUDED.category_confidence,
			needs_review = EXCLUDED.needs_review,
			categorized_at = EXCLUDED.categorized_at,
			status_updated_at = CASE
				WHEN transactions.status IS DISTINCT FROM EXCLUDED.status THEN NOW()
				ELSE transactions.status_updated_at
			END,
			updated_at = NOW()
		WHERE (transactions.status, transactions.amount_unscaled, transactions.amount_scale,
			transactions.description, transactions.original_description, transactions.merchant_name,
			transactions.main_category, transactions.sub_category, transactions.needs_review)
			IS DISTINCT FROM
			(EXCLUDED.status, EXCLUDED.amount_unscaled, EXCLUDED.amount_scale,
			EXCLUDED.description, EXCLUDED.original_description, EXCLUDED.merchant_name,
			EXCLUDED.main_category, EXCLUDED.sub_category, EXCLUDED.needs_review)
		RETURNING external_transaction_id, created_at, updated_at`

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	rows, err := dbTx.QueryContext(ctx, query, args...)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	var outcomes []domain.UpsertOutcome
	for rows.Next() {
		var outcome domain.UpsertOutcome
		if err := rows.Scan(&outcome.ExternalTransactionID, &outcome.CreatedAt, &outcome.UpdatedAt); err != nil {
			rows.Close()
			dbTx.Rollback()
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		dbTx.Rollback()
		return nil, err
	}
	rows.Close()

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// ComputeSyncStatus aggregates what is stored for one account in a single
// round trip; it never loads transaction rows into memory.
func (r *TransactionRepository) ComputeSyncStatus(ctx context.Context, userID, accountID string) (*domain.SyncStatus, error) {
	var status domain.SyncStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT a.last_refreshed_at, COUNT(t.id), MIN(t.booked_date), MAX(t.booked_date)
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		WHERE a.id = $1 AND a.user_id = $2
		GROUP BY a.last_refreshed_at`,
		accountID, userID,
	).Scan(&status.LastSynced, &status.TotalTransactions, &status.OldestDate, &status.NewestDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}
