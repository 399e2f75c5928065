package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/openledger/banksync/internal/banking/domain"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, external_account_id, institution_id, credentials_id, iban, name,
		balance_amount, balance_currency, consent_status, consent_expires_at,
		access_token, token_expires_at, token_scope,
		last_refreshed_at, last_incremental_sync_at, created_at, updated_at`

func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (r *AccountRepository) FindByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *AccountRepository) FindByUserAndExternalID(ctx context.Context, userID, externalAccountID string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND external_account_id = $2`,
		userID, externalAccountID)
	return scanAccount(row)
}

func (r *AccountRepository) FindByInstitutionAndIBAN(ctx context.Context, userID, institutionID, iban string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND institution_id = $2 AND iban = $3`,
		userID, institutionID, iban)
	return scanAccount(row)
}

func (r *AccountRepository) FindByCredentials(ctx context.Context, userID, credentialsID string) ([]domain.Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND credentials_id = $2 ORDER BY created_at`,
		userID, credentialsID)
}

func (r *AccountRepository) FindStale(ctx context.Context, olderThan time.Time) ([]domain.Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE consent_status = $1 AND (last_refreshed_at IS NULL OR last_refreshed_at < $2)
		 ORDER BY last_refreshed_at NULLS FIRST`,
		domain.ConsentStatusActive, olderThan)
}

// Save inserts the account or, when the (user, external account) pair already
// exists, refreshes its mutable fields.
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, external_account_id, institution_id, credentials_id, iban, name,
			balance_amount, balance_currency, consent_status, consent_expires_at,
			access_token, token_expires_at, token_scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (user_id, external_account_id) DO UPDATE SET
			credentials_id = COALESCE(EXCLUDED.credentials_id, accounts.credentials_id),
			iban = COALESCE(EXCLUDED.iban, accounts.iban),
			name = EXCLUDED.name,
			balance_amount = EXCLUDED.balance_amount,
			balance_currency = EXCLUDED.balance_currency,
			consent_status = EXCLUDED.consent_status,
			consent_expires_at = EXCLUDED.consent_expires_at,
			access_token = EXCLUDED.access_token,
			token_expires_at = EXCLUDED.token_expires_at,
			token_scope = EXCLUDED.token_scope,
			updated_at = NOW()`,
		account.ID, account.UserID, account.ExternalAccountID, account.InstitutionID,
		account.CredentialsID, account.IBAN, account.Name,
		account.BalanceAmount, account.BalanceCurrency,
		account.ConsentStatus, account.ConsentExpiresAt,
		account.AccessToken, account.TokenExpiresAt, account.TokenScope,
	)
	return err
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, accountID string, amount int64, currency string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_amount = $1, balance_currency = $2, updated_at = NOW() WHERE id = $3`,
		amount, currency, accountID)
	return err
}

func (r *AccountRepository) TouchLastRefreshed(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_refreshed_at = $1, updated_at = NOW() WHERE id = $2`, at, accountID)
	return err
}

func (r *AccountRepository) TouchIncrementalSync(ctx context.Context, accountID string, kind domain.SyncKind, at time.Time) error {
	if kind == domain.SyncKindIncremental {
		_, err := r.db.ExecContext(ctx,
			`UPDATE accounts SET last_incremental_sync_at = $1, updated_at = NOW() WHERE id = $2`, at, accountID)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_incremental_sync_at = $1, last_refreshed_at = $1, updated_at = NOW() WHERE id = $2`,
		at, accountID)
	return err
}

func (r *AccountRepository) SetConsentStatus(ctx context.Context, accountID, status string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET consent_status = $1, consent_expires_at = $2, updated_at = NOW() WHERE id = $3`,
		status, expiresAt, accountID)
	return err
}

func (r *AccountRepository) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*domain.Account, error) {
	var account domain.Account
	err := scanner.Scan(
		&account.ID, &account.UserID, &account.ExternalAccountID, &account.InstitutionID,
		&account.CredentialsID, &account.IBAN, &account.Name,
		&account.BalanceAmount, &account.BalanceCurrency,
		&account.ConsentStatus, &account.ConsentExpiresAt,
		&account.AccessToken, &account.TokenExpiresAt, &account.TokenScope,
		&account.LastRefreshedAt, &account.LastIncrementalSyncAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	account, err := scanAccountRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
