package domain

import (
	"context"
	"time"
)

// Consent statuses reported by the aggregator for a connected account.
const (
	ConsentStatusActive  = "ACTIVE"
	ConsentStatusExpired = "EXPIRED"
	ConsentStatusRevoked = "REVOKED"
)

// SyncKind distinguishes a full window refresh from an incremental catch-up.
type SyncKind string

const (
	SyncKindFull        SyncKind = "full"
	SyncKindIncremental SyncKind = "incremental"
)

type Account struct {
	ID                    string
	UserID                string // user UUID
	ExternalAccountID     string // provider-assigned, stable
	InstitutionID         string
	CredentialsID         *string // nil until the first OAuth callback
	IBAN                  *string
	Name                  string
	BalanceAmount         int64 // minor units
	BalanceCurrency       string
	ConsentStatus         string
	ConsentExpiresAt      *time.Time
	AccessToken           string
	TokenExpiresAt        *time.Time
	TokenScope            string
	LastRefreshedAt       *time.Time
	LastIncrementalSyncAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type AccountRepository interface {
	FindByID(ctx context.Context, accountID string) (*Account, error)
	FindByUser(ctx context.Context, userID string) ([]Account, error)
	FindByUserAndExternalID(ctx context.Context, userID, externalAccountID string) (*Account, error)
	FindByInstitutionAndIBAN(ctx context.Context, userID, institutionID, iban string) (*Account, error)
	FindByCredentials(ctx context.Context, userID, credentialsID string) ([]Account, error)
	Save(ctx context.Context, account *Account) error
	UpdateBalance(ctx context.Context, accountID string, amount int64, currency string) error
	TouchLastRefreshed(ctx context.Context, accountID string, at time.Time) error
	TouchIncrementalSync(ctx context.Context, accountID string, kind SyncKind, at time.Time) error
	SetConsentStatus(ctx context.Context, accountID, status string, expiresAt *time.Time) error
	FindStale(ctx context.Context, olderThan time.Time) ([]Account, error)
}
