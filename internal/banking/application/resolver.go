package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openledger/banksync/internal/banking/domain"
)

// AccountResolver decides how an incoming connection relates to the accounts
// already stored for a user: which sync mode applies, and whether an incoming
// provider account duplicates a known one.
type AccountResolver struct {
	accounts domain.AccountRepository
}

func NewAccountResolver(accounts domain.AccountRepository) *AccountResolver {
	return &AccountResolver{accounts: accounts}
}

// ResolveSyncMode picks the sync mode for a user. A consent-refresh flag
// always wins; otherwise the presence of any prior account decides between
// token refresh and a new connection.
func (r *AccountResolver) ResolveSyncMode(ctx context.Context, userID string, credentialsID *string, isConsentRefresh bool) (*domain.SyncModeResolution, error) {
	if isConsentRefresh {
		var existing []domain.Account
		if credentialsID != nil {
			accounts, err := r.accounts.FindByCredentials(ctx, userID, *credentialsID)
			if err != nil {
				return nil, err
			}
			existing = accounts
		}
		return &domain.SyncModeResolution{
			Mode:             domain.SyncModeConsentRefresh,
			ExistingAccounts: existing,
			LastSyncDate:     latestRefresh(existing),
		}, nil
	}

	existing, err := r.accounts.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return &domain.SyncModeResolution{Mode: domain.SyncModeNewConnection}, nil
	}
	return &domain.SyncModeResolution{
		Mode:             domain.SyncModeTokenRefresh,
		ExistingAccounts: existing,
	}, nil
}

// DetectDuplicate evaluates the identity rules in strict priority order,
// short-circuiting on the first match.
func (r *AccountResolver) DetectDuplicate(ctx context.Context, userID string, incoming domain.Account, credentialsID *string, isConsentRefresh bool) (*domain.DuplicateCheck, error) {
	// Rule 1: exact provider account id.
	existing, err := r.accounts.FindByUserAndExternalID(ctx, userID, incoming.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &domain.DuplicateCheck{IsDuplicate: true, Existing: existing, Reason: domain.ReasonSameTinkAccount}, nil
	}

	// Rule 2: same institution and IBAN, only when both are present on the
	// incoming record.
	if incoming.InstitutionID != "" && incoming.IBAN != nil && *incoming.IBAN != "" {
		existing, err = r.accounts.FindByInstitutionAndIBAN(ctx, userID, incoming.InstitutionID, *incoming.IBAN)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.DuplicateCheck{IsDuplicate: true, Existing: existing, Reason: domain.ReasonSameInstitutionAndIBAN}, nil
		}
	}

	// Rule 3: same credentials set, only during consent refresh. Skipped for
	// new connections because several legitimate accounts may share one
	// credentials id during onboarding.
	if isConsentRefresh && credentialsID != nil {
		accounts, err := r.accounts.FindByCredentials(ctx, userID, *credentialsID)
		if err != nil {
			return nil, err
		}
		for i := range accounts {
			if accounts[i].ExternalAccountID == incoming.ExternalAccountID {
				return &domain.DuplicateCheck{IsDuplicate: true, Existing: &accounts[i], Reason: domain.ReasonSameCredentials}, nil
			}
		}
	}

	return &domain.DuplicateCheck{IsDuplicate: false}, nil
}

// RegisterProviderAccount stores an incoming provider account, either updating
// the duplicate it resolves to or creating a fresh row.
func (r *AccountResolver) RegisterProviderAccount(ctx context.Context, userID string, incoming domain.Account, credentialsID *string, isConsentRefresh bool) (*domain.Account, error) {
	check, err := r.DetectDuplicate(ctx, userID, incoming, credentialsID, isConsentRefresh)
	if err != nil {
		return nil, err
	}

	if check.IsDuplicate {
		existing := check.Existing
		existing.BalanceAmount = incoming.BalanceAmount
		existing.BalanceCurrency = incoming.BalanceCurrency
		existing.AccessToken = incoming.AccessToken
		existing.TokenExpiresAt = incoming.TokenExpiresAt
		existing.TokenScope = incoming.TokenScope
		existing.ConsentStatus = incoming.ConsentStatus
		existing.ConsentExpiresAt = incoming.ConsentExpiresAt
		if existing.CredentialsID == nil && credentialsID != nil {
			existing.CredentialsID = credentialsID
		}
		if err := r.accounts.Save(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	account := incoming
	account.ID = uuid.NewString()
	account.UserID = userID
	if account.CredentialsID == nil {
		account.CredentialsID = credentialsID
	}
	if err := r.accounts.Save(ctx, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func latestRefresh(accounts []domain.Account) *time.Time {
	var latest *time.Time
	for i := range accounts {
		refreshed := accounts[i].LastRefreshedAt
		if refreshed == nil {
			continue
		}
		if latest == nil || refreshed.After(*latest) {
			latest = refreshed
		}
	}
	return latest
}
