package infrastructure

import (
	"context"
	"time"

	"github.com/openledger/banksync/internal/banking/domain"
)

// MockAccountRepository is an in-memory AccountRepository for service tests.
type MockAccountRepository struct {
	Accounts []domain.Account

	Saved              []domain.Account
	LastRefreshedTouch map[string]time.Time
	IncrementalTouch   map[string]domain.SyncKind
	FindErr            error
}

func (m *MockAccountRepository) FindByID(_ context.Context, accountID string) (*domain.Account, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for i := range m.Accounts {
		if m.Accounts[i].ID == accountID {
			return &m.Accounts[i], nil
		}
	}
	return nil, nil
}

func (m *MockAccountRepository) FindByUser(_ context.Context, userID string) ([]domain.Account, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	var found []domain.Account
	for _, account := range m.Accounts {
		if account.UserID == userID {
			found = append(found, account)
		}
	}
	return found, nil
}

func (m *MockAccountRepository) FindByUserAndExternalID(_ context.Context, userID, externalAccountID string) (*domain.Account, error) {
	for i := range m.Accounts {
		if m.Accounts[i].UserID == userID && m.Accounts[i].ExternalAccountID == externalAccountID {
			return &m.Accounts[i], nil
		}
	}
	return nil, nil
}

func (m *MockAccountRepository) FindByInstitutionAndIBAN(_ context.Context, userID, institutionID, iban string) (*domain.Account, error) {
	for i := range m.Accounts {
		account := &m.Accounts[i]
		if account.UserID == userID && account.InstitutionID == institutionID &&
			account.IBAN != nil && *account.IBAN == iban {
			return account, nil
		}
	}
	return nil, nil
}

func (m *MockAccountRepository) FindByCredentials(_ context.Context, userID, credentialsID string) ([]domain.Account, error) {
	var found []domain.Account
	for _, account := range m.Accounts {
		if account.UserID == userID && account.CredentialsID != nil && *account.CredentialsID == credentialsID {
			found = append(found, account)
		}
	}
	return found, nil
}

func (m *MockAccountRepository) FindStale(_ context.Context, olderThan time.Time) ([]domain.Account, error) {
	var found []domain.Account
	for _, account := range m.Accounts {
		if account.ConsentStatus != domain.ConsentStatusActive {
			continue
		}
		if account.LastRefreshedAt == nil || account.LastRefreshedAt.Before(olderThan) {
			found = append(found, account)
		}
	}
	return found, nil
}

func (m *MockAccountRepository) Save(_ context.Context, account *domain.Account) error {
	m.Saved = append(m.Saved, *account)
	for i := range m.Accounts {
		if m.Accounts[i].UserID == account.UserID && m.Accounts[i].ExternalAccountID == account.ExternalAccountID {
			m.Accounts[i] = *account
			return nil
		}
	}
	m.Accounts = append(m.Accounts, *account)
	return nil
}

func (m *MockAccountRepository) UpdateBalance(_ context.Context, accountID string, amount int64, currency string) error {
	for i := range m.Accounts {
		if m.Accounts[i].ID == accountID {
			m.Accounts[i].BalanceAmount = amount
			m.Accounts[i].BalanceCurrency = currency
		}
	}
	return nil
}

func (m *MockAccountRepository) TouchLastRefreshed(_ context.Context, accountID string, at time.Time) error {
	if m.LastRefreshedTouch == nil {
		m.LastRefreshedTouch = make(map[string]time.Time)
	}
	m.LastRefreshedTouch[accountID] = at
	for i := range m.Accounts {
		if m.Accounts[i].ID == accountID {
			touched := at
			m.Accounts[i].LastRefreshedAt = &touched
		}
	}
	return nil
}

func (m *MockAccountRepository) TouchIncrementalSync(_ context.Context, accountID string, kind domain.SyncKind, at time.Time) error {
	if m.IncrementalTouch == nil {
		m.IncrementalTouch = make(map[string]domain.SyncKind)
	}
	m.IncrementalTouch[accountID] = kind
	return nil
}

func (m *MockAccountRepository) SetConsentStatus(_ context.Context, accountID, status string, expiresAt *time.Time) error {
	for i := range m.Accounts {
		if m.Accounts[i].ID == accountID {
			m.Accounts[i].ConsentStatus = status
			m.Accounts[i].ConsentExpiresAt = expiresAt
		}
	}
	return nil
}
