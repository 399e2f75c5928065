package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/openledger/banksync/internal/banking/domain"
	bankingErrors "github.com/openledger/banksync/internal/banking/errors"
	"github.com/openledger/banksync/internal/banking/infrastructure"
)

// fakePager serves scripted pages and optionally fails afterwards.
type fakePager struct {
	pages    [][]domain.Transaction
	failWith error
	idx      int
	done     bool
}

func (p *fakePager) HasMore() bool { return !p.done }

func (p *fakePager) Next(_ context.Context) ([]domain.Transaction, error) {
	if p.idx < len(p.pages) {
		page := p.pages[p.idx]
		p.idx++
		if p.idx == len(p.pages) && p.failWith == nil {
			p.done = true
		}
		return page, nil
	}
	p.done = true
	if p.failWith != nil {
		return nil, p.failWith
	}
	return nil, nil
}

type fetchCall struct {
	token              string
	externalAccountID  string
	from, to           time.Time
	includeAllStatuses bool
}

// fakeAggregator hands out one scripted pager per FetchPages call.
type fakeAggregator struct {
	pagers       []*fakePager
	calls        []fetchCall
	refreshCalls []string
	refreshErr   error
}

func (a *fakeAggregator) FetchPages(accessToken, _, externalAccountID string, from, to time.Time, includeAllStatuses bool) PageIterator {
	a.calls = append(a.calls, fetchCall{
		token:              accessToken,
		externalAccountID:  externalAccountID,
		from:               from,
		to:                 to,
		includeAllStatuses: includeAllStatuses,
	})
	if len(a.pagers) == 0 {
		return &fakePager{}
	}
	pager := a.pagers[0]
	a.pagers = a.pagers[1:]
	return pager
}

func (a *fakeAggregator) RefreshCredentials(_ context.Context, _ string, credentialsID string) error {
	a.refreshCalls = append(a.refreshCalls, credentialsID)
	return a.refreshErr
}

var testNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(accounts *infrastructure.MockAccountRepository, aggregator *fakeAggregator) (*SyncOrchestrator, *infrastructure.MockTransactionRepository) {
	txRepo := infrastructure.NewMockTransactionRepository()
	store := NewTransactionStore(txRepo, &stubClassifier{}, zerolog.Nop())
	orchestrator := NewSyncOrchestrator(accounts, store, aggregator, NewAccountResolver(accounts), DefaultSyncConfig(), zerolog.Nop())
	orchestrator.now = func() time.Time { return testNow }
	return orchestrator, txRepo
}

func storedAccount() domain.Account {
	creds := "cred-1"
	return domain.Account{
		ID:                "acc-1",
		UserID:            "user-1",
		ExternalAccountID: "ext-1",
		InstitutionID:     "bank-a",
		CredentialsID:     &creds,
		AccessToken:       "stored-token",
		ConsentStatus:     domain.ConsentStatusActive,
	}
}

func TestSync_FullWindowSuccess(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{pagers: []*fakePager{
		{pages: [][]domain.Transaction{
			{incomingTx("tx-1"), incomingTx("tx-2")},
			{incomingTx("tx-3")},
		}},
	}}
	orchestrator, txRepo := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "fresh-token",
	})

	assert.True(t, result.Success)
	assert.Equal(t, "acc-1", result.AccountID)
	assert.Equal(t, 3, result.TotalTransactionsFetched)
	assert.Equal(t, 3, result.TransactionsCreated)
	assert.Equal(t, 0, result.TransactionsUpdated)
	assert.Empty(t, result.Errors)
	assert.Len(t, txRepo.Rows, 3)

	// One full-window pass, three months back, all statuses.
	assert.Len(t, aggregator.calls, 1)
	call := aggregator.calls[0]
	assert.Equal(t, "fresh-token", call.token)
	assert.Equal(t, "ext-1", call.externalAccountID)
	assert.Equal(t, testNow.AddDate(0, -3, 0), call.from)
	assert.Equal(t, testNow, call.to)
	assert.True(t, call.includeAllStatuses)

	// Not a new connection, so the credentials got refreshed first.
	assert.Equal(t, []string{"cred-1"}, aggregator.refreshCalls)

	assert.Equal(t, testNow, accounts.LastRefreshedTouch["acc-1"])
	assert.Equal(t, domain.SyncKindFull, accounts.IncrementalTouch["acc-1"])
}

func TestSync_ConsentRefreshRunsIncrementalAndStatusPass(t *testing.T) {
	account := storedAccount()
	account.LastRefreshedAt = timePtr(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{account}}
	aggregator := &fakeAggregator{pagers: []*fakePager{
		{pages: [][]domain.Transaction{{incomingTx("tx-1")}}},
		{pages: [][]domain.Transaction{{incomingTx("tx-1")}}},
	}}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "tok", IsConsentRefresh: true,
	})

	assert.True(t, result.Success)
	assert.Len(t, aggregator.calls, 2)

	// Main pass: last sync date minus the overlap, all statuses.
	main := aggregator.calls[0]
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), main.from)
	assert.True(t, main.includeAllStatuses)

	// Status pass: from the last sync date, booked only.
	status := aggregator.calls[1]
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), status.from)
	assert.False(t, status.includeAllStatuses)

	// The same transaction seen twice is fetched twice but created once.
	assert.Equal(t, 2, result.TotalTransactionsFetched)
	assert.Equal(t, 1, result.TransactionsCreated)
	assert.Equal(t, 0, result.TransactionsUpdated)

	assert.Equal(t, domain.SyncKindIncremental, accounts.IncrementalTouch["acc-1"])
}

func TestSync_ForceFullIgnoresLastSyncDate(t *testing.T) {
	account := storedAccount()
	account.LastRefreshedAt = timePtr(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{account}}
	aggregator := &fakeAggregator{}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "tok",
		IsConsentRefresh: true, ForceFullSync: true,
	})

	assert.True(t, result.Success)
	assert.Len(t, aggregator.calls, 1, "a forced full sync has no status pass")
	assert.Equal(t, testNow.AddDate(0, -3, 0), aggregator.calls[0].from)
	assert.Equal(t, domain.SyncKindFull, accounts.IncrementalTouch["acc-1"])
}

func TestSync_CredentialRefreshFailureIsOnlyAWarning(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{refreshErr: errors.New("provider timeout")}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "tok",
	})

	assert.True(t, result.Success)
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "warning: credentials refresh failed")
	assert.Len(t, aggregator.calls, 1, "the sync still runs")
}

func TestSync_FetchErrorKeepsPartialResults(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{pagers: []*fakePager{
		{
			pages:    [][]domain.Transaction{{incomingTx("tx-1"), incomingTx("tx-2")}},
			failWith: bankingErrors.NewFetchError(502, "bad gateway"),
		},
	}}
	orchestrator, txRepo := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "tok",
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.TransactionsCreated, "pages stored before the failure stay committed")
	assert.Len(t, txRepo.Rows, 2)
	assert.NotEmpty(t, result.Errors)

	// The sync watermark stays put, so the next run refetches the window.
	assert.NotContains(t, accounts.LastRefreshedTouch, "acc-1")
	assert.NotContains(t, accounts.IncrementalTouch, "acc-1")
}

func TestSync_FailedRunDoesNotAdvanceConsentRefreshWindow(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{pagers: []*fakePager{
		{failWith: bankingErrors.NewFetchError(502, "bad gateway")},
	}}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "tok",
	})
	assert.False(t, result.Success)

	// A consent refresh after the failed run must not treat the failure
	// time as the last sync date; it falls back to the full window.
	resolution, err := NewAccountResolver(accounts).ResolveSyncMode(
		context.Background(), "user-1", storedAccount().CredentialsID, true)
	assert.NoError(t, err)
	assert.Nil(t, resolution.LastSyncDate)
}

func TestSync_UnknownAccount(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{}
	aggregator := &fakeAggregator{}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{UserID: "user-1", AccountID: "missing"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], bankingErrors.ErrAccountNotFound.Error())
	assert.Empty(t, aggregator.calls)
}

func TestSync_AccountOwnedBySomeoneElse(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{UserID: "intruder", AccountID: "acc-1"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], bankingErrors.ErrAccountNotOwned.Error())
	assert.Empty(t, aggregator.calls)
}

func TestSync_FallsBackToStoredToken(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	result := orchestrator.Sync(context.Background(), SyncRequest{UserID: "user-1", AccountID: "acc-1"})
	assert.True(t, result.Success)
	assert.Equal(t, "stored-token", aggregator.calls[0].token)
}

func TestSyncDateRange_UsesTheExplicitWindow(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{pagers: []*fakePager{
		{pages: [][]domain.Transaction{{incomingTx("tx-1")}}},
	}}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	from := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	result := orchestrator.SyncDateRange(context.Background(), SyncRequest{
		UserID: "user-1", AccountID: "acc-1", AccessToken: "tok",
	}, from, to)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TransactionsCreated)
	assert.Len(t, aggregator.calls, 1)
	assert.Equal(t, from, aggregator.calls[0].from)
	assert.Equal(t, to, aggregator.calls[0].to)
	assert.True(t, aggregator.calls[0].includeAllStatuses)
	assert.Empty(t, aggregator.refreshCalls, "an explicit range sync does not touch credentials")
	assert.Equal(t, testNow, accounts.LastRefreshedTouch["acc-1"])
}

func TestSyncStatus_DelegatesToTheStore(t *testing.T) {
	accounts := &infrastructure.MockAccountRepository{Accounts: []domain.Account{storedAccount()}}
	aggregator := &fakeAggregator{pagers: []*fakePager{
		{pages: [][]domain.Transaction{{incomingTx("tx-1"), incomingTx("tx-2")}}},
	}}
	orchestrator, _ := newTestOrchestrator(accounts, aggregator)

	orchestrator.Sync(context.Background(), SyncRequest{UserID: "user-1", AccountID: "acc-1", AccessToken: "tok"})

	status, err := orchestrator.SyncStatus(context.Background(), "user-1", "acc-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), status.TotalTransactions)
}
