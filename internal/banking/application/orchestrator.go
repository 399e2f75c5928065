package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openledger/banksync/internal/banking/domain"
	bankingErrors "github.com/openledger/banksync/internal/banking/errors"
)

// PageIterator is one lazy pass over the aggregator's transaction pages.
type PageIterator interface {
	Next(ctx context.Context) ([]domain.Transaction, error)
	HasMore() bool
}

// AggregatorClient is the slice of the fetch client the orchestrator needs.
type AggregatorClient interface {
	FetchPages(accessToken, userID, externalAccountID string, from, to time.Time, includeAllStatuses bool) PageIterator
	RefreshCredentials(ctx context.Context, accessToken, credentialsID string) error
}

// SyncConfig carries the window tunables of the sync strategies.
type SyncConfig struct {
	MonthsBack  int // initial/full window, months before now
	OverlapDays int // incremental overlap before the last sync date
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{MonthsBack: 3, OverlapDays: 7}
}

type SyncRequest struct {
	UserID           string
	AccountID        string
	AccessToken      string // falls back to the stored account token when empty
	IsConsentRefresh bool
	ForceFullSync    bool
}

// SyncOrchestrator composes the fetch client, the classifier-backed store and
// the account repository under one of the three sync modes. It never lets an
// error escape: every failure mode ends in a well-formed SyncResult.
type SyncOrchestrator struct {
	accounts   domain.AccountRepository
	store      *TransactionStore
	aggregator AggregatorClient
	resolver   *AccountResolver
	cfg        SyncConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewSyncOrchestrator(
	accounts domain.AccountRepository,
	store *TransactionStore,
	aggregator AggregatorClient,
	resolver *AccountResolver,
	cfg SyncConfig,
	log zerolog.Logger,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		accounts:   accounts,
		store:      store,
		aggregator: aggregator,
		resolver:   resolver,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Sync runs one sync invocation for the account named in the request.
func (o *SyncOrchestrator) Sync(ctx context.Context, req SyncRequest) domain.SyncResult {
	result := domain.SyncResult{AccountID: req.AccountID}

	account, err := o.verifyAccount(ctx, req)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	token := req.AccessToken
	if token == "" {
		token = account.AccessToken
	}

	resolution, err := o.resolver.ResolveSyncMode(ctx, req.UserID, account.CredentialsID, req.IsConsentRefresh)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("resolving sync mode: %v", err))
		return result
	}

	// Credential refresh is best-effort: the identifier comes strictly from
	// the account's credentials id, and a failure means syncing with
	// potentially stale data, not aborting.
	if resolution.Mode != domain.SyncModeNewConnection && account.CredentialsID != nil {
		if err := o.aggregator.RefreshCredentials(ctx, token, *account.CredentialsID); err != nil {
			o.log.Warn().Err(err).
				Str("account_id", account.ID).
				Str("credentials_id", *account.CredentialsID).
				Msg("credentials refresh failed, proceeding with possibly stale data")
			result.Errors = append(result.Errors, fmt.Sprintf("warning: credentials refresh failed: %v", err))
		}
	}

	now := o.now()
	from, incremental := o.mainWindow(resolution, req.ForceFullSync, now)

	fatal := o.runPass(ctx, token, account, from, now, true, &result)

	if fatal == nil && incremental {
		// Extra pass over an extended window purely to catch PENDING to
		// BOOKED transitions on already-stored transactions. Incremental
		// syncs always carry a prior sync date, so the window starts there.
		fatal = o.runPass(ctx, token, account, *resolution.LastSyncDate, now, false, &result)
	}

	if fatal != nil {
		// A failed run must not advance the sync watermark: the next
		// consent refresh derives its window from last_refreshed_at, and
		// moving it here would skip whatever this run never fetched.
		result.Errors = append(result.Errors, fatal.Error())
		return result
	}

	o.touchBookkeeping(ctx, account.ID, incremental, now, &result)
	result.Success = true
	return result
}

// SyncDateRange runs one explicit-window pass, regardless of sync mode. All
// statuses are fetched so pending transactions inside the window are caught.
func (o *SyncOrchestrator) SyncDateRange(ctx context.Context, req SyncRequest, from, to time.Time) domain.SyncResult {
	result := domain.SyncResult{AccountID: req.AccountID}

	account, err := o.verifyAccount(ctx, req)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	token := req.AccessToken
	if token == "" {
		token = account.AccessToken
	}

	if fatal := o.runPass(ctx, token, account, from, to, true, &result); fatal != nil {
		result.Errors = append(result.Errors, fatal.Error())
		return result
	}

	if err := o.accounts.TouchLastRefreshed(ctx, account.ID, o.now()); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("warning: updating last refreshed timestamp: %v", err))
	}
	result.Success = true
	return result
}

// SyncStatus reports what is currently stored for the account. The query is
// keyed by both user and account, so ownership is enforced by the lookup.
func (o *SyncOrchestrator) SyncStatus(ctx context.Context, userID, accountID string) (*domain.SyncStatus, error) {
	return o.store.SyncStatus(ctx, userID, accountID)
}

func (o *SyncOrchestrator) verifyAccount(ctx context.Context, req SyncRequest) (*domain.Account, error) {
	account, err := o.accounts.FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", req.AccountID, err)
	}
	if account == nil {
		return nil, bankingErrors.ErrAccountNotFound
	}
	if account.UserID != req.UserID {
		return nil, bankingErrors.ErrAccountNotOwned
	}
	return account, nil
}

// mainWindow picks the fetch window: initial and full strategies cover the
// configured months back; incremental covers the last sync date minus a fixed
// overlap.
func (o *SyncOrchestrator) mainWindow(resolution *domain.SyncModeResolution, forceFull bool, now time.Time) (from time.Time, incremental bool) {
	if resolution.Mode == domain.SyncModeConsentRefresh && resolution.LastSyncDate != nil && !forceFull {
		return resolution.LastSyncDate.AddDate(0, 0, -o.cfg.OverlapDays), true
	}
	return now.AddDate(0, -o.cfg.MonthsBack, 0), false
}

// runPass walks one page sequence, storing each page as it arrives. Storage
// errors stay warnings on the result; a fetch error is returned and aborts
// the pass, leaving already-stored pages committed.
func (o *SyncOrchestrator) runPass(ctx context.Context, token string, account *domain.Account, from, to time.Time, includeAllStatuses bool, result *domain.SyncResult) error {
	pager := o.aggregator.FetchPages(token, account.UserID, account.ExternalAccountID, from, to, includeAllStatuses)

	for pager.HasMore() {
		page, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		result.TotalTransactionsFetched += len(page)
		if len(page) == 0 {
			continue
		}

		stored := o.store.StoreBatch(ctx, account.UserID, account.ID, page)
		result.TransactionsCreated += stored.Created
		result.TransactionsUpdated += stored.Updated
		result.Errors = append(result.Errors, stored.Errors...)
	}
	return nil
}

func (o *SyncOrchestrator) touchBookkeeping(ctx context.Context, accountID string, incremental bool, now time.Time, result *domain.SyncResult) {
	if err := o.accounts.TouchLastRefreshed(ctx, accountID, now); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("warning: updating last refreshed timestamp: %v", err))
	}
	kind := domain.SyncKindFull
	if incremental {
		kind = domain.SyncKindIncremental
	}
	if err := o.accounts.TouchIncrementalSync(ctx, accountID, kind, now); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("warning: updating incremental sync timestamp: %v", err))
	}
}
