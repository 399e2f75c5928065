package domain

import "time"

type SyncMode string

const (
	SyncModeNewConnection  SyncMode = "new_connection"
	SyncModeTokenRefresh   SyncMode = "token_refresh"
	SyncModeConsentRefresh SyncMode = "consent_refresh"
)

// Duplicate detection reasons, in rule precedence order.
const (
	ReasonSameTinkAccount        = "same_tink_account"
	ReasonSameInstitutionAndIBAN = "same_institution_and_identifiers"
	ReasonSameCredentials        = "same_credentials"
)

// SyncModeResolution is the outcome of deciding how an incoming connection
// relates to what is already stored for the user.
type SyncModeResolution struct {
	Mode             SyncMode
	ExistingAccounts []Account
	LastSyncDate     *time.Time
}

// DuplicateCheck reports whether an incoming provider account maps onto an
// already known one, and under which identity rule.
type DuplicateCheck struct {
	IsDuplicate bool
	Existing    *Account
	Reason      string
}

// StoreResult summarises one storeBatch call.
type StoreResult struct {
	Created int
	Updated int
	Errors  []string
}

// SyncResult is the terminal outcome of one sync invocation. The orchestrator
// always returns a well-formed result, never a raised error.
type SyncResult struct {
	Success                  bool
	AccountID                string
	TransactionsCreated      int
	TransactionsUpdated      int
	Errors                   []string
	TotalTransactionsFetched int
}
