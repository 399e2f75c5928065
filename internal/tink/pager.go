package tink

import (
	"context"
	"fmt"
	"time"

	"github.com/openledger/banksync/internal/banking/domain"
)

// Pager walks the aggregator's transaction pages in continuation-token order.
// Consumers may stop iterating at any point; no further pages are fetched.
type Pager struct {
	client             *Client
	accessToken        string
	userID             string
	accountID          string
	from               time.Time
	to                 time.Time
	includeAllStatuses bool

	nextToken string
	started   bool
	done      bool
	delay     time.Duration
}

// FetchPages prepares a lazy page sequence over the account's transactions in
// [from, to]. Nothing is fetched until the first Next call.
func (c *Client) FetchPages(accessToken, userID, accountID string, from, to time.Time, includeAllStatuses bool) *Pager {
	return &Pager{
		client:             c,
		accessToken:        accessToken,
		userID:             userID,
		accountID:          accountID,
		from:               from,
		to:                 to,
		includeAllStatuses: includeAllStatuses,
		delay:              interPageDelay,
	}
}

// HasMore reports whether another page can be fetched. It is true before the
// first fetch and false after the page without a continuation token or after
// an error.
func (p *Pager) HasMore() bool {
	return !p.done
}

// Next fetches the next page and maps it onto domain transactions. A fetch or
// mapping error terminates the sequence; pages already returned stay valid.
func (p *Pager) Next(ctx context.Context) ([]domain.Transaction, error) {
	if p.done {
		return nil, fmt.Errorf("transaction page sequence is exhausted")
	}

	if p.started && p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			p.done = true
			return nil, ctx.Err()
		}
	}
	p.started = true

	resp, err := p.client.listTransactions(ctx, p.accessToken, transactionsQuery{
		accountID:          p.accountID,
		from:               p.from,
		to:                 p.to,
		includeAllStatuses: p.includeAllStatuses,
		pageToken:          p.nextToken,
	})
	if err != nil {
		p.done = true
		return nil, err
	}

	transactions := make([]domain.Transaction, 0, len(resp.Transactions))
	for _, wire := range resp.Transactions {
		tx, err := wire.ToDomain(p.userID, p.accountID)
		if err != nil {
			p.done = true
			return nil, fmt.Errorf("malformed transaction %q in page: %w", wire.ID, err)
		}
		transactions = append(transactions, tx)
	}

	p.nextToken = resp.NextPageToken
	if p.nextToken == "" {
		p.done = true
	}
	return transactions, nil
}
