package tink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/openledger/banksync/internal/banking/domain"
	bankingErrors "github.com/openledger/banksync/internal/banking/errors"
)

const (
	defaultPageSize = 100
	// maxFetchAttempts bounds retries for one page request; after that the
	// whole page sequence is aborted.
	maxFetchAttempts = 3
	requestTimeout   = 30 * time.Second
	// interPageDelay paces requests to stay under the aggregator's rate limit.
	interPageDelay = 250 * time.Millisecond
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

type transactionsQuery struct {
	accountID          string
	from               time.Time
	to                 time.Time
	includeAllStatuses bool
	pageToken          string
}

// listTransactions fetches one page, retrying transport failures and non-2xx
// responses with bounded exponential backoff.
func (c *Client) listTransactions(ctx context.Context, accessToken string, query transactionsQuery) (*ListTransactionsResponse, error) {
	var response *ListTransactionsResponse

	operation := func() error {
		resp, err := c.doListTransactions(ctx, accessToken, query)
		if err != nil {
			return err
		}
		response = resp
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if bankingErrors.IsFetchError(err) {
			return nil, err
		}
		return nil, bankingErrors.NewFetchError(0, err.Error())
	}
	return response, nil
}

func (c *Client) doListTransactions(ctx context.Context, accessToken string, query transactionsQuery) (*ListTransactionsResponse, error) {
	params := url.Values{}
	params.Set("accountIdIn", query.accountID)
	params.Set("bookedDateGte", query.from.Format(wireDateLayout))
	params.Set("bookedDateLte", query.to.Format(wireDateLayout))
	params.Set("pageSize", strconv.Itoa(defaultPageSize))
	params.Add("statusIn", string(domain.StatusBooked))
	if query.includeAllStatuses {
		params.Add("statusIn", string(domain.StatusPending))
		params.Add("statusIn", string(domain.StatusUndefined))
	}
	if query.pageToken != "" {
		params.Set("pageToken", query.pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/data/v2/transactions?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, bankingErrors.NewFetchError(resp.StatusCode, string(body))
	}

	var page ListTransactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding transactions page: %w", err)
	}
	return &page, nil
}

// RefreshCredentials asks the aggregator to refresh the banking connection
// behind the given credentials id. The id must come from the Account's
// credentials_id field, never from the provider account id. Failures are left
// to the caller, which treats them as non-fatal.
func (c *Client) RefreshCredentials(ctx context.Context, accessToken, credentialsID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/credentials/%s/refresh", c.baseURL, url.PathEscape(credentialsID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credentials refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("credentials refresh returned status %d: %s", resp.StatusCode, string(body))
	}
	c.log.Debug().Str("credentials_id", credentialsID).Msg("credentials refresh triggered")
	return nil
}
