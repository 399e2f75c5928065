package tink

import (
	"time"

	"github.com/openledger/banksync/internal/banking/domain"
)

const wireDateLayout = "2006-01-02"

// ListTransactionsResponse is the aggregator's paginated transactions payload.
type ListTransactionsResponse struct {
	Transactions  []WireTransaction `json:"transactions"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type WireAmount struct {
	Value struct {
		UnscaledValue string `json:"unscaledValue"`
		Scale         string `json:"scale"`
	} `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

type WireDates struct {
	Booked      string `json:"booked"`
	Value       string `json:"value,omitempty"`
	Transaction string `json:"transaction,omitempty"`
}

type WireDescriptions struct {
	Display  string `json:"display"`
	Original string `json:"original"`
}

type WireMerchantInformation struct {
	MerchantName         string `json:"merchantName,omitempty"`
	MerchantCategoryCode string `json:"merchantCategoryCode,omitempty"`
}

type WireCategories struct {
	Pfm *struct {
		Name string `json:"name"`
	} `json:"pfm,omitempty"`
}

type WireTransaction struct {
	ID           string                   `json:"id"`
	AccountID    string                   `json:"accountId"`
	Amount       WireAmount               `json:"amount"`
	Dates        WireDates                `json:"dates"`
	Descriptions WireDescriptions         `json:"descriptions"`
	Status       string                   `json:"status"`
	Merchant     *WireMerchantInformation `json:"merchantInformation,omitempty"`
	Categories   *WireCategories          `json:"categories,omitempty"`
}

// ToDomain maps a wire transaction onto the stored shape. The booked date and
// amount must parse; the optional dates are dropped when malformed.
func (w WireTransaction) ToDomain(userID, accountID string) (domain.Transaction, error) {
	unscaled, scale, err := domain.ParseAmount(w.Amount.Value.UnscaledValue, w.Amount.Value.Scale)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		ExternalTransactionID: w.ID,
		AccountID:             accountID,
		UserID:                userID,
		AmountUnscaled:        unscaled,
		AmountScale:           scale,
		CurrencyCode:          w.Amount.CurrencyCode,
		Status:                domain.NormalizeStatus(w.Status),
		OriginalStatus:        w.Status,
		Description:           w.Descriptions.Display,
		OriginalDescription:   w.Descriptions.Original,
	}

	tx.BookedDate, err = time.Parse(wireDateLayout, w.Dates.Booked)
	if err != nil {
		return domain.Transaction{}, err
	}
	if w.Dates.Value != "" {
		if d, err := time.Parse(wireDateLayout, w.Dates.Value); err == nil {
			tx.ValueDate = &d
		}
	}
	if w.Dates.Transaction != "" {
		if d, err := time.Parse(wireDateLayout, w.Dates.Transaction); err == nil {
			tx.TransactionDate = &d
		}
	}

	if w.Merchant != nil {
		if w.Merchant.MerchantName != "" {
			name := w.Merchant.MerchantName
			tx.MerchantName = &name
		}
		if w.Merchant.MerchantCategoryCode != "" {
			code := w.Merchant.MerchantCategoryCode
			tx.MerchantCategoryCode = &code
		}
	}
	if w.Categories != nil && w.Categories.Pfm != nil && w.Categories.Pfm.Name != "" {
		category := w.Categories.Pfm.Name
		tx.ProviderCategory = &category
	}

	return tx, nil
}
