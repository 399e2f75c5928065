package interfaces

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/openledger/banksync/internal/banking/application"
	"github.com/openledger/banksync/internal/banking/domain"
)

const dateLayout = "2006-01-02"

type SyncServiceInterface interface {
	Sync(ctx context.Context, req application.SyncRequest) domain.SyncResult
	SyncDateRange(ctx context.Context, req application.SyncRequest, from, to time.Time) domain.SyncResult
	SyncStatus(ctx context.Context, userID, accountID string) (*domain.SyncStatus, error)
}

type SyncHandler struct {
	service      SyncServiceInterface
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewSyncHandler(
	service SyncServiceInterface,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *SyncHandler {
	if service == nil {
		log.Fatal("Service must not be nil")
		return nil
	}
	if respondJSON == nil {
		log.Fatal("RespondJSON function must not be nil")
		return nil
	}
	if respondError == nil {
		log.Fatal("RespondError function must not be nil")
		return nil
	}
	return &SyncHandler{
		service:      service,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

type syncRequestBody struct {
	UserID           string `json:"userId"`
	AccountID        string `json:"accountId"`
	AccessToken      string `json:"accessToken"`
	IsConsentRefresh bool   `json:"isConsentRefresh"`
	ForceFullSync    bool   `json:"forceFullSync"`
	FromDate         string `json:"fromDate"`
	ToDate           string `json:"toDate"`
}

func (b syncRequestBody) toSyncRequest() application.SyncRequest {
	return application.SyncRequest{
		UserID:           b.UserID,
		AccountID:        b.AccountID,
		AccessToken:      b.AccessToken,
		IsConsentRefresh: b.IsConsentRefresh,
		ForceFullSync:    b.ForceFullSync,
	}
}

type syncResultResponse struct {
	Success                  bool     `json:"success"`
	AccountID                string   `json:"accountId"`
	TransactionsCreated      int      `json:"transactionsCreated"`
	TransactionsUpdated      int      `json:"transactionsUpdated"`
	TotalTransactionsFetched int      `json:"totalTransactionsFetched"`
	Errors                   []string `json:"errors,omitempty"`
}

func toSyncResultResponse(result domain.SyncResult) syncResultResponse {
	return syncResultResponse{
		Success:                  result.Success,
		AccountID:                result.AccountID,
		TransactionsCreated:      result.TransactionsCreated,
		TransactionsUpdated:      result.TransactionsUpdated,
		TotalTransactionsFetched: result.TotalTransactionsFetched,
		Errors:                   result.Errors,
	}
}

// StartSync triggers one sync run for the account named in the body. The sync
// mode is resolved server-side; the response always carries a full result,
// partial failures included.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	var body syncRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.UserID == "" || body.AccountID == "" {
		h.respondError(w, http.StatusBadRequest, "userId and accountId are required")
		return
	}

	result := h.service.Sync(r.Context(), body.toSyncRequest())

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Sync completed.",
		"data":    toSyncResultResponse(result),
	})
}

// SyncDateRange triggers one explicit-window sync run.
func (h *SyncHandler) SyncDateRange(w http.ResponseWriter, r *http.Request) {
	var body syncRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.UserID == "" || body.AccountID == "" {
		h.respondError(w, http.StatusBadRequest, "userId and accountId are required")
		return
	}

	from, err := time.Parse(dateLayout, body.FromDate)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid fromDate format")
		return
	}
	to, err := time.Parse(dateLayout, body.ToDate)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid toDate format")
		return
	}
	if to.Before(from) {
		h.respondError(w, http.StatusBadRequest, "toDate must not be before fromDate")
		return
	}

	result := h.service.SyncDateRange(r.Context(), body.toSyncRequest(), from, to)

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Sync completed.",
		"data":    toSyncResultResponse(result),
	})
}

type syncStatusResponse struct {
	LastSynced        *time.Time `json:"lastSynced"`
	TotalTransactions int64      `json:"totalTransactions"`
	OldestDate        *string    `json:"oldestTransactionDate"`
	NewestDate        *string    `json:"newestTransactionDate"`
}

// GetSyncStatus reports what is stored for the account given by the
// userId and accountId query parameters.
func (h *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	accountID := r.URL.Query().Get("accountId")
	if userID == "" || accountID == "" {
		h.respondError(w, http.StatusBadRequest, "userId and accountId are required")
		return
	}

	status, err := h.service.SyncStatus(r.Context(), userID, accountID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve sync status")
		return
	}
	if status == nil {
		h.respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	resp := syncStatusResponse{
		LastSynced:        status.LastSynced,
		TotalTransactions: status.TotalTransactions,
	}
	if status.OldestDate != nil {
		oldest := status.OldestDate.Format(dateLayout)
		resp.OldestDate = &oldest
	}
	if status.NewestDate != nil {
		newest := status.NewestDate.Format(dateLayout)
		resp.NewestDate = &newest
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Sync status retrieved successfully.",
		"data":    resp,
	})
}
