package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/openledger/banksync/internal/banking/application"
	"github.com/openledger/banksync/internal/banking/domain"
)

type MockSyncService struct {
	Result       domain.SyncResult
	Status       *domain.SyncStatus
	shouldFail   bool
	LastRequest  application.SyncRequest
	LastFrom     time.Time
	LastTo       time.Time
	SyncCalls    int
	RangeCalls   int
	StatusCalls  int
	StatusUserID string
}

func (m *MockSyncService) Sync(_ context.Context, req application.SyncRequest) domain.SyncResult {
	m.SyncCalls++
	m.LastRequest = req
	return m.Result
}

func (m *MockSyncService) SyncDateRange(_ context.Context, req application.SyncRequest, from, to time.Time) domain.SyncResult {
	m.RangeCalls++
	m.LastRequest = req
	m.LastFrom = from
	m.LastTo = to
	return m.Result
}

func (m *MockSyncService) SyncStatus(_ context.Context, userID, _ string) (*domain.SyncStatus, error) {
	m.StatusCalls++
	m.StatusUserID = userID
	if m.shouldFail {
		return nil, errors.New("database unavailable")
	}
	return m.Status, nil
}
