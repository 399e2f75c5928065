package errors

import (
	"errors"
	"fmt"
)

// FetchError is raised when the aggregator keeps failing after retries. It is
// fatal to the current page sequence but not to pages already stored.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("aggregator fetch failed: %s", e.Message)
	}
	return fmt.Sprintf("aggregator fetch failed with status %d: %s", e.StatusCode, e.Message)
}

func NewFetchError(statusCode int, message string) error {
	return &FetchError{StatusCode: statusCode, Message: message}
}

func IsFetchError(err error) bool {
	var fetchError *FetchError
	return errors.As(err, &fetchError)
}

// BatchError tags a storage or classification failure with the index range of
// the batch it happened in. Batch errors never abort the remaining batches.
type BatchError struct {
	StartIndex int
	EndIndex   int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d-%d: %v", e.StartIndex, e.EndIndex, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func NewBatchError(startIndex, endIndex int, err error) error {
	return &BatchError{StartIndex: startIndex, EndIndex: endIndex, Err: err}
}

func IsBatchError(err error) bool {
	var batchError *BatchError
	return errors.As(err, &batchError)
}

// ResolutionError means the sync target account could not be resolved for the
// user. It is fatal to the whole sync.
type ResolutionError struct {
	Msg string
}

func (e *ResolutionError) Error() string {
	return e.Msg
}

func NewResolutionError(msg string) error {
	return &ResolutionError{Msg: msg}
}

func IsResolutionError(err error) bool {
	var resolutionError *ResolutionError
	return errors.As(err, &resolutionError)
}

var ErrAccountNotFound = NewResolutionError("account not found")
var ErrAccountNotOwned = NewResolutionError("account does not belong to this user")
