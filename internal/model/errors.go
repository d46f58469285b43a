package model

import (
	"errors"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
)

// ErrInvalidQuery is returned by Search when neither text nor filters are given.
var ErrInvalidQuery = errors.New("invalid query: search text or at least one filter is required")

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransientFetchError is returned once a retryable failure outlives its retries.
type TransientFetchError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// MalformedRecordError marks a single record whose shape could not be mapped.
// Only that record is skipped.
type MalformedRecordError struct {
	Provider string
	Index    int // position within its page
	Reason   string
	Err      error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("%s record %d malformed: %s", e.Provider, e.Index, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// SourceSkippedError reports that a source was abandoned part way through.
// Records ingested before the failure stay stored.
type SourceSkippedError struct {
	Provider string
	Source   string
	Err      error
}

func (e *SourceSkippedError) Error() string {
	return fmt.Sprintf("source %s/%s skipped: %v", e.Provider, e.Source, e.Err)
}

func (e *SourceSkippedError) Unwrap() error {
	return e.Err
}

// StorageIntegrityError is a constraint failure outside the upsert path.
// It is fatal for the ingestion call that hit it.
type StorageIntegrityError struct {
	Op    string
	Err   error
	Stack []byte
}

// NewStorageIntegrityError wraps err and captures the caller's stack.
func NewStorageIntegrityError(op string, err error) *StorageIntegrityError {
	return &StorageIntegrityError{
		Op:    op,
		Err:   err,
		Stack: goerrors.Wrap(err, 1).Stack(),
	}
}

func (e *StorageIntegrityError) Error() string {
	return fmt.Sprintf("storage integrity: %s: %v", e.Op, e.Err)
}

func (e *StorageIntegrityError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must stop the whole run rather than one source.
func IsFatal(err error) bool {
	var integrity *StorageIntegrityError
	return errors.As(err, &integrity)
}
