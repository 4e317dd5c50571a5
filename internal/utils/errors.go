package utils

import (
	"errors"
	"fmt"
)

// Common application errors used across services.
var (
	ErrEmptyProduct         = errors.New("EMPTY_PRODUCT")
	ErrAmbiguousRemoteMatch = errors.New("AMBIGUOUS_REMOTE_MATCH")
	ErrReportNotAvailable   = errors.New("REPORT_NOT_AVAILABLE")
	ErrImportNotFound       = errors.New("IMPORT_NOT_FOUND")
	ErrProductNotFound      = errors.New("PRODUCT_NOT_FOUND")
	ErrLockNotAcquired      = errors.New("LOCK_NOT_ACQUIRED")
)

// ErrorKind classifies channel-facing failures.
type ErrorKind string

const (
	// KindConnection: marketplace unreachable or auth rejected. Fatal for
	// the run, no retry.
	KindConnection ErrorKind = "connection"
	// KindRetryable: timeout, 5xx or rate-limit. The caller may retry the
	// specific group.
	KindRetryable ErrorKind = "retryable"
	// KindValidation: marketplace rejected the payload. Recorded as failed,
	// not retried automatically.
	KindValidation ErrorKind = "validation"
	// KindAmbiguousMatch: title search returned multiple exact matches.
	// Requires operator intervention, never auto-resolved.
	KindAmbiguousMatch ErrorKind = "ambiguous_match"
	// KindEmptyProduct: nothing to synchronize.
	KindEmptyProduct ErrorKind = "empty_product"
)

// ChannelError carries the failure taxonomy for an outbound channel
// operation, including the marketplace's raw error detail when available.
type ChannelError struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// NewChannelError constructs a classified channel error.
func NewChannelError(kind ErrorKind, op, detail string, err error) *ChannelError {
	return &ChannelError{Kind: kind, Op: op, Detail: detail, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain. Unclassified
// errors default to retryable so transports that fail oddly get retried
// rather than silently dropped.
func KindOf(err error) ErrorKind {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrAmbiguousRemoteMatch) {
		return KindAmbiguousMatch
	}
	if errors.Is(err, ErrEmptyProduct) {
		return KindEmptyProduct
	}
	return KindRetryable
}

// IsRetryable reports whether the error is transient per the taxonomy.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}

// ErrorDetail returns the marketplace's raw detail text, or the error
// string when no structured detail is present.
func ErrorDetail(err error) string {
	var ce *ChannelError
	if errors.As(err, &ce) && ce.Detail != "" {
		return ce.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
