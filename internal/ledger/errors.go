package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipbot/clipbot/internal/database"
)

var (
	// ErrNotFound means the referenced user or subscription does not exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the store failed or timed out. Transient.
	ErrUnavailable = errors.New("entitlement store unavailable")
	// ErrInvalidTier is a programming or configuration defect
	ErrInvalidTier = database.ErrInvalidTier
)

// OpError carries the failed operation, its kind and the underlying cause.
// errors.Is matches both the kind and anything in the cause chain.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("ledger %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("ledger %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify turns a store error into an *OpError of the right kind
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}

	switch {
	case errors.Is(err, database.ErrInvalidTier):
		return &OpError{Op: op, Kind: ErrInvalidTier, Err: err}
	case errors.Is(err, database.ErrUserNotFound), errors.Is(err, database.ErrSubscriptionNotFound):
		return &OpError{Op: op, Kind: ErrNotFound, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &OpError{Op: op, Kind: ErrUnavailable, Err: fmt.Errorf("storage timeout: %w", err)}
	default:
		return &OpError{Op: op, Kind: ErrUnavailable, Err: err}
	}
}

// IsUnavailable reports a transient storage failure
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsNotFound reports a missing user or subscription
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
