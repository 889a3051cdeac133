package chain

import (
	"errors"
)

// Error classes. Every revert raised by contract code carries exactly one of
// them; a call that panics reverts with no class.
var (
	// ErrAuthorization is returned when a non-owner calls an owner-gated operation.
	ErrAuthorization = errors.New("authorization error")
	// ErrConfiguration is returned when a zero or dead address is supplied where a live one is required.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound is returned when operating on an event or bet that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrState is returned when an event or bet is in the wrong lifecycle phase.
	ErrState = errors.New("state error")
	// ErrValue is returned for out-of-range amounts and indices.
	ErrValue = errors.New("value error")
	// ErrTransfer is returned when an asset movement did not complete.
	ErrTransfer = errors.New("transfer failure")
)

// RevertError aborts a transaction. Its message is the reason string clients assert on.
type RevertError struct {
	Kind   error
	Reason string
}

// Revert builds a revert of the given class.
func Revert(kind error, reason string) *RevertError {
	return &RevertError{Kind: kind, Reason: reason}
}

func (e *RevertError) Error() string {
	return e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.Kind
}

// Reason extracts the revert reason from err, or its message when err is not a revert.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev.Reason
	}
	return err.Error()
}

// KindOf returns the error class of err, or nil when err is not a revert.
func KindOf(err error) error {
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev.Kind
	}
	return nil
}

// KindName is a short label for an error class, used in API responses and metrics.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrValue):
		return "value"
	case errors.Is(err, ErrTransfer):
		return "transfer"
	default:
		return "internal"
	}
}

var (
	errZeroSender        = Revert(ErrConfiguration, "Sender is the zero address")
	errInsufficientFunds = Revert(ErrValue, "Insufficient funds for value")
	errReadOnly          = Revert(ErrState, "State change in read-only call")
	errNotContract       = Revert(ErrConfiguration, "Call to non-contract address")
	errTransferToZero    = Revert(ErrTransfer, "Transfer to the zero address")
	errTransferBalance   = Revert(ErrTransfer, "Transfer amount exceeds balance")
	errTransferRejected  = Revert(ErrTransfer, "Transfer rejected by recipient")
)

// KindByName is the inverse of KindName. It returns nil for "internal" and unknown labels.
func KindByName(name string) error {
	switch name {
	case "authorization":
		return ErrAuthorization
	case "configuration":
		return ErrConfiguration
	case "not_found":
		return ErrNotFound
	case "state":
		return ErrState
	case "value":
		return ErrValue
	case "transfer":
		return ErrTransfer
	default:
		return nil
	}
}
