package coordinator

import (
	"context"
	"errors"
	"fmt"
)

// Operations.
const (
	OpAcknowledge = "acknowledge"
	OpResolve     = "resolve"
)

// ErrAlreadyResolved is returned when acknowledging an alert that is resolved
// remotely or has a local resolve.
var ErrAlreadyResolved = errors.New("alert is already resolved")

// Kind classifies a mutation failure.
type Kind string

const (
	// KindRejected means the service answered with a non-success status.
	KindRejected Kind = "rejected"
	// KindTimeout means the request exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindTransport means the request could not be delivered or the answer
	// could not be read.
	KindTransport Kind = "transport"
	// KindNotFound means the target document does not exist.
	KindNotFound Kind = "not_found"
)

// MutationError is a failed acknowledge or resolve. Detail is the text shown
// to the operator.
type MutationError struct {
	Op      string
	AlertID string
	Kind    Kind
	Detail  string
	// Status is the HTTP status of the authority's answer, 0 when there was none.
	Status int
	Err    error
}

// NewMutationError builds a MutationError.
func NewMutationError(op, alertID string, kind Kind, detail string, err error) *MutationError {
	return &MutationError{Op: op, AlertID: alertID, Kind: kind, Detail: detail, Err: err}
}

func (e *MutationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed (%s): %s: %v", e.Op, e.AlertID, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %s", e.Op, e.AlertID, e.Kind, e.Detail)
}

// Summary is the operator-facing text: the detail followed by the kind and,
// when known, the HTTP status.
func (e *MutationError) Summary() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Detail, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (%s)", e.Detail, e.Kind)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// asMutationError wraps any error that is not already a MutationError.
func asMutationError(op, alertID string, err error) *MutationError {
	var mErr *MutationError
	if errors.As(err, &mErr) {
		return mErr
	}

	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return NewMutationError(op, alertID, kind, err.Error(), err)
}
