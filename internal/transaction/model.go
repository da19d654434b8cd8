package transaction

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

var (
	ErrNotFound          = errors.New("transaction not found")
	ErrAlreadyFinalized  = errors.New("transaction already finalized")
	ErrInvalidTransition = errors.New("invalid transaction status transition")
)

// CanTransition reports whether moving from s to next is allowed.
// FAILED and REFUNDED are terminal; SUCCEEDED may only move to REFUNDED.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSucceeded || next == StatusFailed
	case StatusSucceeded:
		return next == StatusRefunded
	default:
		return false
	}
}

type Transaction struct {
	ID            string
	InvoiceNumber string
	Amount        int64
	Status        Status

	// Provider-issued fields, populated only on the success path.
	RefID        string
	TrackingCode string
	CardNumber   string

	CallbackURL string
	CellNumber  string
	MerchantID  string
	TerminalID  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerifyResult is the immutable outcome of a successful provider
// verification. The caller merges it into the transaction record under a
// conditional update so ref_id is set at most once.
type VerifyResult struct {
	RefID        string
	TrackingCode string
	CardNumber   string
}
