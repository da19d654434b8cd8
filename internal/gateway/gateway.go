// Package gateway abstracts the lifecycle of an online payment behind one
// interface: initiate, redirect the end user to the provider, verify the
// callback, and refund. Each provider adapter owns its own wire protocol and
// signing scheme.
package gateway

import (
	"context"
	"encoding/json"

	"paygate/internal/transaction"
)

// Gateway is implemented once per provider.
//
// Set, Ready and Redirect drive a single logical payment and must be called
// on a dedicated adapter value in that order. Verify and Refund take the
// transaction explicitly and are safe on a shared adapter.
type Gateway interface {
	Name() string

	// SetCallback overrides the configured callback URL for this payment.
	SetCallback(url string)

	// SetCellNumber attaches the payer's cell number, forwarded to the
	// provider in the redirect form.
	SetCellNumber(cell string)

	// Set stores the amount in Rials. Callable once, before Ready.
	Set(amount int64) error

	// Ready creates and persists a new pending transaction. Each call
	// creates a new record; callers must not call it twice for one payment.
	Ready(ctx context.Context) (*transaction.Transaction, error)

	// Redirect builds the signed redirect directive for the pending
	// transaction. It does not mutate transaction state.
	Redirect() (*RedirectForm, error)

	// Verify resolves the provider callback: it looks the payment up by the
	// reference token, re-signs and calls the provider's verify endpoint,
	// and returns the immutable result on success. On provider decline the
	// transaction is marked FAILED and a *VerificationError is returned.
	// The caller merges the result into the record under a conditional
	// update (Repository.MarkSucceeded).
	Verify(ctx context.Context, tx *transaction.Transaction, tref string) (*transaction.VerifyResult, error)

	// Refund asks the provider to refund a succeeded transaction. The
	// provider's decision is returned as data, never as an error: the
	// caller inspects the result and decides whether to mark the
	// transaction refunded.
	Refund(ctx context.Context, tx *transaction.Transaction) (*RefundResult, error)
}

// RefundResult is the provider's refund decision, returned verbatim.
type RefundResult struct {
	IsSuccess bool
	Message   string
	Raw       json.RawMessage
}
