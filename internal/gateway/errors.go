package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned by Set for non-positive amounts.
	ErrInvalidAmount = errors.New("gateway: amount must be a positive number of Rials")

	// ErrAmountNotSet is returned by Ready when Set was never called.
	ErrAmountNotSet = errors.New("gateway: amount not set")

	// ErrAlreadyInitialized is returned by Set after the payment left the
	// created state.
	ErrAlreadyInitialized = errors.New("gateway: payment already initialized")

	// ErrNotReady is returned by Redirect before Ready has persisted a
	// transaction.
	ErrNotReady = errors.New("gateway: transaction not ready")

	// ErrCallbackMissing is returned when the provider callback carries no
	// reference token.
	ErrCallbackMissing = errors.New("gateway: reference token missing from callback")

	// ErrNotRefundable is returned by Refund for transactions that never
	// succeeded or have no provider reference.
	ErrNotRefundable = errors.New("gateway: transaction is not refundable")

	// ErrTransport wraps network/HTTP failures talking to the provider.
	ErrTransport = errors.New("gateway: provider transport failure")

	// ErrProviderResponse wraps unparseable provider responses.
	ErrProviderResponse = errors.New("gateway: malformed provider response")
)

// VerificationFailedCode is the fixed code carried by a provider-declined
// verification, matching the provider's failure convention.
const VerificationFailedCode = -1

const verificationFailedText = "transaction verification failed"

// VerificationError reports that the provider declined the payment. The
// transaction has been transitioned to FAILED; the caller must start a fresh
// payment rather than retry.
type VerificationError struct {
	Code    int
	Message string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("gateway: payment verification failed (code %d): %s", e.Code, e.Message)
}
