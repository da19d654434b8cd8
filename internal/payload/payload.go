// Package payload builds the canonical byte sequences the Pasargad gateway
// signs and verifies. The field order, separators and date format are a wire
// contract with the provider: changing any of them silently breaks signature
// verification on their side.
package payload

import (
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
)

// TimestampLayout is the provider's required date format for both invoice
// dates and signing timestamps.
const TimestampLayout = "2006/01/02 15:04:05"

// ActionPurchase is the provider action code for a purchase request.
const ActionPurchase = 1003

var ErrBuild = errors.New("payload: missing or invalid field")

// Purchase is the redirect-time payload, serialized as a #-delimited string.
type Purchase struct {
	MerchantCode  string
	TerminalCode  string
	InvoiceNumber string
	InvoiceDate   string
	Amount        int64
	CallbackURL   string
	Action        int
	Timestamp     string
}

func (p Purchase) Bytes() ([]byte, error) {
	if p.MerchantCode == "" || p.TerminalCode == "" || p.InvoiceNumber == "" ||
		p.InvoiceDate == "" || p.CallbackURL == "" || p.Timestamp == "" {
		return nil, fmt.Errorf("%w: purchase payload", ErrBuild)
	}
	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrBuild)
	}
	if p.Action == 0 {
		p.Action = ActionPurchase
	}

	s := fmt.Sprintf("#%s#%s#%s#%s#%d#%s#%d#%s#",
		p.MerchantCode, p.TerminalCode, p.InvoiceNumber, p.InvoiceDate,
		p.Amount, p.CallbackURL, p.Action, p.Timestamp,
	)
	return []byte(s), nil
}

func (p Purchase) Digest() ([]byte, error) {
	b, err := p.Bytes()
	if err != nil {
		return nil, err
	}
	return digest(b), nil
}

// Verify is the verify-endpoint payload. Field order in the JSON body is
// fixed; encoding/json emits struct fields in declaration order, which is
// exactly what the provider hashes on their side.
type Verify struct {
	MerchantCode  string `json:"merchantCode"`
	TerminalCode  string `json:"terminalCode"`
	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	Amount        int64  `json:"amount"`
	Timestamp     string `json:"timeStamp"`
}

func (v Verify) Bytes() ([]byte, error) {
	if v.MerchantCode == "" || v.TerminalCode == "" || v.InvoiceNumber == "" ||
		v.InvoiceDate == "" || v.Timestamp == "" {
		return nil, fmt.Errorf("%w: verify payload", ErrBuild)
	}
	if v.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrBuild)
	}
	return json.Marshal(v)
}

func (v Verify) Digest() ([]byte, error) {
	b, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	return digest(b), nil
}

// Refund is the refund-endpoint payload: the verify payload without the
// amount, which the provider's refund endpoint does not hash.
type Refund struct {
	MerchantCode  string `json:"merchantCode"`
	TerminalCode  string `json:"terminalCode"`
	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	Timestamp     string `json:"timeStamp"`
}

func (r Refund) Bytes() ([]byte, error) {
	if r.MerchantCode == "" || r.TerminalCode == "" || r.InvoiceNumber == "" ||
		r.InvoiceDate == "" || r.Timestamp == "" {
		return nil, fmt.Errorf("%w: refund payload", ErrBuild)
	}
	return json.Marshal(r)
}

func (r Refund) Digest() ([]byte, error) {
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return digest(b), nil
}

func digest(b []byte) []byte {
	h := sha1.Sum(b)
	return h[:]
}
