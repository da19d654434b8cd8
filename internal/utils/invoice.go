package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

func GenerateInvoiceNumber() string {
	now := time.Now().UTC()

	datePart := now.Format("20060102150405")

	// 6-digit cryptographic random suffix
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// fallback: time-based entropy
		n = big.NewInt(now.UnixNano() % 1000000)
	}

	return fmt.Sprintf("%s%06d", datePart, n.Int64())
}
