package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusSucceeded, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusRefunded, false},
		{StatusSucceeded, StatusRefunded, true},
		{StatusSucceeded, StatusFailed, false},
		{StatusSucceeded, StatusPending, false},
		{StatusFailed, StatusSucceeded, false},
		{StatusFailed, StatusPending, false},
		{StatusRefunded, StatusSucceeded, false},
		{StatusRefunded, StatusPending, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransition(c.to),
			"%s -> %s", c.from, c.to)
	}
}
