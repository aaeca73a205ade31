package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Digits is the width of a generated code.
const Digits = 6

var upper = big.NewInt(1_000_000)

// New returns a uniformly distributed code in 000000-999999.
func New() (string, error) {
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}
