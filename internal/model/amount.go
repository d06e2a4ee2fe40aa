package model

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a base-unit decimal string. Negative values and
// fractions are rejected.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(ErrInvalidAmount, "empty amount")
	}
	amt, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidAmount, "not a base-10 integer: %q", s)
	}
	if amt.Sign() < 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "negative amount: %s", s)
	}
	return amt, nil
}

// ParsePositiveAmount is ParseAmount that also rejects zero.
func ParsePositiveAmount(s string) (*big.Int, error) {
	amt, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if amt.Sign() == 0 {
		return nil, errors.Wrap(ErrInvalidAmount, "amount must be positive")
	}
	return amt, nil
}

// MustBigInt parses a value already validated on the way in. Garbage
// yields zero.
func MustBigInt(s string) *big.Int {
	amt, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return amt
}

// FormatUnits renders a base-unit amount as an exact decimal string.
func FormatUnits(value string, decimals int) string {
	return decimal.NewFromBigInt(MustBigInt(value), int32(-decimals)).String()
}
