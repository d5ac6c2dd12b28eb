package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ErrInvalidAmount is returned when an amount string cannot be represented as
// an unsigned 256-bit integer.
var ErrInvalidAmount = errors.New("types: invalid amount")

// WeiPerEther is the number of base units in one whole native coin.
var WeiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParseAmount parses a base-10 or 0x-prefixed wei amount. Empty input is zero.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		v, err = uint256.FromHex(trimmed)
	} else {
		v, err = uint256.FromDecimal(trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, raw, err)
	}
	return v.ToBig(), nil
}

// ParseEther parses a decimal ether amount such as "0.02" into wei.
func ParseEther(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	whole, frac, _ := strings.Cut(trimmed, ".")
	if len(frac) > 18 {
		return nil, fmt.Errorf("%w: %q: more than 18 decimals", ErrInvalidAmount, raw)
	}
	frac += strings.Repeat("0", 18-len(frac))
	if whole == "" {
		whole = "0"
	}
	return ParseAmount(strings.TrimLeft(whole+frac, "0"))
}

// CheckAmount verifies that v is a non-negative value fitting in 256 bits.
func CheckAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return nil
}
