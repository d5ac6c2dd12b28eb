package mint

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// DefaultLength is assigned when no tier matches.
const DefaultLength = "1"

// LengthTier assigns Length to minters whose reference balance is at least
// MinBalance.
type LengthTier struct {
	MinBalance *big.Int
	Length     string
}

// LengthTiers derives the length attribute of a minted item from the
// reference balance used for its fee. The highest satisfied tier wins.
type LengthTiers struct {
	tiers []LengthTier
}

// NewLengthTiers sorts and validates the tier table.
func NewLengthTiers(tiers []LengthTier) (*LengthTiers, error) {
	sorted := make([]LengthTier, 0, len(tiers))
	for i, tier := range tiers {
		label := strings.TrimSpace(tier.Length)
		if label == "" || strings.ContainsAny(label, "/_") {
			return nil, fmt.Errorf("%w: tier %d has invalid length %q", ErrInvalidConfig, i, tier.Length)
		}
		if tier.MinBalance == nil || tier.MinBalance.Sign() < 0 {
			return nil, fmt.Errorf("%w: tier %d has invalid minimum", ErrInvalidConfig, i)
		}
		sorted = append(sorted, LengthTier{MinBalance: new(big.Int).Set(tier.MinBalance), Length: label})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinBalance.Cmp(sorted[j].MinBalance) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].MinBalance.Cmp(sorted[i-1].MinBalance) == 0 {
			return nil, fmt.Errorf("%w: duplicate tier minimum %s", ErrInvalidConfig, sorted[i].MinBalance)
		}
	}
	return &LengthTiers{tiers: sorted}, nil
}

// Resolve returns the length label for the reference balance.
func (t *LengthTiers) Resolve(balance *big.Int) string {
	if t == nil || balance == nil {
		return DefaultLength
	}
	length := DefaultLength
	for _, tier := range t.tiers {
		if balance.Cmp(tier.MinBalance) < 0 {
			break
		}
		length = tier.Length
	}
	return length
}
