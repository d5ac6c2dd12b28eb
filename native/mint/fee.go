package mint

import (
	"fmt"
	"math/big"
)

// ComputeFee returns the minimum acceptable payment for a mint: one
// PercFee-th of the reference balance, floored at MinFee, or zero while
// minting is free. Division truncates toward zero.
func ComputeFee(cfg SaleConfig, balance *big.Int) (*big.Int, error) {
	if cfg.FreeMinting {
		return big.NewInt(0), nil
	}
	if cfg.PercFee == 0 {
		return nil, fmt.Errorf("%w: fee divisor is zero", ErrInvalidConfig)
	}
	if balance == nil || balance.Sign() < 0 {
		balance = big.NewInt(0)
	}
	candidate := new(big.Int).Quo(balance, new(big.Int).SetUint64(cfg.PercFee))
	if cfg.MinFee != nil && candidate.Cmp(cfg.MinFee) < 0 {
		return new(big.Int).Set(cfg.MinFee), nil
	}
	return candidate, nil
}

// Split describes how one payment is booked.
type Split struct {
	Team     *big.Int
	Donation *big.Int
	Royalty  *big.Int
}

// Total returns the sum of all shares.
func (s Split) Total() *big.Int {
	total := new(big.Int).Add(bigOrZero(s.Team), bigOrZero(s.Donation))
	return total.Add(total, bigOrZero(s.Royalty))
}

// SplitDiscounted routes percRoyal percent of payment to the community and
// the remainder to the team.
func SplitDiscounted(payment *big.Int, percRoyal uint64) Split {
	royalty := new(big.Int).Mul(payment, new(big.Int).SetUint64(percRoyal))
	royalty.Quo(royalty, big.NewInt(100))
	return Split{
		Team:     new(big.Int).Sub(payment, royalty),
		Donation: big.NewInt(0),
		Royalty:  royalty,
	}
}

// SplitStandard routes donationBps basis points of payment to the donation
// balance and the remainder to the team.
func SplitStandard(payment *big.Int, donationBps uint32) Split {
	donation := new(big.Int).Mul(payment, big.NewInt(int64(donationBps)))
	donation.Quo(donation, big.NewInt(BpsDenominator))
	return Split{
		Team:     new(big.Int).Sub(payment, donation),
		Donation: donation,
		Royalty:  big.NewInt(0),
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
