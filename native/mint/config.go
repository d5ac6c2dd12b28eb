package mint

import (
	"fmt"
	"math/big"

	"communitymint/core/types"
)

// BpsDenominator is the basis point scale used for donation splits.
const BpsDenominator = 10_000

// Phase is the top-level sale gate derived from SaleConfig.
type Phase uint8

const (
	PhaseClosed Phase = iota
	PhasePrivateSale
	PhasePublicSale
)

func (p Phase) String() string {
	switch p {
	case PhasePrivateSale:
		return "private"
	case PhasePublicSale:
		return "public"
	default:
		return "closed"
	}
}

// SaleConfig holds the sale switches and fee parameters.
type SaleConfig struct {
	SaleActive       bool
	PublicSaleStatus bool
	FreeMinting      bool
	PercFee          uint64
	MinFee           *big.Int
	DonationBps      uint32
}

// DefaultSaleConfig mirrors the launch parameters: private sale, one percent
// of the reference balance with a 0.02 coin floor.
func DefaultSaleConfig() SaleConfig {
	return SaleConfig{
		SaleActive:       true,
		PublicSaleStatus: false,
		PercFee:          100,
		MinFee:           new(big.Int).Div(types.WeiPerEther, big.NewInt(50)),
	}
}

// Phase derives the sale phase from the switches.
func (c SaleConfig) Phase() Phase {
	switch {
	case !c.SaleActive:
		return PhaseClosed
	case c.PublicSaleStatus:
		return PhasePublicSale
	default:
		return PhasePrivateSale
	}
}

// Clone returns a deep copy of the config.
func (c SaleConfig) Clone() SaleConfig {
	clone := c
	if c.MinFee != nil {
		clone.MinFee = new(big.Int).Set(c.MinFee)
	} else {
		clone.MinFee = big.NewInt(0)
	}
	return clone
}

// Validate checks the fee parameters independently of FreeMinting, except
// that a zero divisor is only accepted while minting is free.
func (c SaleConfig) Validate() error {
	if c.MinFee == nil || c.MinFee.Sign() < 0 {
		return fmt.Errorf("%w: min fee must be non-negative", ErrInvalidConfig)
	}
	if err := types.CheckAmount(c.MinFee); err != nil {
		return fmt.Errorf("%w: min fee: %v", ErrInvalidConfig, err)
	}
	if !c.FreeMinting && c.PercFee == 0 {
		return fmt.Errorf("%w: fee divisor must be positive unless minting is free", ErrInvalidConfig)
	}
	if c.DonationBps > BpsDenominator {
		return fmt.Errorf("%w: donation bps %d above %d", ErrInvalidConfig, c.DonationBps, BpsDenominator)
	}
	return nil
}
