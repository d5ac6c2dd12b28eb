package whitelist

import (
	"context"
	"math/big"
)

// BalanceOracle reports holdings of the gating tokens.
type BalanceOracle interface {
	FungibleBalance(ctx context.Context, token [20]byte, holder [20]byte) (*big.Int, error)
	SemiFungibleBalance(ctx context.Context, token [20]byte, holder [20]byte, subID *big.Int) (*big.Int, error)
}

// OracleFunc adapts a single function into a BalanceOracle. The subID is nil
// for fungible lookups.
type OracleFunc func(ctx context.Context, token [20]byte, holder [20]byte, subID *big.Int) (*big.Int, error)

func (f OracleFunc) FungibleBalance(ctx context.Context, token [20]byte, holder [20]byte) (*big.Int, error) {
	return f(ctx, token, holder, nil)
}

func (f OracleFunc) SemiFungibleBalance(ctx context.Context, token [20]byte, holder [20]byte, subID *big.Int) (*big.Int, error) {
	return f(ctx, token, holder, subID)
}
