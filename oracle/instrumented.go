package oracle

import (
	"context"
	"math/big"
	"time"
)

// Source is the full balance surface served by Book and EVM.
type Source interface {
	FungibleBalance(ctx context.Context, token, holder [20]byte) (*big.Int, error)
	SemiFungibleBalance(ctx context.Context, token, holder [20]byte, subID *big.Int) (*big.Int, error)
	NativeBalance(ctx context.Context, holder [20]byte) (*big.Int, error)
}

// Observer receives the latency of each lookup.
type Observer interface {
	ObserveOracle(kind string, seconds float64, err error)
}

// Instrumented times every call made to the wrapped source.
type Instrumented struct {
	src Source
	obs Observer
	now func() time.Time
}

// Instrument wraps src. A nil observer returns src unchanged.
func Instrument(src Source, obs Observer) Source {
	if obs == nil {
		return src
	}
	return &Instrumented{src: src, obs: obs, now: time.Now}
}

func (i *Instrumented) FungibleBalance(ctx context.Context, token, holder [20]byte) (*big.Int, error) {
	start := i.now()
	out, err := i.src.FungibleBalance(ctx, token, holder)
	i.obs.ObserveOracle("fungible", i.now().Sub(start).Seconds(), err)
	return out, err
}

func (i *Instrumented) SemiFungibleBalance(ctx context.Context, token, holder [20]byte, subID *big.Int) (*big.Int, error) {
	start := i.now()
	out, err := i.src.SemiFungibleBalance(ctx, token, holder, subID)
	i.obs.ObserveOracle("semi_fungible", i.now().Sub(start).Seconds(), err)
	return out, err
}

func (i *Instrumented) NativeBalance(ctx context.Context, holder [20]byte) (*big.Int, error) {
	start := i.now()
	out, err := i.src.NativeBalance(ctx, holder)
	i.obs.ObserveOracle("native", i.now().Sub(start).Seconds(), err)
	return out, err
}
