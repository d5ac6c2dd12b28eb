package oracle

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"communitymint/native/mint"
	"communitymint/native/whitelist"
)

var (
	_ whitelist.BalanceOracle  = (*Book)(nil)
	_ mint.NativeBalanceOracle = (*Book)(nil)
	_ whitelist.BalanceOracle  = (*EVM)(nil)
	_ mint.NativeBalanceOracle = (*EVM)(nil)
)

func TestBook(t *testing.T) {
	book := NewBook()
	token, holder := [20]byte{0x01}, [20]byte{0x02}
	amount := big.NewInt(5)
	book.SetFungible(token, holder, amount)
	book.SetSemiFungible(token, holder, big.NewInt(7), big.NewInt(2))
	book.SetNative(holder, big.NewInt(100))
	amount.SetInt64(99)

	got, err := book.FungibleBalance(context.Background(), token, holder)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Int64())

	got, err = book.SemiFungibleBalance(context.Background(), token, holder, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Int64())

	got, err = book.SemiFungibleBalance(context.Background(), token, holder, big.NewInt(8))
	require.NoError(t, err)
	require.Zero(t, got.Sign())

	got, err = book.NativeBalance(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.Int64())
}

func TestBookLoad(t *testing.T) {
	book := NewBook()
	token, holder := [20]byte{0x01}, [20]byte{0x02}
	book.Load([]Holding{
		{Holder: holder, Token: token, Native: true, Amount: big.NewInt(40)},
		{Holder: holder, Token: token, Amount: big.NewInt(3)},
		{Holder: holder, Token: token, SemiFungible: true, SubID: big.NewInt(7), Amount: big.NewInt(2)},
	})

	native, err := book.NativeBalance(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, int64(40), native.Int64())

	fungible, err := book.FungibleBalance(context.Background(), token, holder)
	require.NoError(t, err)
	require.Equal(t, int64(3), fungible.Int64())

	kind, err := book.SemiFungibleBalance(context.Background(), token, holder, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, int64(2), kind.Int64())
}
