package oracle

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type observation struct {
	kind string
	err  error
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveOracle(kind string, _ float64, err error) {
	r.seen = append(r.seen, observation{kind: kind, err: err})
}

func TestInstrumentRecordsEachLookup(t *testing.T) {
	book := NewBook()
	token := [20]byte{0x01}
	holder := [20]byte{0x02}
	book.SetFungible(token, holder, big.NewInt(5))
	book.SetNative(holder, big.NewInt(9))

	obs := &recordingObserver{}
	src := Instrument(book, obs)
	ctx := context.Background()

	held, err := src.FungibleBalance(ctx, token, holder)
	require.NoError(t, err)
	require.Equal(t, int64(5), held.Int64())
	_, err = src.SemiFungibleBalance(ctx, token, holder, big.NewInt(3))
	require.NoError(t, err)
	native, err := src.NativeBalance(ctx, holder)
	require.NoError(t, err)
	require.Equal(t, int64(9), native.Int64())

	require.Equal(t, []observation{{kind: "fungible"}, {kind: "semi_fungible"}, {kind: "native"}}, obs.seen)
}

func TestInstrumentWithoutObserver(t *testing.T) {
	book := NewBook()
	require.Same(t, Source(book), Instrument(book, nil))
}
