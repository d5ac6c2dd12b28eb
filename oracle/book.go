package oracle

import (
	"context"
	"math/big"
	"sync"
)

type holding struct {
	token  [20]byte
	holder [20]byte
	subID  string
}

// Book is an in-memory balance oracle for local runs and tests. Unknown
// holdings read as zero.
type Book struct {
	mu     sync.RWMutex
	tokens map[holding]*big.Int
	native map[[20]byte]*big.Int
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{
		tokens: make(map[holding]*big.Int),
		native: make(map[[20]byte]*big.Int),
	}
}

// SetFungible records holder's balance of token.
func (b *Book) SetFungible(token, holder [20]byte, amount *big.Int) {
	b.set(holding{token: token, holder: holder}, amount)
}

// SetSemiFungible records holder's balance of one kind inside token.
func (b *Book) SetSemiFungible(token, holder [20]byte, subID, amount *big.Int) {
	b.set(holding{token: token, holder: holder, subID: subKey(subID)}, amount)
}

// SetNative records holder's native coin balance.
func (b *Book) SetNative(holder [20]byte, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[holder] = clone(amount)
}

// Holding is a balance loaded into a Book in bulk. Native holdings ignore
// Token; SubID is only read for semi-fungible holdings.
type Holding struct {
	Holder       [20]byte
	Token        [20]byte
	Native       bool
	SemiFungible bool
	SubID        *big.Int
	Amount       *big.Int
}

// Load records every holding, replacing earlier values for the same key.
func (b *Book) Load(holdings []Holding) {
	for _, h := range holdings {
		switch {
		case h.Native:
			b.SetNative(h.Holder, h.Amount)
		case h.SemiFungible:
			b.SetSemiFungible(h.Token, h.Holder, h.SubID, h.Amount)
		default:
			b.SetFungible(h.Token, h.Holder, h.Amount)
		}
	}
}

func (b *Book) set(key holding, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[key] = clone(amount)
}

func (b *Book) FungibleBalance(_ context.Context, token, holder [20]byte) (*big.Int, error) {
	return b.get(holding{token: token, holder: holder}), nil
}

func (b *Book) SemiFungibleBalance(_ context.Context, token, holder [20]byte, subID *big.Int) (*big.Int, error) {
	return b.get(holding{token: token, holder: holder, subID: subKey(subID)}), nil
}

func (b *Book) NativeBalance(_ context.Context, holder [20]byte) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return clone(b.native[holder]), nil
}

func (b *Book) get(key holding) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return clone(b.tokens[key])
}

func subKey(subID *big.Int) string {
	if subID == nil {
		return "0"
	}
	return subID.String()
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
