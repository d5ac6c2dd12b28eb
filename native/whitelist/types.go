package whitelist

import (
	"math/big"
)

// Query selects how the gating balance of an entry is read from its contract.
type Query interface {
	isQuery()
}

// FungibleQuery reads the plain token balance of the holder.
type FungibleQuery struct{}

func (FungibleQuery) isQuery() {}

// SemiFungibleQuery reads the balance of one token kind inside a multi-token
// contract.
type SemiFungibleQuery struct {
	SubID *big.Int
}

func (SemiFungibleQuery) isQuery() {}

// Entry is one registered community collection.
type Entry struct {
	ID              uint64
	IsSemiFungible  bool
	Contract        [20]byte
	CommunityWallet [20]byte
	MaxSupply       uint64
	MinBalance      *big.Int
	PercRoyal       uint64
	Tracker         uint64
	Balance         *big.Int
	SemiFungibleID  *big.Int
	Withdrawn       *big.Int
}

// Query returns the balance lookup variant of the entry.
func (e *Entry) Query() Query {
	if e.IsSemiFungible {
		return SemiFungibleQuery{SubID: cloneBig(e.SemiFungibleID)}
	}
	return FungibleQuery{}
}

// Unlimited reports whether the entry has no discounted mint cap.
func (e *Entry) Unlimited() bool { return e.MaxSupply == 0 }

// HasCapacity reports whether another discounted mint may be recorded.
func (e *Entry) HasCapacity() bool {
	return e.Unlimited() || e.Tracker < e.MaxSupply
}

// Pending returns the royalty credited but not yet paid out.
func (e *Entry) Pending() *big.Int {
	pending := new(big.Int).Sub(bigOrZero(e.Balance), bigOrZero(e.Withdrawn))
	if pending.Sign() < 0 {
		return big.NewInt(0)
	}
	return pending
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.MinBalance = cloneBig(e.MinBalance)
	clone.Balance = cloneBig(e.Balance)
	clone.SemiFungibleID = cloneBig(e.SemiFungibleID)
	clone.Withdrawn = cloneBig(e.Withdrawn)
	return &clone
}

// Params carries the immutable fields supplied when registering an entry.
type Params struct {
	IsSemiFungible  bool
	Contract        [20]byte
	CommunityWallet [20]byte
	MaxSupply       uint64
	MinBalance      *big.Int
	PercRoyal       uint64
	SemiFungibleID  *big.Int
}

// Eligibility describes how a holder relates to an entry's gating rules.
type Eligibility struct {
	Held         *big.Int
	MeetsBalance bool
	HasCapacity  bool
}

// Eligible reports whether the holder may take a discounted mint.
func (e *Eligibility) Eligible() bool {
	return e != nil && e.MeetsBalance && e.HasCapacity
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
