package mint

import (
	"math/big"
)

// Balances is the team and donation ledger. Accrued totals only grow; payouts
// are tracked separately so pending amounts can be derived.
type Balances struct {
	Team              *big.Int
	Donation          *big.Int
	TeamWithdrawn     *big.Int
	DonationWithdrawn *big.Int
}

func newBalances() *Balances {
	return &Balances{
		Team:              big.NewInt(0),
		Donation:          big.NewInt(0),
		TeamWithdrawn:     big.NewInt(0),
		DonationWithdrawn: big.NewInt(0),
	}
}

// Clone returns a deep copy of the balances.
func (b *Balances) Clone() *Balances {
	if b == nil {
		return newBalances()
	}
	return &Balances{
		Team:              cloneBig(b.Team),
		Donation:          cloneBig(b.Donation),
		TeamWithdrawn:     cloneBig(b.TeamWithdrawn),
		DonationWithdrawn: cloneBig(b.DonationWithdrawn),
	}
}

// Credit books a payment split into the team and donation balances.
func (b *Balances) Credit(split Split) {
	b.Team = new(big.Int).Add(bigOrZero(b.Team), bigOrZero(split.Team))
	b.Donation = new(big.Int).Add(bigOrZero(b.Donation), bigOrZero(split.Donation))
}

// PendingTeam returns the team share not yet paid out.
func (b *Balances) PendingTeam() *big.Int {
	return pending(b.Team, b.TeamWithdrawn)
}

// PendingDonation returns the donation share not yet paid out.
func (b *Balances) PendingDonation() *big.Int {
	return pending(b.Donation, b.DonationWithdrawn)
}

func pending(accrued, withdrawn *big.Int) *big.Int {
	out := new(big.Int).Sub(bigOrZero(accrued), bigOrZero(withdrawn))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// RoyaltyPayout is the amount released to one community wallet.
type RoyaltyPayout struct {
	WhitelistID uint64
	Community   [20]byte
	Amount      *big.Int
}

// Payout summarises one withdrawal.
type Payout struct {
	Team      *big.Int
	Donation  *big.Int
	Royalties []RoyaltyPayout
}

// RoyaltyTotal returns the sum released to communities.
func (p *Payout) RoyaltyTotal() *big.Int {
	total := big.NewInt(0)
	for _, r := range p.Royalties {
		total.Add(total, bigOrZero(r.Amount))
	}
	return total
}
