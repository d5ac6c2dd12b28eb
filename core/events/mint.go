package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"communitymint/core/types"
)

const (
	// TypePermanentURI announces the frozen metadata filename of a minted token.
	TypePermanentURI = "mint.permanent_uri"
	// TypeMintCompleted is emitted once a mint and its payment split commit.
	TypeMintCompleted = "mint.completed"
	// TypeSaleStatusChanged is emitted when the sale switches change.
	TypeSaleStatusChanged = "mint.sale_status"
	// TypeFeeSettingsChanged is emitted when fee parameters change.
	TypeFeeSettingsChanged = "mint.fee_settings"
	// TypeWithdrawal is emitted when pending balances are paid out.
	TypeWithdrawal = "mint.withdrawal"
)

// PermanentURI mirrors the metadata freeze notification of the minted token.
type PermanentURI struct {
	Value   string
	TokenID uint64
}

// EventType implements the Event interface.
func (PermanentURI) EventType() string { return TypePermanentURI }

func (e PermanentURI) Event() *types.Event {
	return &types.Event{
		Type: TypePermanentURI,
		Attributes: map[string]string{
			"value": e.Value,
			"id":    strconv.FormatUint(e.TokenID, 10),
		},
	}
}

// MintCompleted captures the outcome of a successful mint.
type MintCompleted struct {
	TokenID     uint64
	Minter      [20]byte
	Paid        *big.Int
	Fee         *big.Int
	Team        *big.Int
	Donation    *big.Int
	Royalty     *big.Int
	WhitelistID *uint64
	Length      string
	URI         string
}

// EventType implements the Event interface.
func (MintCompleted) EventType() string { return TypeMintCompleted }

func (e MintCompleted) Event() *types.Event {
	attrs := map[string]string{
		"tokenId":  strconv.FormatUint(e.TokenID, 10),
		"minter":   common.Address(e.Minter).Hex(),
		"paid":     amountString(e.Paid),
		"fee":      amountString(e.Fee),
		"team":     amountString(e.Team),
		"donation": amountString(e.Donation),
		"royalty":  amountString(e.Royalty),
		"length":   e.Length,
		"uri":      e.URI,
	}
	if e.WhitelistID != nil {
		attrs["whitelistId"] = strconv.FormatUint(*e.WhitelistID, 10)
	}
	return &types.Event{Type: TypeMintCompleted, Attributes: attrs}
}

// SaleStatusChanged records the sale switches after an admin update.
type SaleStatusChanged struct {
	Caller     [20]byte
	SaleActive bool
	PublicSale bool
}

// EventType implements the Event interface.
func (SaleStatusChanged) EventType() string { return TypeSaleStatusChanged }

func (e SaleStatusChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleStatusChanged,
		Attributes: map[string]string{
			"caller":     common.Address(e.Caller).Hex(),
			"saleActive": strconv.FormatBool(e.SaleActive),
			"publicSale": strconv.FormatBool(e.PublicSale),
		},
	}
}

// FeeSettingsChanged records the fee parameters after an admin update.
type FeeSettingsChanged struct {
	Caller      [20]byte
	FreeMinting bool
	PercFee     uint64
	MinFee      *big.Int
	DonationBps uint32
}

// EventType implements the Event interface.
func (FeeSettingsChanged) EventType() string { return TypeFeeSettingsChanged }

func (e FeeSettingsChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeSettingsChanged,
		Attributes: map[string]string{
			"caller":      common.Address(e.Caller).Hex(),
			"freeMinting": strconv.FormatBool(e.FreeMinting),
			"percFee":     strconv.FormatUint(e.PercFee, 10),
			"minFee":      amountString(e.MinFee),
			"donationBps": strconv.FormatUint(uint64(e.DonationBps), 10),
		},
	}
}

// Withdrawal records the amounts released by a payout.
type Withdrawal struct {
	Caller    [20]byte
	Team      *big.Int
	Donation  *big.Int
	Royalties *big.Int
}

// EventType implements the Event interface.
func (Withdrawal) EventType() string { return TypeWithdrawal }

func (e Withdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawal,
		Attributes: map[string]string{
			"caller":    common.Address(e.Caller).Hex(),
			"team":      amountString(e.Team),
			"donation":  amountString(e.Donation),
			"royalties": amountString(e.Royalties),
		},
	}
}
