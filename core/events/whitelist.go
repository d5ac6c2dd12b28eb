package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"communitymint/core/types"
)

const (
	// TypeWhitelistAdded is emitted when a community collection is registered.
	TypeWhitelistAdded = "whitelist.added"
	// TypeWhitelistRoyalty is emitted when a discounted mint credits a community.
	TypeWhitelistRoyalty = "whitelist.royalty"
)

// WhitelistAdded captures a newly registered whitelist entry.
type WhitelistAdded struct {
	ID              uint64
	Contract        [20]byte
	CommunityWallet [20]byte
	SemiFungible    bool
	SemiFungibleID  *big.Int
	MaxSupply       uint64
	MinBalance      *big.Int
	PercRoyal       uint64
}

// EventType implements the Event interface.
func (WhitelistAdded) EventType() string { return TypeWhitelistAdded }

func (e WhitelistAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeWhitelistAdded,
		Attributes: map[string]string{
			"id":              strconv.FormatUint(e.ID, 10),
			"contract":        common.Address(e.Contract).Hex(),
			"communityWallet": common.Address(e.CommunityWallet).Hex(),
			"semiFungible":    strconv.FormatBool(e.SemiFungible),
			"semiFungibleId":  amountString(e.SemiFungibleID),
			"maxSupply":       strconv.FormatUint(e.MaxSupply, 10),
			"minBalance":      amountString(e.MinBalance),
			"percRoyal":       strconv.FormatUint(e.PercRoyal, 10),
		},
	}
}

// RoyaltyCredited captures a royalty booked to a community balance.
type RoyaltyCredited struct {
	WhitelistID uint64
	Community   [20]byte
	Amount      *big.Int
	Tracker     uint64
}

// EventType implements the Event interface.
func (RoyaltyCredited) EventType() string { return TypeWhitelistRoyalty }

func (e RoyaltyCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeWhitelistRoyalty,
		Attributes: map[string]string{
			"id":        strconv.FormatUint(e.WhitelistID, 10),
			"community": common.Address(e.Community).Hex(),
			"amount":    amountString(e.Amount),
			"tracker":   strconv.FormatUint(e.Tracker, 10),
		},
	}
}
