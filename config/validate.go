package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"communitymint/core/types"
	nativecommon "communitymint/native/common"
	"communitymint/native/mint"
	"communitymint/native/whitelist"
	"communitymint/oracle"
)

// Validate checks that every section converts into its runtime form.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("ListenAddress required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DataDir required")
	}
	if _, err := c.AdminAddresses(); err != nil {
		return err
	}
	if _, err := c.FallbackAmount(); err != nil {
		return err
	}
	sale, err := c.SaleConfig()
	if err != nil {
		return err
	}
	if err := sale.Validate(); err != nil {
		return fmt.Errorf("sale: %w", err)
	}
	if _, err := c.URIResolver(); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if _, err := c.LengthTiers(); err != nil {
		return fmt.Errorf("length: %w", err)
	}
	if _, err := c.WhitelistParams(); err != nil {
		return err
	}
	if c.Oracle.TimeoutSeconds < 0 {
		return fmt.Errorf("oracle: TimeoutSeconds must not be negative")
	}
	if _, err := c.OracleHoldings(); err != nil {
		return err
	}
	return nil
}

// AdminAddresses parses the hex admin addresses.
func (c *Config) AdminAddresses() ([][20]byte, error) {
	out := make([][20]byte, 0, len(c.Admins))
	for i, raw := range c.Admins {
		addr, err := parseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("Admins[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// FallbackAmount returns the reference balance used when no native balance
// source is wired.
func (c *Config) FallbackAmount() (*big.Int, error) {
	amount, err := types.ParseAmount(c.FallbackReference)
	if err != nil {
		return nil, fmt.Errorf("FallbackReference: %w", err)
	}
	return amount, nil
}

// SaleConfig converts the [sale] section.
func (c *Config) SaleConfig() (mint.SaleConfig, error) {
	minFee, err := types.ParseAmount(c.Sale.MinFeeWei)
	if err != nil {
		return mint.SaleConfig{}, fmt.Errorf("sale.MinFeeWei: %w", err)
	}
	return mint.SaleConfig{
		SaleActive:       c.Sale.SaleActive,
		PublicSaleStatus: c.Sale.PublicSale,
		FreeMinting:      c.Sale.FreeMinting,
		PercFee:          c.Sale.PercFee,
		MinFee:           minFee,
		DonationBps:      c.Sale.DonationBps,
	}, nil
}

// QuotaRule converts the [quota] section.
func (c *Config) QuotaRule() nativecommon.Quota {
	return nativecommon.Quota{
		MaxMintsPerEpoch: c.Quota.MaxMintsPerEpoch,
		EpochSeconds:     c.Quota.EpochSeconds,
	}
}

// PauseView returns the start-up pause switches keyed by module.
func (c *Config) PauseView() *nativecommon.Pauses {
	pauses := nativecommon.NewPauses()
	pauses.Set(mint.ModuleName, c.Pauses.Mint)
	pauses.Set(whitelist.ModuleName, c.Pauses.Whitelist)
	return pauses
}

// URIResolver builds the content resolver. Without [[content]] bands the
// launch bands apply.
func (c *Config) URIResolver() (*mint.URIResolver, error) {
	if len(c.Content) == 0 {
		return mint.DefaultURIResolver(), nil
	}
	bands := make([]mint.Band, 0, len(c.Content))
	for _, band := range c.Content {
		bands = append(bands, mint.Band{UpTo: band.UpTo, ContentID: band.ContentID})
	}
	return mint.NewURIResolver(bands)
}

// LengthTiers builds the length table. Without [[length]] tiers every item
// gets the default length.
func (c *Config) LengthTiers() (*mint.LengthTiers, error) {
	tiers := make([]mint.LengthTier, 0, len(c.Length))
	for i, tier := range c.Length {
		minimum, err := types.ParseAmount(tier.MinBalanceWei)
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		tiers = append(tiers, mint.LengthTier{MinBalance: minimum, Length: tier.Length})
	}
	return mint.NewLengthTiers(tiers)
}

// WhitelistParams converts the [[whitelist]] entries in registration order.
func (c *Config) WhitelistParams() ([]whitelist.Params, error) {
	out := make([]whitelist.Params, 0, len(c.Whitelist))
	for i, set := range c.Whitelist {
		contract, err := parseAddress(set.Contract)
		if err != nil {
			return nil, fmt.Errorf("whitelist[%d].Contract: %w", i, err)
		}
		wallet, err := parseAddress(set.CommunityWallet)
		if err != nil {
			return nil, fmt.Errorf("whitelist[%d].CommunityWallet: %w", i, err)
		}
		minBalance, err := types.ParseAmount(set.MinBalanceWei)
		if err != nil {
			return nil, fmt.Errorf("whitelist[%d].MinBalanceWei: %w", i, err)
		}
		subID, err := types.ParseAmount(set.SemiFungibleID)
		if err != nil {
			return nil, fmt.Errorf("whitelist[%d].SemiFungibleID: %w", i, err)
		}
		if set.PercRoyal > 100 {
			return nil, fmt.Errorf("whitelist[%d].PercRoyal: %d above 100", i, set.PercRoyal)
		}
		out = append(out, whitelist.Params{
			IsSemiFungible:  set.SemiFungible,
			Contract:        contract,
			CommunityWallet: wallet,
			MaxSupply:       set.MaxSupply,
			MinBalance:      minBalance,
			PercRoyal:       set.PercRoyal,
			SemiFungibleID:  subID,
		})
	}
	return out, nil
}

// OracleHoldings converts the [[oracle.balances]] entries. They only take
// effect when no RPCURL is configured.
func (c *Config) OracleHoldings() ([]oracle.Holding, error) {
	out := make([]oracle.Holding, 0, len(c.Oracle.Balances))
	for i, bal := range c.Oracle.Balances {
		holder, err := parseAddress(bal.Holder)
		if err != nil {
			return nil, fmt.Errorf("oracle.balances[%d].Holder: %w", i, err)
		}
		amount, err := types.ParseAmount(bal.AmountWei)
		if err != nil {
			return nil, fmt.Errorf("oracle.balances[%d].AmountWei: %w", i, err)
		}
		holding := oracle.Holding{Holder: holder, Amount: amount}
		if strings.TrimSpace(bal.Token) == "" {
			if strings.TrimSpace(bal.SemiFungibleID) != "" {
				return nil, fmt.Errorf("oracle.balances[%d]: SemiFungibleID requires Token", i)
			}
			holding.Native = true
			out = append(out, holding)
			continue
		}
		if holding.Token, err = parseAddress(bal.Token); err != nil {
			return nil, fmt.Errorf("oracle.balances[%d].Token: %w", i, err)
		}
		if strings.TrimSpace(bal.SemiFungibleID) != "" {
			if holding.SubID, err = types.ParseAmount(bal.SemiFungibleID); err != nil {
				return nil, fmt.Errorf("oracle.balances[%d].SemiFungibleID: %w", i, err)
			}
			holding.SemiFungible = true
		}
		out = append(out, holding)
	}
	return out, nil
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}
