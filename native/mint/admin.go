package mint

import (
	"context"
	"fmt"
	"math/big"

	"communitymint/core/events"
	"communitymint/core/state"
	"communitymint/native/whitelist"
)

// update runs fn inside a state transaction and flushes the events it
// produced once the transaction commits.
func (e *Engine) update(fn func(tx *state.Tx, buf *events.Buffer) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := e.state.Begin()
	buf := &events.Buffer{}
	if err := fn(tx, buf); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	buf.Flush(e.emitter)
	return nil
}

func (e *Engine) authorize(st engineState, caller [20]byte) error {
	if !st.HasRole(RoleAdmin, caller[:]) {
		return ErrUnauthorized
	}
	return nil
}

// ChangePublicSaleStatus switches between the private and public phase.
func (e *Engine) ChangePublicSaleStatus(caller [20]byte, public bool) error {
	return e.update(func(tx *state.Tx, buf *events.Buffer) error {
		if err := e.authorize(tx, caller); err != nil {
			return err
		}
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.PublicSaleStatus = public
		return storeSaleStatus(tx, buf, caller, cfg)
	})
}

// ChangeSaleActive opens or closes the sale.
func (e *Engine) ChangeSaleActive(caller [20]byte, active bool) error {
	return e.update(func(tx *state.Tx, buf *events.Buffer) error {
		if err := e.authorize(tx, caller); err != nil {
			return err
		}
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.SaleActive = active
		return storeSaleStatus(tx, buf, caller, cfg)
	})
}

func storeSaleStatus(tx *state.Tx, buf *events.Buffer, caller [20]byte, cfg SaleConfig) error {
	if err := tx.KVPut(configKey, cfg); err != nil {
		return err
	}
	buf.Emit(events.SaleStatusChanged{
		Caller:     caller,
		SaleActive: cfg.SaleActive,
		PublicSale: cfg.PublicSaleStatus,
	})
	return nil
}

// ChangeFeeSettings replaces the fee parameters. A zero divisor is rejected
// unless minting is free.
func (e *Engine) ChangeFeeSettings(caller [20]byte, freeMinting bool, percFee uint64, minFee *big.Int) error {
	return e.update(func(tx *state.Tx, buf *events.Buffer) error {
		if err := e.authorize(tx, caller); err != nil {
			return err
		}
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.FreeMinting = freeMinting
		cfg.PercFee = percFee
		cfg.MinFee = minFee
		if err := cfg.Validate(); err != nil {
			return err
		}
		return storeFeeSettings(tx, buf, caller, cfg.Clone())
	})
}

// ChangeDonationBps sets the donation share of non-discounted payments.
func (e *Engine) ChangeDonationBps(caller [20]byte, bps uint32) error {
	return e.update(func(tx *state.Tx, buf *events.Buffer) error {
		if err := e.authorize(tx, caller); err != nil {
			return err
		}
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.DonationBps = bps
		if err := cfg.Validate(); err != nil {
			return err
		}
		return storeFeeSettings(tx, buf, caller, cfg)
	})
}

func storeFeeSettings(tx *state.Tx, buf *events.Buffer, caller [20]byte, cfg SaleConfig) error {
	if err := tx.KVPut(configKey, cfg); err != nil {
		return err
	}
	buf.Emit(events.FeeSettingsChanged{
		Caller:      caller,
		FreeMinting: cfg.FreeMinting,
		PercFee:     cfg.PercFee,
		MinFee:      cloneBig(cfg.MinFee),
		DonationBps: cfg.DonationBps,
	})
	return nil
}

// AddWhiteListing registers a community collection under id.
func (e *Engine) AddWhiteListing(caller [20]byte, id uint64, isSemiFungible bool, contract, communityWallet [20]byte, maxSupply uint64, minBalance *big.Int, percRoyal uint64, semiFungibleID *big.Int) (*whitelist.Entry, error) {
	if e == nil || e.registry == nil {
		return nil, ErrNilState
	}
	var entry *whitelist.Entry
	err := e.update(func(tx *state.Tx, buf *events.Buffer) error {
		var err error
		entry, err = e.registry.WithState(tx, buf).Register(caller, id, whitelist.Params{
			IsSemiFungible:  isSemiFungible,
			Contract:        contract,
			CommunityWallet: communityWallet,
			MaxSupply:       maxSupply,
			MinBalance:      minBalance,
			PercRoyal:       percRoyal,
			SemiFungibleID:  semiFungibleID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Withdraw releases every pending team, donation and royalty amount. Accrued
// totals are left untouched; the released amounts are recorded as withdrawn.
func (e *Engine) Withdraw(caller [20]byte) (*Payout, error) {
	if e == nil || e.registry == nil {
		return nil, ErrNilState
	}
	var payout *Payout
	err := e.update(func(tx *state.Tx, buf *events.Buffer) error {
		if err := e.authorize(tx, caller); err != nil {
			return err
		}
		balances, err := loadBalances(tx)
		if err != nil {
			return err
		}
		out := &Payout{Team: balances.PendingTeam(), Donation: balances.PendingDonation()}
		balances.TeamWithdrawn = new(big.Int).Set(balances.Team)
		balances.DonationWithdrawn = new(big.Int).Set(balances.Donation)
		if err := tx.KVPut(balancesKey, balances); err != nil {
			return err
		}
		registry := e.registry.WithState(tx, buf)
		entries, err := registry.List()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			amount := entry.Pending()
			if amount.Sign() == 0 {
				continue
			}
			if _, err := registry.RecordPayout(entry.ID, amount); err != nil {
				return err
			}
			out.Royalties = append(out.Royalties, RoyaltyPayout{
				WhitelistID: entry.ID,
				Community:   entry.CommunityWallet,
				Amount:      amount,
			})
		}
		buf.Emit(events.Withdrawal{
			Caller:    caller,
			Team:      cloneBig(out.Team),
			Donation:  cloneBig(out.Donation),
			Royalties: out.RoyaltyTotal(),
		})
		payout = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// Settings returns a snapshot of the sale configuration.
func (e *Engine) Settings() (SaleConfig, error) {
	if e == nil || e.state == nil {
		return SaleConfig{}, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadConfig(e.state)
}

// Phase returns the current sale phase.
func (e *Engine) Phase() (Phase, error) {
	cfg, err := e.Settings()
	if err != nil {
		return PhaseClosed, err
	}
	return cfg.Phase(), nil
}

// Bal returns a snapshot of the team and donation ledger.
func (e *Engine) Bal() (*Balances, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadBalances(e.state)
}

// GetListContract returns the whitelist entry registered under id.
func (e *Engine) GetListContract(id uint64) (*whitelist.Entry, error) {
	if e == nil || e.registry == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(id)
}

// ListContracts returns every whitelist entry in registration order.
func (e *Engine) ListContracts() ([]*whitelist.Entry, error) {
	if e == nil || e.registry == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// QueryBalance proxies the gating balance lookup for entry id.
func (e *Engine) QueryBalance(ctx context.Context, id uint64, holder [20]byte) (*big.Int, error) {
	if e == nil || e.registry == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	entry, err := e.registry.Get(id)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.registry.QueryBalance(ctx, entry.ID, holder)
}

// TotalMinted returns the number of tokens minted so far.
func (e *Engine) TotalMinted() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var minted uint64
	if _, err := e.state.KVGet(mintedKey, &minted); err != nil {
		return 0, err
	}
	return minted, nil
}

// Token returns the stored record of a minted token.
func (e *Engine) Token(id uint64) (*Token, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	token := new(Token)
	ok, err := e.state.KVGet(tokenKey(id), token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return token, nil
}

// OwnerOf returns the minter of the token.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	token, err := e.Token(id)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Owner, nil
}

// TokenURI returns the content address of the token's metadata.
func (e *Engine) TokenURI(id uint64) (string, error) {
	token, err := e.Token(id)
	if err != nil {
		return "", err
	}
	return e.resolver.TokenURI(token.Length, token.ID), nil
}
