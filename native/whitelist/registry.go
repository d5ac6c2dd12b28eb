package whitelist

import (
	"context"
	"fmt"
	"math/big"

	"communitymint/core/events"
	"communitymint/core/types"
	nativecommon "communitymint/native/common"
)

const (
	// RoleAdmin gates registry and sale administration.
	RoleAdmin = "ROLE_MINT_ADMIN"
	// ModuleName is the pause key checked before registry writes.
	ModuleName = "whitelist"
)

type registryState interface {
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Registry manages the append-only list of whitelisted community collections.
type Registry struct {
	st      registryState
	oracle  BalanceOracle
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewRegistry creates a registry backed by the provided state and oracle.
func NewRegistry(st registryState, oracle BalanceOracle) *Registry {
	return &Registry{st: st, oracle: oracle, emitter: events.NoopEmitter{}}
}

// WithState returns a registry sharing the oracle and pause view of r but
// reading and writing through st. The returned registry emits into emitter.
func (r *Registry) WithState(st registryState, emitter events.Emitter) *Registry {
	clone := &Registry{st: st, oracle: r.oracle, pauses: r.pauses}
	clone.SetEmitter(emitter)
	return clone
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetOracle replaces the gating balance oracle.
func (r *Registry) SetOracle(oracle BalanceOracle) { r.oracle = oracle }

// Register appends a new entry. The caller must hold RoleAdmin and id must
// equal the current number of entries.
func (r *Registry) Register(caller [20]byte, id uint64, p Params) (*Entry, error) {
	if r == nil || r.st == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(r.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !r.st.HasRole(RoleAdmin, caller[:]) {
		return nil, ErrUnauthorized
	}
	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	if id != count {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrIndexMismatch, count, id)
	}
	entry, err := sanitizeParams(id, p)
	if err != nil {
		return nil, err
	}
	if err := r.putEntry(entry); err != nil {
		return nil, err
	}
	if err := r.st.KVPut(countKey, count+1); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.WhitelistAdded{
		ID:              entry.ID,
		Contract:        entry.Contract,
		CommunityWallet: entry.CommunityWallet,
		SemiFungible:    entry.IsSemiFungible,
		SemiFungibleID:  cloneBig(entry.SemiFungibleID),
		MaxSupply:       entry.MaxSupply,
		MinBalance:      cloneBig(entry.MinBalance),
		PercRoyal:       entry.PercRoyal,
	})
	return entry.Clone(), nil
}

// Count returns the number of registered entries.
func (r *Registry) Count() (uint64, error) {
	if r == nil || r.st == nil {
		return 0, ErrNilState
	}
	var count uint64
	if _, err := r.st.KVGet(countKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Get returns a copy of the entry with the supplied id.
func (r *Registry) Get(id uint64) (*Entry, error) {
	if r == nil || r.st == nil {
		return nil, ErrNilState
	}
	entry := new(Entry)
	ok, err := r.st.KVGet(entryKey(id), entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return normalize(entry), nil
}

// List returns every entry in registration order.
func (r *Registry) List() ([]*Entry, error) {
	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, count)
	for id := uint64(0); id < count; id++ {
		entry, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// QueryBalance reports how many gating tokens of entry id the holder owns.
func (r *Registry) QueryBalance(ctx context.Context, id uint64, holder [20]byte) (*big.Int, error) {
	entry, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return r.balanceOf(ctx, entry, holder)
}

// QueryEligibility reports whether holder may take a discounted mint under
// entry id, together with the balance that was observed.
func (r *Registry) QueryEligibility(ctx context.Context, id uint64, holder [20]byte) (bool, *big.Int, error) {
	elig, err := r.Check(ctx, id, holder)
	if err != nil {
		return false, nil, err
	}
	return elig.Eligible(), elig.Held, nil
}

// Check evaluates the balance and capacity conditions separately.
func (r *Registry) Check(ctx context.Context, id uint64, holder [20]byte) (*Eligibility, error) {
	entry, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	held, err := r.balanceOf(ctx, entry, holder)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		Held:         held,
		MeetsBalance: held.Cmp(entry.MinBalance) >= 0,
		HasCapacity:  entry.HasCapacity(),
	}, nil
}

// RecordDiscountedMint consumes one unit of capacity and credits royalty to
// the entry's community balance.
func (r *Registry) RecordDiscountedMint(id uint64, royalty *big.Int) (*Entry, error) {
	if royalty == nil {
		royalty = big.NewInt(0)
	}
	if royalty.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative royalty", ErrInvalidParameters)
	}
	entry, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !entry.HasCapacity() {
		return nil, fmt.Errorf("%w: %d of %d used", ErrCapacityExceeded, entry.Tracker, entry.MaxSupply)
	}
	entry.Tracker++
	entry.Balance = new(big.Int).Add(entry.Balance, royalty)
	if err := r.putEntry(entry); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.RoyaltyCredited{
		WhitelistID: entry.ID,
		Community:   entry.CommunityWallet,
		Amount:      new(big.Int).Set(royalty),
		Tracker:     entry.Tracker,
	})
	return entry.Clone(), nil
}

// RecordPayout marks amount of the entry's royalty as paid out.
func (r *Registry) RecordPayout(id uint64, amount *big.Int) (*Entry, error) {
	entry, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return entry, nil
	}
	if amount.Cmp(entry.Pending()) > 0 {
		return nil, fmt.Errorf("%w: payout exceeds pending royalty", ErrInvalidParameters)
	}
	entry.Withdrawn = new(big.Int).Add(entry.Withdrawn, amount)
	if err := r.putEntry(entry); err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

func (r *Registry) balanceOf(ctx context.Context, entry *Entry, holder [20]byte) (*big.Int, error) {
	if r.oracle == nil {
		return nil, ErrOracleUnavailable
	}
	var (
		held *big.Int
		err  error
	)
	switch q := entry.Query().(type) {
	case SemiFungibleQuery:
		held, err = r.oracle.SemiFungibleBalance(ctx, entry.Contract, holder, q.SubID)
	default:
		held, err = r.oracle.FungibleBalance(ctx, entry.Contract, holder)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}
	if held == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(held), nil
}

func (r *Registry) putEntry(entry *Entry) error {
	return r.st.KVPut(entryKey(entry.ID), entry)
}

func sanitizeParams(id uint64, p Params) (*Entry, error) {
	var zero [20]byte
	if p.Contract == zero {
		return nil, fmt.Errorf("%w: contract address required", ErrInvalidParameters)
	}
	if p.CommunityWallet == zero {
		return nil, fmt.Errorf("%w: community wallet required", ErrInvalidParameters)
	}
	if p.PercRoyal > 100 {
		return nil, fmt.Errorf("%w: royalty percentage %d above 100", ErrInvalidParameters, p.PercRoyal)
	}
	if err := types.CheckAmount(p.MinBalance); err != nil {
		return nil, fmt.Errorf("%w: min balance: %v", ErrInvalidParameters, err)
	}
	if err := types.CheckAmount(p.SemiFungibleID); err != nil {
		return nil, fmt.Errorf("%w: semi-fungible id: %v", ErrInvalidParameters, err)
	}
	entry := &Entry{
		ID:              id,
		IsSemiFungible:  p.IsSemiFungible,
		Contract:        p.Contract,
		CommunityWallet: p.CommunityWallet,
		MaxSupply:       p.MaxSupply,
		MinBalance:      cloneBig(p.MinBalance),
		PercRoyal:       p.PercRoyal,
		Balance:         big.NewInt(0),
		SemiFungibleID:  cloneBig(p.SemiFungibleID),
		Withdrawn:       big.NewInt(0),
	}
	return entry, nil
}

func normalize(entry *Entry) *Entry {
	entry.MinBalance = cloneBig(entry.MinBalance)
	entry.Balance = cloneBig(entry.Balance)
	entry.SemiFungibleID = cloneBig(entry.SemiFungibleID)
	entry.Withdrawn = cloneBig(entry.Withdrawn)
	return entry
}
