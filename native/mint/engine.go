package mint

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"communitymint/core/events"
	"communitymint/core/state"
	"communitymint/core/types"
	nativecommon "communitymint/native/common"
	"communitymint/native/whitelist"
)

const (
	// RoleAdmin gates sale configuration, registry writes and withdrawals.
	RoleAdmin = whitelist.RoleAdmin
	// ModuleName is the pause key checked before every mint.
	ModuleName = "mint"
)

var (
	configKey   = []byte("mint/config")
	balancesKey = []byte("mint/balances")
	mintedKey   = []byte("mint/minted")
)

func tokenKey(id uint64) []byte {
	return []byte("mint/token/" + strconv.FormatUint(id, 10))
}

func quotaKey(addr [20]byte) []byte {
	return []byte("mint/quota/" + hex.EncodeToString(addr[:]))
}

// engineState is the read/write surface shared by the manager and its
// transactions.
type engineState interface {
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// NativeBalanceOracle reports the native coin balance of an account.
type NativeBalanceOracle interface {
	NativeBalance(ctx context.Context, holder [20]byte) (*big.Int, error)
}

// Metrics receives mint outcomes.
type Metrics interface {
	ObserveMint(phase string, discounted bool, paid *big.Int)
	ObserveRejection(reason string)
}

// MintRequest is a caller's attempt to mint one token.
type MintRequest struct {
	Caller      [20]byte
	Payment     *big.Int
	WhitelistID *uint64
	// Length overrides the tier derived from the reference balance when set.
	Length string
}

// MintRecord describes a committed mint.
type MintRecord struct {
	TokenID     uint64
	Filename    string
	ContentID   string
	URI         string
	Minter      [20]byte
	Phase       Phase
	Reference   *big.Int
	Paid        *big.Int
	Fee         *big.Int
	Team        *big.Int
	Donation    *big.Int
	Royalty     *big.Int
	WhitelistID *uint64
	Length      string
	MintedAt    time.Time
}

// Discounted reports whether a whitelist entry matched the mint.
func (r *MintRecord) Discounted() bool { return r != nil && r.WhitelistID != nil }

// Token is the stored record of a minted token.
type Token struct {
	ID        uint64
	Owner     [20]byte
	Length    string
	ContentID string
	MintedAt  uint64
}

// Engine runs the sale state machine over the state manager. Mutating calls
// are serialized and every mint commits or discards one state transaction.
type Engine struct {
	mu sync.Mutex

	state    *state.Manager
	registry *whitelist.Registry
	native   NativeBalanceOracle
	emitter  events.Emitter
	metrics  Metrics
	pauses   nativecommon.PauseView
	resolver *URIResolver
	tiers    *LengthTiers
	quota    nativecommon.Quota
	nowFn    func() time.Time

	startToken       uint64
	collectionSupply uint64
	fallbackRef      *big.Int
}

// NewEngine constructs a mint engine with default dependencies.
func NewEngine(st *state.Manager, registry *whitelist.Registry) *Engine {
	return &Engine{
		state:       st,
		registry:    registry,
		emitter:     events.NoopEmitter{},
		resolver:    DefaultURIResolver(),
		nowFn:       time.Now,
		fallbackRef: big.NewInt(0),
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) SetMetrics(m Metrics) { e.metrics = m }
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }
func (e *Engine) SetNativeOracle(oracle NativeBalanceOracle) { e.native = oracle }
func (e *Engine) SetLengthTiers(tiers *LengthTiers) { e.tiers = tiers }
func (e *Engine) SetQuota(q nativecommon.Quota) { e.quota = q }

// SetResolver replaces the content band table. Nil restores the defaults.
func (e *Engine) SetResolver(r *URIResolver) {
	if r == nil {
		r = DefaultURIResolver()
	}
	e.resolver = r
}

// SetStartToken sets the id assigned to the first minted token.
func (e *Engine) SetStartToken(start uint64) { e.startToken = start }

// SetCollectionSupply caps the total number of mints. Zero disables the cap.
func (e *Engine) SetCollectionSupply(supply uint64) { e.collectionSupply = supply }

// SetFallbackReference sets the reference balance used for non-discounted
// mints when no native balance oracle is configured.
func (e *Engine) SetFallbackReference(ref *big.Int) { e.fallbackRef = cloneBig(ref) }

// Registry exposes the whitelist registry bound to committed state.
func (e *Engine) Registry() *whitelist.Registry { return e.registry }

// Init stores cfg as the sale configuration if none has been stored yet.
func (e *Engine) Init(cfg SaleConfig) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ok, err := e.state.KVGet(configKey, nil)
	if err != nil || ok {
		return err
	}
	return e.state.KVPut(configKey, cfg.Clone())
}

// Mint executes one mint request. On any failure no state changes and no
// events are emitted.
func (e *Engine) Mint(ctx context.Context, req MintRequest) (*MintRecord, error) {
	if e == nil || e.state == nil || e.registry == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.state.Begin()
	buf := &events.Buffer{}
	record, err := e.mint(ctx, tx, buf, req)
	if err != nil {
		tx.Discard()
		e.observeRejection(err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		e.observeRejection(err)
		return nil, err
	}
	buf.Flush(e.emitter)
	if e.metrics != nil {
		e.metrics.ObserveMint(record.Phase.String(), record.Discounted(), record.Paid)
	}
	return record, nil
}

func (e *Engine) mint(ctx context.Context, tx *state.Tx, buf *events.Buffer, req MintRequest) (*MintRecord, error) {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	payment := cloneBig(req.Payment)
	if err := types.CheckAmount(payment); err != nil {
		return nil, fmt.Errorf("%w: payment: %v", ErrInvalidParameters, err)
	}
	length := strings.TrimSpace(req.Length)
	if strings.ContainsAny(length, "/_") {
		return nil, fmt.Errorf("%w: length %q", ErrInvalidParameters, req.Length)
	}

	cfg, err := loadConfig(tx)
	if err != nil {
		return nil, err
	}
	phase := cfg.Phase()
	if phase == PhaseClosed {
		return nil, ErrSaleNotActive
	}

	var minted uint64
	if _, err := tx.KVGet(mintedKey, &minted); err != nil {
		return nil, err
	}
	if e.collectionSupply > 0 && minted >= e.collectionSupply {
		return nil, fmt.Errorf("%w: %d of %d minted", ErrSoldOut, minted, e.collectionSupply)
	}
	now := e.nowFn()
	usage, err := e.checkQuota(tx, req.Caller, now)
	if err != nil {
		return nil, err
	}

	registry := e.registry.WithState(tx, buf)
	var (
		discounted bool
		entry      *whitelist.Entry
		reference  *big.Int
	)
	if req.WhitelistID != nil {
		elig, err := registry.Check(ctx, *req.WhitelistID, req.Caller)
		if err != nil {
			return nil, err
		}
		switch {
		case elig.Eligible():
			discounted = true
			reference = elig.Held
		case elig.MeetsBalance:
			return nil, fmt.Errorf("%w: entry %d", whitelist.ErrCapacityExceeded, *req.WhitelistID)
		case phase == PhasePrivateSale:
			return nil, fmt.Errorf("%w: balance %s below minimum", ErrNotEligible, elig.Held)
		}
		if discounted {
			if entry, err = registry.Get(*req.WhitelistID); err != nil {
				return nil, err
			}
		}
	} else if phase == PhasePrivateSale {
		return nil, fmt.Errorf("%w: private sale requires a whitelist entry", ErrNotEligible)
	}
	// Length tiers always follow the caller's native balance; the gating
	// balance only prices discounted mints.
	native, err := e.nativeReference(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	if !discounted {
		reference = native
	}

	fee, err := ComputeFee(cfg, reference)
	if err != nil {
		return nil, err
	}
	if payment.Cmp(fee) < 0 {
		return nil, fmt.Errorf("%w: paid %s, required %s", ErrInsufficientPayment, payment, fee)
	}

	var split Split
	if discounted {
		split = SplitDiscounted(payment, entry.PercRoyal)
		if _, err := registry.RecordDiscountedMint(entry.ID, split.Royalty); err != nil {
			return nil, err
		}
	} else {
		split = SplitStandard(payment, cfg.DonationBps)
	}
	balances, err := loadBalances(tx)
	if err != nil {
		return nil, err
	}
	balances.Credit(split)
	if err := tx.KVPut(balancesKey, balances); err != nil {
		return nil, err
	}

	tokenID := e.startToken + minted
	if err := tx.KVPut(mintedKey, minted+1); err != nil {
		return nil, err
	}
	if length == "" {
		length = e.tiers.Resolve(native)
	}
	token := &Token{
		ID:        tokenID,
		Owner:     req.Caller,
		Length:    length,
		ContentID: e.resolver.Resolve(tokenID),
		MintedAt:  uint64(now.Unix()),
	}
	if err := tx.KVPut(tokenKey(tokenID), token); err != nil {
		return nil, err
	}
	if usage != nil {
		if err := tx.KVPut(quotaKey(req.Caller), usage); err != nil {
			return nil, err
		}
	}

	record := &MintRecord{
		TokenID:   tokenID,
		Filename:  Filename(length, tokenID),
		ContentID: token.ContentID,
		URI:       e.resolver.TokenURI(length, tokenID),
		Minter:    req.Caller,
		Phase:     phase,
		Reference: cloneBig(reference),
		Paid:      payment,
		Fee:       fee,
		Team:      split.Team,
		Donation:  split.Donation,
		Royalty:   split.Royalty,
		Length:    length,
		MintedAt:  now,
	}
	if discounted {
		id := entry.ID
		record.WhitelistID = &id
	}
	buf.Emit(events.PermanentURI{Value: record.Filename, TokenID: tokenID})
	buf.Emit(events.MintCompleted{
		TokenID:     tokenID,
		Minter:      req.Caller,
		Paid:        cloneBig(payment),
		Fee:         cloneBig(fee),
		Team:        cloneBig(split.Team),
		Donation:    cloneBig(split.Donation),
		Royalty:     cloneBig(split.Royalty),
		WhitelistID: record.WhitelistID,
		Length:      length,
		URI:         record.URI,
	})
	return record, nil
}

func (e *Engine) checkQuota(tx *state.Tx, caller [20]byte, now time.Time) (*nativecommon.QuotaNow, error) {
	if !e.quota.Enabled() {
		return nil, nil
	}
	var prev nativecommon.QuotaNow
	if _, err := tx.KVGet(quotaKey(caller), &prev); err != nil {
		return nil, err
	}
	next, err := nativecommon.CheckQuota(e.quota, e.quota.Epoch(now.Unix()), prev, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletLimit, err)
	}
	return &next, nil
}

func (e *Engine) nativeReference(ctx context.Context, caller [20]byte) (*big.Int, error) {
	if e.native == nil {
		return cloneBig(e.fallbackRef), nil
	}
	balance, err := e.native.NativeBalance(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNativeBalance, err)
	}
	return cloneBig(balance), nil
}

func (e *Engine) observeRejection(err error) {
	if e.metrics != nil {
		e.metrics.ObserveRejection(ReasonCode(err))
	}
}

func loadConfig(st engineState) (SaleConfig, error) {
	cfg := new(SaleConfig)
	ok, err := st.KVGet(configKey, cfg)
	if err != nil {
		return SaleConfig{}, err
	}
	if !ok {
		return DefaultSaleConfig(), nil
	}
	return cfg.Clone(), nil
}

func loadBalances(st engineState) (*Balances, error) {
	balances := new(Balances)
	ok, err := st.KVGet(balancesKey, balances)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newBalances(), nil
	}
	return balances.Clone(), nil
}
