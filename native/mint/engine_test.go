package mint_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"communitymint/core/events"
	"communitymint/core/state"
	"communitymint/core/types"
	nativecommon "communitymint/native/common"
	"communitymint/native/mint"
	"communitymint/native/whitelist"
	"communitymint/storage"
)

type holding struct {
	token  [20]byte
	holder [20]byte
}

type fakeOracle struct {
	gating    map[holding]*big.Int
	native    map[[20]byte]*big.Int
	gatingErr error
	nativeErr error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		gating: make(map[holding]*big.Int),
		native: make(map[[20]byte]*big.Int),
	}
}

func (f *fakeOracle) FungibleBalance(_ context.Context, token, holder [20]byte) (*big.Int, error) {
	if f.gatingErr != nil {
		return nil, f.gatingErr
	}
	if v, ok := f.gating[holding{token, holder}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeOracle) SemiFungibleBalance(ctx context.Context, token, holder [20]byte, _ *big.Int) (*big.Int, error) {
	return f.FungibleBalance(ctx, token, holder)
}

func (f *fakeOracle) NativeBalance(_ context.Context, holder [20]byte) (*big.Int, error) {
	if f.nativeErr != nil {
		return nil, f.nativeErr
	}
	if v, ok := f.native[holder]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

type fakeMetrics struct {
	mints      int
	rejections map[string]int
}

func (m *fakeMetrics) ObserveMint(string, bool, *big.Int) { m.mints++ }

func (m *fakeMetrics) ObserveRejection(reason string) {
	if m.rejections == nil {
		m.rejections = make(map[string]int)
	}
	m.rejections[reason]++
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

var (
	admin     = addr(0xAD)
	gateToken = addr(0x10)
	community = addr(0x20)
)

// countingDB counts database writes so tests can assert a call left state untouched.
type countingDB struct {
	*storage.MemDB
	writes int
}

func (db *countingDB) Put(key, value []byte) error {
	db.writes++
	return db.MemDB.Put(key, value)
}

func (db *countingDB) NewBatch() storage.Batch {
	return &countingBatch{Batch: db.MemDB.NewBatch(), db: db}
}

type countingBatch struct {
	storage.Batch
	db *countingDB
}

func (b *countingBatch) Write() error {
	b.db.writes++
	return b.Batch.Write()
}

type harness struct {
	engine  *mint.Engine
	manager *state.Manager
	db      *countingDB
	oracle  *fakeOracle
	events  *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := &countingDB{MemDB: storage.NewMemDB()}
	t.Cleanup(db.Close)
	manager := state.NewManager(db)
	if err := manager.SetRole(mint.RoleAdmin, admin[:]); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	oracle := newFakeOracle()
	engine := mint.NewEngine(manager, whitelist.NewRegistry(manager, oracle))
	engine.SetNativeOracle(oracle)
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return &harness{engine: engine, manager: manager, db: db, oracle: oracle, events: rec}
}

func ether(t *testing.T, v string) *big.Int {
	t.Helper()
	out, err := types.ParseEther(v)
	if err != nil {
		t.Fatalf("parse ether %q: %v", v, err)
	}
	return out
}

func (h *harness) setPublic(t *testing.T) {
	t.Helper()
	if err := h.engine.ChangePublicSaleStatus(admin, true); err != nil {
		t.Fatalf("public sale: %v", err)
	}
	if err := h.engine.ChangeFeeSettings(admin, false, 100, ether(t, "0.02")); err != nil {
		t.Fatalf("fee settings: %v", err)
	}
}

func (h *harness) addEntry(t *testing.T, id uint64, maxSupply uint64, minBalance int64, percRoyal uint64) {
	t.Helper()
	if _, err := h.engine.AddWhiteListing(admin, id, false, gateToken, community, maxSupply, big.NewInt(minBalance), percRoyal, nil); err != nil {
		t.Fatalf("add whitelisting: %v", err)
	}
}

// funds returns team + donation + the sum of every entry's royalty balance.
func (h *harness) funds(t *testing.T) *big.Int {
	t.Helper()
	bal, err := h.engine.Bal()
	if err != nil {
		t.Fatalf("bal: %v", err)
	}
	total := new(big.Int).Add(bal.Team, bal.Donation)
	entries, err := h.engine.ListContracts()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, entry := range entries {
		total.Add(total, entry.Balance)
	}
	return total
}

func uint64Ptr(v uint64) *uint64 { return &v }

func TestPublicSaleFeeScenario(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	minter := addr(0x01)
	h.oracle.native[minter] = ether(t, "1")

	_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.019")})
	if !errors.Is(err, mint.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if mint.ReasonCode(err) != mint.ReasonInsufficientPayment {
		t.Fatalf("unexpected reason %s", mint.ReasonCode(err))
	}

	first, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02")})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	second, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02")})
	if err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if first.TokenID != 0 || second.TokenID != 1 {
		t.Fatalf("expected sequential ids 0,1 got %d,%d", first.TokenID, second.TokenID)
	}
	if first.Fee.Cmp(ether(t, "0.02")) != 0 {
		t.Fatalf("unexpected fee %s", first.Fee)
	}
	bal, _ := h.engine.Bal()
	if bal.Team.Cmp(ether(t, "0.04")) != 0 || bal.Donation.Sign() != 0 {
		t.Fatalf("unexpected ledger team=%s donation=%s", bal.Team, bal.Donation)
	}
}

func TestFeeScalesWithNativeBalance(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	minter := addr(0x02)
	h.oracle.native[minter] = ether(t, "10")

	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.09")}); !errors.Is(err, mint.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	record, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.1")})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if record.Fee.Cmp(ether(t, "0.1")) != 0 {
		t.Fatalf("unexpected fee %s", record.Fee)
	}
}

func TestRoyaltyAndCapacityScenario(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.addEntry(t, 0, 1, 1, 10)
	first, second := addr(0x01), addr(0x02)
	h.oracle.gating[holding{gateToken, first}] = big.NewInt(5)
	h.oracle.gating[holding{gateToken, second}] = big.NewInt(5)

	record, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: first, Payment: ether(t, "1"), WhitelistID: uint64Ptr(0)})
	if err != nil {
		t.Fatalf("discounted mint: %v", err)
	}
	if !record.Discounted() || *record.WhitelistID != 0 {
		t.Fatalf("expected discounted record, got %+v", record)
	}
	entry, err := h.engine.GetListContract(0)
	if err != nil {
		t.Fatalf("get list contract: %v", err)
	}
	if entry.Balance.Cmp(ether(t, "0.1")) != 0 || entry.Tracker != 1 {
		t.Fatalf("unexpected entry balance=%s tracker=%d", entry.Balance, entry.Tracker)
	}
	bal, _ := h.engine.Bal()
	if bal.Team.Cmp(ether(t, "0.9")) != 0 {
		t.Fatalf("unexpected team %s", bal.Team)
	}

	before := h.funds(t)
	_, err = h.engine.Mint(context.Background(), mint.MintRequest{Caller: second, Payment: ether(t, "1"), WhitelistID: uint64Ptr(0)})
	if !errors.Is(err, whitelist.ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if mint.ReasonCode(err) != mint.ReasonCapacityExceeded {
		t.Fatalf("unexpected reason %s", mint.ReasonCode(err))
	}
	if h.funds(t).Cmp(before) != 0 {
		t.Fatalf("failed mint changed ledgers")
	}
	entry, _ = h.engine.GetListContract(0)
	if entry.Tracker != 1 {
		t.Fatalf("tracker exceeded max supply: %d", entry.Tracker)
	}
}

func TestCapacityAfterMaxSupplyMints(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	const maxSupply = 3
	h.addEntry(t, 0, maxSupply, 1, 20)
	for i := 0; i < maxSupply+1; i++ {
		minter := addr(byte(0x40 + i))
		h.oracle.gating[holding{gateToken, minter}] = big.NewInt(1)
		_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02"), WhitelistID: uint64Ptr(0)})
		if i < maxSupply && err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		if i == maxSupply && !errors.Is(err, whitelist.ErrCapacityExceeded) {
			t.Fatalf("mint %d: expected capacity exceeded, got %v", i, err)
		}
	}
	entry, _ := h.engine.GetListContract(0)
	if entry.Tracker != maxSupply {
		t.Fatalf("unexpected tracker %d", entry.Tracker)
	}
}

func TestConservationOfFunds(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	if err := h.engine.ChangeDonationBps(admin, 1_500); err != nil {
		t.Fatalf("donation bps: %v", err)
	}
	h.addEntry(t, 0, 0, 1, 33)
	holder := addr(0x05)
	h.oracle.gating[holding{gateToken, holder}] = big.NewInt(1)

	payments := []struct {
		caller    [20]byte
		amount    string
		whitelist *uint64
	}{
		{addr(0x06), "0.02", nil},
		{holder, "0.123456789", uint64Ptr(0)},
		{addr(0x07), "0.5", nil},
		{holder, "0.333333333333333333", uint64Ptr(0)},
	}
	for i, p := range payments {
		before := h.funds(t)
		payment := ether(t, p.amount)
		if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: p.caller, Payment: payment, WhitelistID: p.whitelist}); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		want := new(big.Int).Add(before, payment)
		if got := h.funds(t); got.Cmp(want) != 0 {
			t.Fatalf("mint %d: funds %s want %s", i, got, want)
		}
	}
	bal, _ := h.engine.Bal()
	if bal.Donation.Sign() == 0 {
		t.Fatalf("expected donation share from non-discounted mints")
	}
}

func TestClosedSaleRejectsEverything(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.addEntry(t, 0, 0, 0, 10)
	if err := h.engine.ChangeSaleActive(admin, false); err != nil {
		t.Fatalf("close sale: %v", err)
	}
	phase, _ := h.engine.Phase()
	if phase != mint.PhaseClosed {
		t.Fatalf("expected closed phase, got %s", phase)
	}
	minter := addr(0x01)
	h.oracle.gating[holding{gateToken, minter}] = big.NewInt(100)
	for _, req := range []mint.MintRequest{
		{Caller: minter, Payment: ether(t, "100")},
		{Caller: minter, Payment: ether(t, "100"), WhitelistID: uint64Ptr(0)},
		{Caller: minter},
	} {
		_, err := h.engine.Mint(context.Background(), req)
		if !errors.Is(err, mint.ErrSaleNotActive) {
			t.Fatalf("expected ErrSaleNotActive, got %v", err)
		}
		if mint.ReasonCode(err) != "LOCK" {
			t.Fatalf("unexpected reason %s", mint.ReasonCode(err))
		}
	}
	if len(h.events.Events()) == 0 {
		t.Fatalf("expected admin events to be recorded")
	}
	if got := h.events.OfType(events.TypePermanentURI); len(got) != 0 {
		t.Fatalf("closed sale emitted %d mint records", len(got))
	}
}

func TestPrivateSaleRequiresEligibility(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Init(mint.DefaultSaleConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	h.addEntry(t, 0, 0, 10, 10)
	minter := addr(0x01)
	h.oracle.native[minter] = ether(t, "1")

	_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "1")})
	if !errors.Is(err, mint.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible without whitelist id, got %v", err)
	}
	h.oracle.gating[holding{gateToken, minter}] = big.NewInt(9)
	_, err = h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "1"), WhitelistID: uint64Ptr(0)})
	if !errors.Is(err, mint.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible below min balance, got %v", err)
	}
	_, err = h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "1"), WhitelistID: uint64Ptr(3)})
	if !errors.Is(err, whitelist.ErrNotFound) || mint.ReasonCode(err) != "LC_NOT_FOUND" {
		t.Fatalf("expected LC_NOT_FOUND, got %v", err)
	}

	h.oracle.gating[holding{gateToken, minter}] = big.NewInt(10)
	record, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02"), WhitelistID: uint64Ptr(0)})
	if err != nil {
		t.Fatalf("eligible private mint: %v", err)
	}
	if record.Phase != mint.PhasePrivateSale {
		t.Fatalf("unexpected phase %s", record.Phase)
	}
	if record.Reference.Int64() != 10 {
		t.Fatalf("discounted fee must use the gating balance, got reference %s", record.Reference)
	}
}

func TestPublicSaleFallsBackWhenBelowMinimum(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.addEntry(t, 0, 0, 10, 50)
	minter := addr(0x01)
	h.oracle.gating[holding{gateToken, minter}] = big.NewInt(1)

	record, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02"), WhitelistID: uint64Ptr(0)})
	if err != nil {
		t.Fatalf("public mint: %v", err)
	}
	if record.Discounted() || record.Royalty.Sign() != 0 {
		t.Fatalf("ineligible public mint must not be discounted: %+v", record)
	}
	entry, _ := h.engine.GetListContract(0)
	if entry.Tracker != 0 {
		t.Fatalf("ineligible mint consumed capacity")
	}
}

func TestFreeMinting(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.ChangePublicSaleStatus(admin, true); err != nil {
		t.Fatalf("public: %v", err)
	}
	if err := h.engine.ChangeFeeSettings(admin, true, 0, big.NewInt(0)); err != nil {
		t.Fatalf("free settings: %v", err)
	}
	settings, err := h.engine.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !settings.FreeMinting || settings.PercFee != 0 || settings.MinFee.Sign() != 0 || !settings.PublicSaleStatus {
		t.Fatalf("unexpected settings %+v", settings)
	}
	record, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01)})
	if err != nil {
		t.Fatalf("free mint: %v", err)
	}
	if record.Fee.Sign() != 0 || record.Paid.Sign() != 0 {
		t.Fatalf("free mint should cost nothing: %+v", record)
	}
}

func TestChangeFeeSettingsValidation(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.ChangeFeeSettings(admin, false, 0, big.NewInt(0)); !errors.Is(err, mint.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if err := h.engine.ChangeFeeSettings(admin, false, 100, nil); !errors.Is(err, mint.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for nil floor, got %v", err)
	}
	if err := h.engine.ChangeDonationBps(admin, mint.BpsDenominator+1); !errors.Is(err, mint.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for donation bps, got %v", err)
	}
	settings, _ := h.engine.Settings()
	if settings.PercFee != 100 {
		t.Fatalf("rejected update leaked into settings: %+v", settings)
	}
}

func TestAdminOperationsRequireRole(t *testing.T) {
	h := newHarness(t)
	outsider := addr(0x99)
	checks := []error{
		h.engine.ChangePublicSaleStatus(outsider, true),
		h.engine.ChangeSaleActive(outsider, false),
		h.engine.ChangeFeeSettings(outsider, true, 0, big.NewInt(0)),
		h.engine.ChangeDonationBps(outsider, 10),
	}
	_, err := h.engine.AddWhiteListing(outsider, 0, false, gateToken, community, 0, big.NewInt(0), 0, nil)
	checks = append(checks, err)
	_, err = h.engine.Withdraw(outsider)
	checks = append(checks, err)
	for i, err := range checks {
		if mint.ReasonCode(err) != mint.ReasonUnauthorized {
			t.Fatalf("check %d: expected unauthorized, got %v", i, err)
		}
	}
}

func TestAddWhiteListingIndexAndLookup(t *testing.T) {
	h := newHarness(t)
	h.addEntry(t, 0, 5, 2, 15)
	_, err := h.engine.AddWhiteListing(admin, 2, false, gateToken, community, 0, big.NewInt(0), 0, nil)
	if mint.ReasonCode(err) != mint.ReasonIndexMismatch {
		t.Fatalf("expected index mismatch, got %v", err)
	}
	_, err = h.engine.AddWhiteListing(admin, 1, false, gateToken, community, 0, big.NewInt(0), 101, nil)
	if mint.ReasonCode(err) != mint.ReasonInvalidParameters {
		t.Fatalf("expected invalid params, got %v", err)
	}
	for i := 0; i < 3; i++ {
		entry, err := h.engine.GetListContract(0)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if entry.PercRoyal != 15 || entry.MaxSupply != 5 || entry.MinBalance.Int64() != 2 || entry.Tracker != 0 || entry.Balance.Sign() != 0 {
			t.Fatalf("read %d: unexpected entry %+v", i, entry)
		}
	}
	if _, err := h.engine.GetListContract(1); mint.ReasonCode(err) != "LC_NOT_FOUND" {
		t.Fatalf("expected LC_NOT_FOUND, got %v", err)
	}
}

func TestQueryBalance(t *testing.T) {
	h := newHarness(t)
	h.addEntry(t, 0, 0, 0, 0)
	holder := addr(0x31)
	h.oracle.gating[holding{gateToken, holder}] = big.NewInt(42)
	got, err := h.engine.QueryBalance(context.Background(), 0, holder)
	if err != nil || got.Int64() != 42 {
		t.Fatalf("query balance: %v err=%v", got, err)
	}
	if _, err := h.engine.QueryBalance(context.Background(), 1, holder); !errors.Is(err, whitelist.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPermanentURIEmittedAfterCommit(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.engine.SetStartToken(1)
	tiers, err := mint.NewLengthTiers([]mint.LengthTier{
		{MinBalance: big.NewInt(0), Length: "3"},
		{MinBalance: ether(t, "1"), Length: "7"},
	})
	if err != nil {
		t.Fatalf("tiers: %v", err)
	}
	h.engine.SetLengthTiers(tiers)
	minter := addr(0x01)
	h.oracle.native[minter] = ether(t, "2")

	record, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02")})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if record.TokenID != 1 || record.Filename != "7_1.json" {
		t.Fatalf("unexpected record id=%d filename=%s", record.TokenID, record.Filename)
	}
	uris := h.events.OfType(events.TypePermanentURI)
	if len(uris) != 1 {
		t.Fatalf("expected one permanent uri event, got %d", len(uris))
	}
	evt := uris[0].(events.PermanentURI)
	if evt.Value != "7_1.json" || evt.TokenID != 1 {
		t.Fatalf("unexpected event %+v", evt)
	}

	override, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02"), Length: "4"})
	if err != nil {
		t.Fatalf("mint with length: %v", err)
	}
	if override.Filename != "4_2.json" {
		t.Fatalf("unexpected filename %s", override.Filename)
	}
	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "0.02"), Length: "4_x"}); !errors.Is(err, mint.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters for bad length, got %v", err)
	}

	owner, err := h.engine.OwnerOf(1)
	if err != nil || owner != minter {
		t.Fatalf("owner of 1: %x err=%v", owner, err)
	}
	uri, err := h.engine.TokenURI(2)
	if err != nil || uri != "ipfs://"+mint.DefaultBands[0].ContentID+"/4_2.json" {
		t.Fatalf("token uri: %s err=%v", uri, err)
	}
	if _, err := h.engine.TokenURI(99); !errors.Is(err, mint.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	minted, _ := h.engine.TotalMinted()
	if minted != 2 {
		t.Fatalf("unexpected minted count %d", minted)
	}
}

func TestLengthTierIgnoresGatingBalance(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.addEntry(t, 0, 0, 1, 10)
	tiers, err := mint.NewLengthTiers([]mint.LengthTier{
		{MinBalance: big.NewInt(0), Length: "1"},
		{MinBalance: ether(t, "1"), Length: "10"},
	})
	if err != nil {
		t.Fatalf("tiers: %v", err)
	}
	h.engine.SetLengthTiers(tiers)
	minter := addr(0x01)
	h.oracle.native[minter] = ether(t, "5")
	h.oracle.gating[holding{gateToken, minter}] = big.NewInt(3)

	plain, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "1")})
	if err != nil {
		t.Fatalf("plain mint: %v", err)
	}
	discounted, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "1"), WhitelistID: uint64Ptr(0)})
	if err != nil {
		t.Fatalf("discounted mint: %v", err)
	}
	if !discounted.Discounted() {
		t.Fatalf("expected discounted record, got %+v", discounted)
	}
	if plain.Length != "10" || discounted.Length != plain.Length {
		t.Fatalf("length mismatch plain=%s discounted=%s", plain.Length, discounted.Length)
	}
	if discounted.Reference.String() != "3" {
		t.Fatalf("discounted fee reference should be the gating balance, got %s", discounted.Reference)
	}
}

func TestFailedMintLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.addEntry(t, 0, 0, 1, 10)
	minter := addr(0x01)
	h.oracle.gating[holding{gateToken, minter}] = big.NewInt(1)
	writes := h.db.writes
	emitted := len(h.events.Events())

	h.oracle.gatingErr = errors.New("rpc unavailable")
	_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: minter, Payment: ether(t, "1"), WhitelistID: uint64Ptr(0)})
	if mint.ReasonCode(err) != mint.ReasonOracleFailure {
		t.Fatalf("expected oracle failure, got %v", err)
	}
	h.oracle.gatingErr = nil
	h.oracle.nativeErr = errors.New("rpc unavailable")
	_, err = h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x02), Payment: ether(t, "1")})
	if mint.ReasonCode(err) != mint.ReasonOracleFailure {
		t.Fatalf("expected oracle failure for native balance, got %v", err)
	}
	if h.db.writes != writes {
		t.Fatalf("failed mint wrote to storage")
	}
	if len(h.events.Events()) != emitted {
		t.Fatalf("failed mint emitted events")
	}
	minted, _ := h.engine.TotalMinted()
	if minted != 0 {
		t.Fatalf("failed mint advanced the token counter")
	}
}

func TestFallbackReferenceWithoutNativeOracle(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.engine.SetNativeOracle(nil)
	h.engine.SetFallbackReference(ether(t, "10"))
	_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "0.02")})
	if !errors.Is(err, mint.ErrInsufficientPayment) {
		t.Fatalf("expected fee from fallback reference, got %v", err)
	}
	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "0.1")}); err != nil {
		t.Fatalf("mint at fallback fee: %v", err)
	}
}

func TestCollectionSupplyAndWalletQuota(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	h.engine.SetQuota(nativecommon.Quota{MaxMintsPerEpoch: 1})
	h.engine.SetCollectionSupply(2)
	metrics := &fakeMetrics{}
	h.engine.SetMetrics(metrics)

	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "0.02")}); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "0.02")})
	if !errors.Is(err, mint.ErrWalletLimit) {
		t.Fatalf("expected ErrWalletLimit, got %v", err)
	}
	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x02), Payment: ether(t, "0.02")}); err != nil {
		t.Fatalf("second wallet mint: %v", err)
	}
	_, err = h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x03), Payment: ether(t, "0.02")})
	if !errors.Is(err, mint.ErrSoldOut) {
		t.Fatalf("expected ErrSoldOut, got %v", err)
	}
	if metrics.mints != 2 || metrics.rejections[mint.ReasonWalletLimit] != 1 || metrics.rejections[mint.ReasonSoldOut] != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestPausedEngine(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	pauses := nativecommon.NewPauses("mint")
	h.engine.SetPauses(pauses)
	_, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "1")})
	if mint.ReasonCode(err) != mint.ReasonPaused {
		t.Fatalf("expected paused, got %v", err)
	}
	pauses.Set("mint", false)
	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "1")}); err != nil {
		t.Fatalf("mint after resume: %v", err)
	}
}

func TestWithdrawReleasesPendingAmounts(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	if err := h.engine.ChangeDonationBps(admin, 5_000); err != nil {
		t.Fatalf("donation bps: %v", err)
	}
	h.addEntry(t, 0, 0, 1, 10)
	holder := addr(0x05)
	h.oracle.gating[holding{gateToken, holder}] = big.NewInt(1)

	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: addr(0x01), Payment: ether(t, "1")}); err != nil {
		t.Fatalf("standard mint: %v", err)
	}
	if _, err := h.engine.Mint(context.Background(), mint.MintRequest{Caller: holder, Payment: ether(t, "1"), WhitelistID: uint64Ptr(0)}); err != nil {
		t.Fatalf("discounted mint: %v", err)
	}
	payout, err := h.engine.Withdraw(admin)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if payout.Team.Cmp(ether(t, "1.4")) != 0 || payout.Donation.Cmp(ether(t, "0.5")) != 0 {
		t.Fatalf("unexpected payout team=%s donation=%s", payout.Team, payout.Donation)
	}
	if len(payout.Royalties) != 1 || payout.Royalties[0].Amount.Cmp(ether(t, "0.1")) != 0 || payout.Royalties[0].Community != community {
		t.Fatalf("unexpected royalties %+v", payout.Royalties)
	}

	bal, _ := h.engine.Bal()
	if bal.Team.Cmp(ether(t, "1.4")) != 0 || bal.PendingTeam().Sign() != 0 {
		t.Fatalf("accrued totals must stay monotone: team=%s pending=%s", bal.Team, bal.PendingTeam())
	}
	again, err := h.engine.Withdraw(admin)
	if err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	if again.Team.Sign() != 0 || again.Donation.Sign() != 0 || len(again.Royalties) != 0 {
		t.Fatalf("second withdraw should release nothing: %+v", again)
	}
	if got := h.events.OfType(events.TypeWithdrawal); len(got) != 2 {
		t.Fatalf("expected 2 withdrawal events, got %d", len(got))
	}
}

func TestInitDoesNotOverwrite(t *testing.T) {
	h := newHarness(t)
	h.setPublic(t)
	if err := h.engine.Init(mint.SaleConfig{PercFee: 1, MinFee: big.NewInt(0)}); err != nil {
		t.Fatalf("init: %v", err)
	}
	settings, _ := h.engine.Settings()
	if !settings.PublicSaleStatus || settings.PercFee != 100 {
		t.Fatalf("init overwrote stored config: %+v", settings)
	}
}
