package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"communitymint/core/events"
	"communitymint/core/state"
	"communitymint/core/types"
	"communitymint/gateway/middleware"
	"communitymint/indexer"
	"communitymint/native/mint"
	"communitymint/native/whitelist"
	"communitymint/oracle"
	"communitymint/storage"
)

const testSecret = "rpc-test-secret"

var (
	adminAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	minterAddr = common.HexToAddress("0x0000000000000000000000000000000000000042")
	gateAddr   = common.HexToAddress("0x0000000000000000000000000000000000000010")
	walletAddr = common.HexToAddress("0x0000000000000000000000000000000000000020")
)

type fixture struct {
	server  *httptest.Server
	handler http.Handler
	book    *oracle.Book
	hub     *Hub
	records *indexer.Indexer
}

type recordedWithdrawals map[string]string

func (r recordedWithdrawals) ObserveWithdrawal(ledger string, amount *big.Int) {
	r[ledger] = amount.String()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newLoggedFixture(t, nil)
}

func newLoggedFixture(t *testing.T, logger *slog.Logger) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	require.NoError(t, manager.SetRole(whitelist.RoleAdmin, adminAddr.Bytes()))

	book := oracle.NewBook()
	registry := whitelist.NewRegistry(manager, book)
	engine := mint.NewEngine(manager, registry)
	engine.SetNativeOracle(book)
	require.NoError(t, engine.Init(mint.DefaultSaleConfig()))

	db, err := indexer.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	records := indexer.New(db, nil)
	hub := NewHub()
	engine.SetEmitter(events.Multi{records, hub})

	srv := New(Config{
		Engine:  engine,
		Records: records,
		Hub:     hub,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testSecret,
		}, nil),
		Withdrawals: recordedWithdrawals{},
		Logger:      logger,
	})
	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)
	return &fixture{server: httpServer, handler: srv.Handler(), book: book, hub: hub, records: records}
}

func token(t *testing.T, subject common.Address, scopes ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject.Hex(),
		"scope": strings.Join(scopes, " "),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	decoded := map[string]interface{}{}
	if strings.HasPrefix(res.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(strings.TrimSpace(res.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &decoded))
	}
	return res, decoded
}

func ether(t *testing.T, raw string) string {
	t.Helper()
	return mustEther(t, raw).String()
}

func mustEther(t *testing.T, raw string) *big.Int {
	t.Helper()
	v, err := types.ParseEther(raw)
	require.NoError(t, err)
	return v
}

func TestPublicSaleMintFlow(t *testing.T) {
	f := newFixture(t)
	adminToken := token(t, adminAddr, middleware.ScopeAdmin)
	minterToken := token(t, minterAddr, middleware.ScopeMint)

	res, body := f.do(t, http.MethodPost, "/v1/admin/sale", adminToken, map[string]bool{"public": true})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "public", body["phase"])

	res, body = f.do(t, http.MethodPost, "/v1/mint", minterToken, map[string]string{"payment": ether(t, "0.019")})
	require.Equal(t, http.StatusPaymentRequired, res.Code)
	require.Equal(t, mint.ReasonInsufficientPayment, body["error"])

	res, body = f.do(t, http.MethodPost, "/v1/mint", minterToken, map[string]string{"payment": ether(t, "0.02")})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, float64(0), body["tokenId"])
	require.Equal(t, "1_0.json", body["filename"])
	require.Equal(t, minterAddr.Hex(), body["minter"])

	res, body = f.do(t, http.MethodGet, "/v1/tokens/0", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, minterAddr.Hex(), body["owner"])
	require.True(t, strings.HasSuffix(body["uri"].(string), "/1_0.json"))

	res, body = f.do(t, http.MethodGet, "/v1/balances", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, ether(t, "0.02"), body["team"])

	res, body = f.do(t, http.MethodGet, "/v1/records/0", "", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, ether(t, "0.02"), body["Paid"])

	res, _ = f.do(t, http.MethodGet, "/v1/records/9", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)

	res, _ = f.do(t, http.MethodGet, "/v1/tokens/9", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestRejectionLogMasksSubject(t *testing.T) {
	var buf bytes.Buffer
	f := newLoggedFixture(t, slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	minterToken := token(t, minterAddr, middleware.ScopeMint)
	res, _ := f.do(t, http.MethodPost, "/v1/admin/sale", token(t, adminAddr, middleware.ScopeAdmin), map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, res.Code)

	res, body := f.do(t, http.MethodPost, "/v1/mint", minterToken, map[string]string{"payment": ether(t, "1")})
	require.Equal(t, http.StatusLocked, res.Code)
	require.Equal(t, mint.ReasonSaleNotActive, body["error"])

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "rpc: request rejected", line["msg"])
	require.Equal(t, mint.ReasonSaleNotActive, line["reason"])
	require.Equal(t, "[REDACTED]", line["subject"])
	require.NotContains(t, buf.String(), minterAddr.Hex())
	require.NotContains(t, buf.String(), minterToken)
}

func TestClosedSaleReportsLock(t *testing.T) {
	f := newFixture(t)
	res, _ := f.do(t, http.MethodPost, "/v1/admin/sale", token(t, adminAddr, middleware.ScopeAdmin), map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, res.Code)

	res, body := f.do(t, http.MethodPost, "/v1/mint", token(t, minterAddr, middleware.ScopeMint), map[string]string{"payment": ether(t, "1")})
	require.Equal(t, http.StatusLocked, res.Code)
	require.Equal(t, mint.ReasonSaleNotActive, body["error"])
}

func TestAdminRoutesRequireScopeAndRole(t *testing.T) {
	f := newFixture(t)
	res, _ := f.do(t, http.MethodPost, "/v1/admin/sale", "", map[string]bool{"public": true})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res, _ = f.do(t, http.MethodPost, "/v1/admin/sale", token(t, adminAddr, middleware.ScopeMint), map[string]bool{"public": true})
	require.Equal(t, http.StatusForbidden, res.Code)

	res, body := f.do(t, http.MethodPost, "/v1/admin/sale", token(t, minterAddr, middleware.ScopeAdmin), map[string]bool{"public": true})
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, mint.ReasonUnauthorized, body["error"])

	res, body = f.do(t, http.MethodPost, "/v1/admin/fees", token(t, adminAddr, middleware.ScopeAdmin), map[string]interface{}{"percFee": 0, "minFee": "1"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, mint.ReasonInvalidConfig, body["error"])

	res, body = f.do(t, http.MethodPost, "/v1/admin/donation", token(t, adminAddr, middleware.ScopeAdmin), map[string]uint32{"bps": 500})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, float64(500), body["donationBps"])

	res, body = f.do(t, http.MethodPost, "/v1/admin/sale", token(t, adminAddr, middleware.ScopeAdmin), map[string]string{"bogus": "x"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, mint.ReasonInvalidParameters, body["error"])
}

func TestWhitelistRoyaltyAndWithdraw(t *testing.T) {
	f := newFixture(t)
	adminToken := token(t, adminAddr, middleware.ScopeAdmin)
	f.book.SetFungible(gateAddr, minterAddr, mustEther(t, "5"))

	res, body := f.do(t, http.MethodPost, "/v1/admin/whitelist", adminToken, map[string]interface{}{
		"id":              0,
		"contract":        gateAddr.Hex(),
		"communityWallet": walletAddr.Hex(),
		"maxSupply":       1,
		"minBalance":      "1",
		"percRoyal":       10,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	require.Equal(t, gateAddr.Hex(), body["contract"])

	res, body = f.do(t, http.MethodPost, "/v1/admin/whitelist", adminToken, map[string]interface{}{
		"id":              5,
		"contract":        gateAddr.Hex(),
		"communityWallet": walletAddr.Hex(),
	})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, mint.ReasonIndexMismatch, body["error"])

	res, body = f.do(t, http.MethodGet, "/v1/whitelist/0/balance/"+minterAddr.Hex(), "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, ether(t, "5"), body["balance"])

	res, body = f.do(t, http.MethodGet, "/v1/whitelist/3", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, mint.ReasonNotFound, body["error"])

	minterToken := token(t, minterAddr, middleware.ScopeMint)
	res, body = f.do(t, http.MethodPost, "/v1/mint", minterToken, map[string]interface{}{"payment": ether(t, "1"), "whitelistId": 0})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, ether(t, "0.1"), body["royalty"])
	require.Equal(t, ether(t, "0.9"), body["team"])

	res, body = f.do(t, http.MethodPost, "/v1/mint", minterToken, map[string]interface{}{"payment": ether(t, "1"), "whitelistId": 0})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, mint.ReasonCapacityExceeded, body["error"])

	res, body = f.do(t, http.MethodPost, "/v1/admin/withdraw", adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, ether(t, "0.9"), body["team"])
	royalties := body["royalties"].([]interface{})
	require.Len(t, royalties, 1)
	require.Equal(t, ether(t, "0.1"), royalties[0].(map[string]interface{})["amount"])

	res, body = f.do(t, http.MethodGet, "/v1/balances", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, ether(t, "0.9"), body["team"])
	require.Equal(t, "0", body["pendingTeam"])
}

func TestRecordsListing(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/admin/sale", token(t, adminAddr, middleware.ScopeAdmin), map[string]bool{"public": true})
	minterToken := token(t, minterAddr, middleware.ScopeMint)
	for i := 0; i < 2; i++ {
		res, _ := f.do(t, http.MethodPost, "/v1/mint", minterToken, map[string]string{"payment": ether(t, "0.02")})
		require.Equal(t, http.StatusOK, res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/records?minter="+minterAddr.Hex(), nil)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	var rows []indexer.MintRow
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, uint64(1), rows[1].TokenID)

	req = httptest.NewRequest(http.MethodGet, "/v1/records/events?type="+events.TypePermanentURI, nil)
	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	var history []eventView
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &history))
	require.Len(t, history, 2)

	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/records?limit=x", nil))
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/admin/sale", token(t, adminAddr, middleware.ScopeAdmin), map[string]bool{"public": true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/events?type=" + events.TypePermanentURI
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, _ := f.do(t, http.MethodPost, "/v1/mint", token(t, minterAddr, middleware.ScopeMint), map[string]string{"payment": ether(t, "0.02")})
	require.Equal(t, http.StatusOK, res.Code)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypePermanentURI, evt.Type)
	require.Equal(t, "1_0.json", evt.Attributes["value"])
	require.Equal(t, "0", evt.Attributes["id"])
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	res, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "ok", res.Body.String())
}

func TestStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusLocked, statusFor(mint.ReasonSaleNotActive))
	require.Equal(t, http.StatusInternalServerError, statusFor("SOMETHING_ELSE"))
}
