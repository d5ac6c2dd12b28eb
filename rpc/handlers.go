package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"communitymint/core/types"
	"communitymint/gateway/middleware"
	"communitymint/indexer"
	"communitymint/native/mint"
	"communitymint/native/whitelist"
)

const maxBodyBytes = 1 << 16

var (
	errMissingCaller = errors.New("rpc: caller identity required")
	errBadAddress    = errors.New("rpc: invalid address")
)

type settingsView struct {
	SaleActive  bool   `json:"saleActive"`
	PublicSale  bool   `json:"publicSale"`
	FreeMinting bool   `json:"freeMinting"`
	PercFee     uint64 `json:"percFee"`
	MinFee      string `json:"minFee"`
	DonationBps uint32 `json:"donationBps"`
	Phase       string `json:"phase"`
	TotalMinted uint64 `json:"totalMinted"`
}

type balancesView struct {
	Team              string `json:"team"`
	Donation          string `json:"donation"`
	TeamWithdrawn     string `json:"teamWithdrawn"`
	DonationWithdrawn string `json:"donationWithdrawn"`
	PendingTeam       string `json:"pendingTeam"`
	PendingDonation   string `json:"pendingDonation"`
}

type entryView struct {
	ID              uint64 `json:"id"`
	SemiFungible    bool   `json:"semiFungible"`
	Contract        string `json:"contract"`
	CommunityWallet string `json:"communityWallet"`
	MaxSupply       uint64 `json:"maxSupply"`
	MinBalance      string `json:"minBalance"`
	PercRoyal       uint64 `json:"percRoyal"`
	Tracker         uint64 `json:"tracker"`
	Balance         string `json:"balance"`
	Withdrawn       string `json:"withdrawn"`
	SemiFungibleID  string `json:"semiFungibleId,omitempty"`
}

type mintView struct {
	TokenID     uint64  `json:"tokenId"`
	Filename    string  `json:"filename"`
	ContentID   string  `json:"contentId"`
	URI         string  `json:"uri"`
	Minter      string  `json:"minter"`
	Phase       string  `json:"phase"`
	Paid        string  `json:"paid"`
	Fee         string  `json:"fee"`
	Team        string  `json:"team"`
	Donation    string  `json:"donation"`
	Royalty     string  `json:"royalty"`
	WhitelistID *uint64 `json:"whitelistId,omitempty"`
	Length      string  `json:"length"`
}

type tokenView struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Length    string `json:"length"`
	ContentID string `json:"contentId"`
	URI       string `json:"uri"`
	MintedAt  string `json:"mintedAt"`
}

type royaltyView struct {
	WhitelistID uint64 `json:"whitelistId"`
	Community   string `json:"community"`
	Amount      string `json:"amount"`
}

type payoutView struct {
	Team      string        `json:"team"`
	Donation  string        `json:"donation"`
	Royalties []royaltyView `json:"royalties"`
}

type eventView struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type mintRequest struct {
	Caller      string  `json:"caller,omitempty"`
	Payment     string  `json:"payment"`
	WhitelistID *uint64 `json:"whitelistId,omitempty"`
	Length      string  `json:"length,omitempty"`
}

type saleRequest struct {
	Caller string `json:"caller,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Public *bool  `json:"public,omitempty"`
}

type feesRequest struct {
	Caller      string `json:"caller,omitempty"`
	FreeMinting bool   `json:"freeMinting"`
	PercFee     uint64 `json:"percFee"`
	MinFee      string `json:"minFee"`
}

type donationRequest struct {
	Caller string `json:"caller,omitempty"`
	Bps    uint32 `json:"bps"`
}

type whitelistRequest struct {
	Caller          string `json:"caller,omitempty"`
	ID              uint64 `json:"id"`
	SemiFungible    bool   `json:"semiFungible"`
	Contract        string `json:"contract"`
	CommunityWallet string `json:"communityWallet"`
	MaxSupply       uint64 `json:"maxSupply"`
	MinBalance      string `json:"minBalance"`
	PercRoyal       uint64 `json:"percRoyal"`
	SemiFungibleID  string `json:"semiFungibleId"`
}

type callerRequest struct {
	Caller string `json:"caller,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Settings()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	minted, err := s.engine.TotalMinted()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView{
		SaleActive:  cfg.SaleActive,
		PublicSale:  cfg.PublicSaleStatus,
		FreeMinting: cfg.FreeMinting,
		PercFee:     cfg.PercFee,
		MinFee:      amount(cfg.MinFee),
		DonationBps: cfg.DonationBps,
		Phase:       cfg.Phase().String(),
		TotalMinted: minted,
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	bal, err := s.engine.Bal()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balancesView{
		Team:              amount(bal.Team),
		Donation:          amount(bal.Donation),
		TeamWithdrawn:     amount(bal.TeamWithdrawn),
		DonationWithdrawn: amount(bal.DonationWithdrawn),
		PendingTeam:       amount(bal.PendingTeam()),
		PendingDonation:   amount(bal.PendingDonation()),
	})
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.ListContracts()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, newEntryView(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	entry, err := s.engine.GetListContract(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(entry))
}

func (s *Server) handleWhitelistBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	holder, err := parseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, err.Error())
		return
	}
	held, err := s.engine.QueryBalance(r.Context(), id, holder)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"holder":  common.Address(holder).Hex(),
		"balance": amount(held),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	token, err := s.engine.Token(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	uri, err := s.engine.TokenURI(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenView{
		ID:        token.ID,
		Owner:     common.Address(token.Owner).Hex(),
		Length:    token.Length,
		ContentID: token.ContentID,
		URI:       uri,
		MintedAt:  time.Unix(int64(token.MintedAt), 0).UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeReason(w, mint.ReasonInternal, "indexer not configured")
		return
	}
	query := r.URL.Query()
	filter := indexer.MintFilter{Minter: query.Get("minter")}
	if raw := query.Get("whitelistId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeReason(w, mint.ReasonInvalidParameters, "invalid whitelistId")
			return
		}
		filter.WhitelistID = &id
	}
	var err error
	if filter.Limit, err = intQuery(query.Get("limit")); err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "invalid limit")
		return
	}
	if filter.Offset, err = intQuery(query.Get("offset")); err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "invalid offset")
		return
	}
	rows, err := s.records.Mints(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeReason(w, mint.ReasonInternal, "indexer not configured")
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	row, err := s.records.MintByToken(r.Context(), id)
	if errors.Is(err, indexer.ErrNotFound) {
		writeReason(w, mint.ReasonTokenNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeReason(w, mint.ReasonInternal, "indexer not configured")
		return
	}
	limit, err := intQuery(r.URL.Query().Get("limit"))
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "invalid limit")
		return
	}
	rows, err := s.records.Events(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]eventView, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
			s.writeEngineError(w, r, fmt.Errorf("decode event %s: %w", row.ID, err))
			return
		}
		out = append(out, eventView{ID: row.ID.String(), Type: row.Type, Attributes: attrs, CreatedAt: row.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		writeReason(w, mint.ReasonUnauthorized, err.Error())
		return
	}
	payment, err := types.ParseAmount(req.Payment)
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, err.Error())
		return
	}
	record, err := s.engine.Mint(r.Context(), mint.MintRequest{
		Caller:      caller,
		Payment:     payment,
		WhitelistID: req.WhitelistID,
		Length:      strings.TrimSpace(req.Length),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMintView(record))
}

func (s *Server) handleSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		writeReason(w, mint.ReasonUnauthorized, err.Error())
		return
	}
	if req.Active == nil && req.Public == nil {
		writeReason(w, mint.ReasonInvalidParameters, "active or public required")
		return
	}
	if req.Active != nil {
		if err := s.engine.ChangeSaleActive(caller, *req.Active); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
	}
	if req.Public != nil {
		if err := s.engine.ChangePublicSaleStatus(caller, *req.Public); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
	}
	s.handleSettings(w, r)
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		writeReason(w, mint.ReasonUnauthorized, err.Error())
		return
	}
	minFee, err := types.ParseAmount(req.MinFee)
	if err != nil {
		writeReason(w, mint.ReasonInvalidConfig, err.Error())
		return
	}
	if err := s.engine.ChangeFeeSettings(caller, req.FreeMinting, req.PercFee, minFee); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleSettings(w, r)
}

func (s *Server) handleDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		writeReason(w, mint.ReasonUnauthorized, err.Error())
		return
	}
	if err := s.engine.ChangeDonationBps(caller, req.Bps); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleSettings(w, r)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		writeReason(w, mint.ReasonUnauthorized, err.Error())
		return
	}
	contract, err := parseAddress(req.Contract)
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "contract: "+err.Error())
		return
	}
	wallet, err := parseAddress(req.CommunityWallet)
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "communityWallet: "+err.Error())
		return
	}
	minBalance, err := types.ParseAmount(req.MinBalance)
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "minBalance: "+err.Error())
		return
	}
	subID, err := types.ParseAmount(req.SemiFungibleID)
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "semiFungibleId: "+err.Error())
		return
	}
	entry, err := s.engine.AddWhiteListing(caller, req.ID, req.SemiFungible, contract, wallet, req.MaxSupply, minBalance, req.PercRoyal, subID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntryView(entry))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		writeReason(w, mint.ReasonUnauthorized, err.Error())
		return
	}
	payout, err := s.engine.Withdraw(caller)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if s.withdrawals != nil {
		s.withdrawals.ObserveWithdrawal("team", payout.Team)
		s.withdrawals.ObserveWithdrawal("donation", payout.Donation)
		s.withdrawals.ObserveWithdrawal("royalty", payout.RoyaltyTotal())
	}
	view := payoutView{Team: amount(payout.Team), Donation: amount(payout.Donation), Royalties: []royaltyView{}}
	for _, royalty := range payout.Royalties {
		view.Royalties = append(view.Royalties, royaltyView{
			WhitelistID: royalty.WhitelistID,
			Community:   common.Address(royalty.Community).Hex(),
			Amount:      amount(royalty.Amount),
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// caller resolves the acting address from the token subject, falling back to
// the body field when the server trusts it.
func (s *Server) caller(r *http.Request, field string) ([20]byte, error) {
	if subject, ok := middleware.Subject(r.Context()); ok {
		return parseAddress(subject)
	}
	if s.trustCaller && strings.TrimSpace(field) != "" {
		return parseAddress(field)
	}
	return [20]byte{}, errMissingCaller
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	value, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeReason(w, mint.ReasonInvalidParameters, "invalid "+name)
		return 0, false
	}
	return value, true
}

func intQuery(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return value, nil
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("%w: %q", errBadAddress, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newEntryView(entry *whitelist.Entry) entryView {
	view := entryView{
		ID:              entry.ID,
		SemiFungible:    entry.IsSemiFungible,
		Contract:        common.Address(entry.Contract).Hex(),
		CommunityWallet: common.Address(entry.CommunityWallet).Hex(),
		MaxSupply:       entry.MaxSupply,
		MinBalance:      amount(entry.MinBalance),
		PercRoyal:       entry.PercRoyal,
		Tracker:         entry.Tracker,
		Balance:         amount(entry.Balance),
		Withdrawn:       amount(entry.Withdrawn),
	}
	if entry.IsSemiFungible {
		view.SemiFungibleID = amount(entry.SemiFungibleID)
	}
	return view
}

func newMintView(record *mint.MintRecord) mintView {
	return mintView{
		TokenID:     record.TokenID,
		Filename:    record.Filename,
		ContentID:   record.ContentID,
		URI:         record.URI,
		Minter:      common.Address(record.Minter).Hex(),
		Phase:       record.Phase.String(),
		Paid:        amount(record.Paid),
		Fee:         amount(record.Fee),
		Team:        amount(record.Team),
		Donation:    amount(record.Donation),
		Royalty:     amount(record.Royalty),
		WhitelistID: record.WhitelistID,
		Length:      record.Length,
	}
}
