package rpc

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"communitymint/gateway/middleware"
	"communitymint/indexer"
	"communitymint/native/mint"
	"communitymint/native/whitelist"
)

// MintService is the engine surface served over HTTP.
type MintService interface {
	Mint(ctx context.Context, req mint.MintRequest) (*mint.MintRecord, error)
	ChangeSaleActive(caller [20]byte, active bool) error
	ChangePublicSaleStatus(caller [20]byte, public bool) error
	ChangeFeeSettings(caller [20]byte, freeMinting bool, percFee uint64, minFee *big.Int) error
	ChangeDonationBps(caller [20]byte, bps uint32) error
	AddWhiteListing(caller [20]byte, id uint64, isSemiFungible bool, contract, communityWallet [20]byte, maxSupply uint64, minBalance *big.Int, percRoyal uint64, semiFungibleID *big.Int) (*whitelist.Entry, error)
	Withdraw(caller [20]byte) (*mint.Payout, error)
	Settings() (mint.SaleConfig, error)
	Bal() (*mint.Balances, error)
	GetListContract(id uint64) (*whitelist.Entry, error)
	ListContracts() ([]*whitelist.Entry, error)
	QueryBalance(ctx context.Context, id uint64, holder [20]byte) (*big.Int, error)
	TotalMinted() (uint64, error)
	Token(id uint64) (*mint.Token, error)
	TokenURI(id uint64) (string, error)
}

// RecordStore serves indexed mint history.
type RecordStore interface {
	Mints(ctx context.Context, filter indexer.MintFilter) ([]indexer.MintRow, error)
	MintByToken(ctx context.Context, tokenID uint64) (*indexer.MintRow, error)
	Events(ctx context.Context, eventType string, limit int) ([]indexer.EventRow, error)
}

// WithdrawalObserver is told how much each withdrawal released per ledger.
type WithdrawalObserver interface {
	ObserveWithdrawal(ledger string, amount *big.Int)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine        MintService
	Records       RecordStore
	Hub           *Hub
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Withdrawals   WithdrawalObserver
	Logger        *slog.Logger
	// TrustCallerField lets requests name their caller in the body when no
	// token subject is present. Only meant for local development.
	TrustCallerField bool
}

// Server exposes the mint engine over a JSON HTTP API.
type Server struct {
	engine      MintService
	records     RecordStore
	hub         *Hub
	withdrawals WithdrawalObserver
	logger      *slog.Logger
	trustCaller bool

	router http.Handler
}

// New constructs the server and its router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:      cfg.Engine,
		records:     cfg.Records,
		hub:         cfg.Hub,
		withdrawals: cfg.Withdrawals,
		logger:      logger.With("component", "rpc"),
		trustCaller: cfg.TrustCallerField,
	}
	s.router = s.buildRouter(cfg)
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware("mintd"))
		r.Method(http.MethodGet, "/metrics", cfg.Observability.MetricsHandler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	auth := func(scopes ...string) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return passthrough
		}
		return cfg.Authenticator.Middleware(scopes...)
	}
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return passthrough
		}
		return cfg.RateLimiter.Middleware(key)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(limit("read"))
			read.Get("/settings", s.handleSettings)
			read.Get("/balances", s.handleBalances)
			read.Get("/whitelist", s.handleListWhitelist)
			read.Get("/whitelist/{id}", s.handleGetWhitelist)
			read.Get("/whitelist/{id}/balance/{holder}", s.handleWhitelistBalance)
			read.Get("/tokens/{id}", s.handleToken)
			read.Get("/records", s.handleRecords)
			read.Get("/records/events", s.handleEventHistory)
			read.Get("/records/{id}", s.handleRecord)
			read.Get("/events", s.handleEventStream)
		})
		api.With(auth(middleware.ScopeMint), limit("mint")).Post("/mint", s.handleMint)
		api.Route("/admin", func(admin chi.Router) {
			admin.Use(auth(middleware.ScopeAdmin), limit("admin"))
			admin.Post("/sale", s.handleSale)
			admin.Post("/fees", s.handleFees)
			admin.Post("/donation", s.handleDonation)
			admin.Post("/whitelist", s.handleAddWhitelist)
			admin.Post("/withdraw", s.handleWithdraw)
		})
	})
	return r
}

func passthrough(next http.Handler) http.Handler { return next }
