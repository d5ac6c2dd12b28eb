package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"communitymint/config"
	"communitymint/core/events"
	"communitymint/core/state"
	gwconfig "communitymint/gateway/config"
	"communitymint/gateway/middleware"
	"communitymint/indexer"
	"communitymint/native/mint"
	"communitymint/native/whitelist"
	"communitymint/observability/metrics"
	"communitymint/oracle"
	"communitymint/rpc"
	"communitymint/storage"
)

// service bundles the components assembled from the configuration.
type service struct {
	db       storage.Database
	engine   *mint.Engine
	indexer  *indexer.Indexer
	hub      *rpc.Hub
	registry *prometheus.Registry
	handler  http.Handler
	closers  []func() error
}

// Close releases the stores in reverse order of creation.
func (s *service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

type bootstrapOptions struct {
	env    string
	logger *slog.Logger
	std    *log.Logger
	// db overrides the LevelDB store opened under DataDir.
	db storage.Database
	// source overrides the oracle selected by the configuration.
	source oracle.Source
}

func bootstrap(cfg *config.Config, gw gwconfig.Config, opts bootstrapOptions) (_ *service, err error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := &service{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()
	svc.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db := opts.db
	if db == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
		db = ldb
		svc.closers = append(svc.closers, func() error { ldb.Close(); return nil })
	}
	svc.db = db
	manager := state.NewManager(db)

	admins, err := cfg.AdminAddresses()
	if err != nil {
		return nil, err
	}
	for _, admin := range admins {
		if err := manager.SetRole(whitelist.RoleAdmin, admin[:]); err != nil {
			return nil, fmt.Errorf("grant admin role: %w", err)
		}
	}

	mintMetrics := metrics.NewMintMetrics(svc.registry)
	source, err := selectOracle(cfg, opts)
	if err != nil {
		return nil, err
	}
	source = oracle.Instrument(source, mintMetrics)

	pauses := cfg.PauseView()
	registry := whitelist.NewRegistry(manager, source)

	engine := mint.NewEngine(manager, registry)
	engine.SetPauses(pauses)
	engine.SetMetrics(mintMetrics)
	resolver, err := cfg.URIResolver()
	if err != nil {
		return nil, err
	}
	engine.SetResolver(resolver)
	tiers, err := cfg.LengthTiers()
	if err != nil {
		return nil, err
	}
	engine.SetLengthTiers(tiers)
	engine.SetQuota(cfg.QuotaRule())
	engine.SetStartToken(cfg.StartToken)
	engine.SetCollectionSupply(cfg.CollectionSupply)
	fallback, err := cfg.FallbackAmount()
	if err != nil {
		return nil, err
	}
	engine.SetFallbackReference(fallback)
	if cfg.Oracle.NativeBalances {
		engine.SetNativeOracle(source)
	}
	sale, err := cfg.SaleConfig()
	if err != nil {
		return nil, err
	}
	if err := engine.Init(sale); err != nil {
		return nil, fmt.Errorf("init sale: %w", err)
	}
	// Configured entries are seeded before the registry pause applies.
	if err := seedWhitelist(cfg, engine, admins); err != nil {
		return nil, err
	}
	registry.SetPauses(pauses)
	svc.engine = engine

	gdb, err := indexer.Open(cfg.IndexerDSN())
	if err != nil {
		return nil, err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		svc.closers = append(svc.closers, sqlDB.Close)
	}
	svc.indexer = indexer.New(gdb, logger.With("component", "indexer"))
	svc.indexer.SetFailureObserver(mintMetrics)
	svc.hub = rpc.NewHub()
	engine.SetEmitter(events.Multi{svc.indexer, svc.hub})

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   gw.Observability.ServiceName,
		MetricsPrefix: gw.Observability.MetricsPrefix,
		LogRequests:   gw.Observability.LogRequests,
		Enabled:       gw.Observability.Metrics || gw.Observability.Tracing,
	}, opts.std, svc.registry)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        gw.Auth.Enabled,
		HMACSecret:     gw.Auth.HMACSecret,
		Issuer:         gw.Auth.Issuer,
		Audience:       gw.Auth.Audience,
		ScopeClaim:     gw.Auth.ScopeClaim,
		OptionalPaths:  gw.Auth.OptionalPaths,
		AllowAnonymous: gw.Auth.AllowAnonymous,
		ClockSkew:      gw.Auth.ClockSkew,
	}, opts.std)

	rateLimits := make(map[string]middleware.RateLimit, len(gw.RateLimits))
	for _, entry := range gw.RateLimits {
		rateLimits[entry.ID] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			Burst:             entry.Burst,
		}
	}
	limiter := middleware.NewRateLimiter(rateLimits, opts.std)
	limiter.OnThrottle(obs.RecordThrottle)

	server := rpc.New(rpc.Config{
		Engine:        engine,
		Records:       svc.indexer,
		Hub:           svc.hub,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		},
		Withdrawals:      mintMetrics,
		Logger:           logger,
		TrustCallerField: !gw.Auth.Enabled && isDev(opts.env),
	})
	svc.handler = server.Handler()
	if gw.Observability.Tracing {
		svc.handler = otelhttp.NewHandler(svc.handler, "mintd")
	}
	return svc, nil
}

func selectOracle(cfg *config.Config, opts bootstrapOptions) (oracle.Source, error) {
	if opts.source != nil {
		return opts.source, nil
	}
	if cfg.Oracle.RPCURL == "" {
		holdings, err := cfg.OracleHoldings()
		if err != nil {
			return nil, err
		}
		book := oracle.NewBook()
		book.Load(holdings)
		return book, nil
	}
	target, err := url.Parse(cfg.Oracle.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("parse oracle RPCURL: %w", err)
	}
	secured, _, err := gwconfig.EnforceSecureScheme(opts.env, target, false)
	if err != nil {
		return nil, fmt.Errorf("oracle RPCURL: %w", err)
	}
	client, err := oracle.DialEVMClient(secured.String())
	if err != nil {
		return nil, err
	}
	return oracle.NewEVM(client, cfg.OracleTimeout()), nil
}

// seedWhitelist registers configured collections the registry does not hold
// yet. Entries are append-only so only the tail past the current count is new.
func seedWhitelist(cfg *config.Config, engine *mint.Engine, admins [][20]byte) error {
	params, err := cfg.WhitelistParams()
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	count, err := engine.Registry().Count()
	if err != nil {
		return err
	}
	if count >= uint64(len(params)) {
		return nil
	}
	if len(admins) == 0 {
		return fmt.Errorf("whitelist seeding requires at least one admin")
	}
	for id := count; id < uint64(len(params)); id++ {
		p := params[id]
		if _, err := engine.AddWhiteListing(admins[0], id, p.IsSemiFungible, p.Contract, p.CommunityWallet, p.MaxSupply, p.MinBalance, p.PercRoyal, p.SemiFungibleID); err != nil {
			return fmt.Errorf("seed whitelist %d: %w", id, err)
		}
	}
	return nil
}
