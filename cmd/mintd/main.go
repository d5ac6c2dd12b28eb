package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"communitymint/config"
	gwconfig "communitymint/gateway/config"
	"communitymint/observability/logging"
	telemetry "communitymint/observability/otel"
)

func main() {
	var cfgPath string
	var gatewayPath string
	flag.StringVar(&cfgPath, "config", "./mintd.toml", "path to mint configuration")
	flag.StringVar(&gatewayPath, "gateway-config", "", "path to HTTP gateway configuration (overrides GatewayConfig)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	env := cfg.Logging.Environment
	if override := strings.TrimSpace(os.Getenv("MINT_ENV")); override != "" {
		env = override
	}

	slogger, logCloser, err := logging.SetupWithFile("mintd", env, logging.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}
	defer logCloser.Close()
	logger := log.New(os.Stdout, "mintd ", log.LstdFlags|log.Lmsgprefix)

	if gatewayPath == "" {
		gatewayPath = resolvePath(filepath.Dir(cfgPath), cfg.GatewayConfig)
	}
	gw, err := gwconfig.Load(gatewayPath)
	if err != nil {
		slogger.Error("load gateway config", "error", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv(telemetry.Config{
		ServiceName: gw.Observability.ServiceName,
		Environment: env,
		Endpoint:    gw.Observability.OTLPEndpoint,
		Insecure:    gw.Observability.OTLPInsecure,
		Traces:      gw.Observability.Tracing,
		Metrics:     gw.Observability.Tracing && gw.Observability.Metrics,
	}))
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	svc, err := bootstrap(cfg, gw, bootstrapOptions{env: env, logger: slogger, std: logger})
	if err != nil {
		slogger.Error("bootstrap", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slogger.Warn("close stores", "error", err)
		}
	}()

	tlsConfig, err := buildTLSConfig(filepath.Dir(gatewayPath), gw.Security)
	if err != nil {
		slogger.Error("configure TLS", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      svc.handler,
		ReadTimeout:  gw.ReadTimeout,
		WriteTimeout: gw.WriteTimeout,
		IdleTimeout:  gw.IdleTimeout,
		TLSConfig:    tlsConfig,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		slogger.Error("listen", "error", err)
		os.Exit(1)
	}
	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
		listener = tls.NewListener(listener, tlsConfig)
	}
	serveErr := make(chan error, 1)
	go func() {
		slogger.Info("listening", "address", fmt.Sprintf("%s://%s", scheme, listener.Addr()), "env", env)
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("serve", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Warn("graceful shutdown failed", "error", err)
	}
}

func isDev(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "dev")
}

func buildTLSConfig(baseDir string, sec gwconfig.SecurityConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, sec.TLSCertFile)
	keyPath := resolvePath(baseDir, sec.TLSKeyFile)
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}
