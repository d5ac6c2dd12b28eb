package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	jwt "github.com/golang-jwt/jwt/v5"

	"communitymint/cmd/internal/secret"
	"communitymint/config"
	"communitymint/indexer"
	"communitymint/observability/logging"
)

const (
	tokenCommand   = "token"
	exportCommand  = "export"
	configCommand  = "config"
	keygenCommand  = "keygen"
	defaultConfig  = "./mintd.toml"
	defaultSecret  = "MINT_JWT_SECRET"
	defaultTTL     = time.Hour
	defaultParquet = "mints.parquet"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout, os.Stderr)
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	case configCommand:
		err = runConfig(os.Args[2:], os.Stdout)
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: mintctl <command> [flags]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  %-8s issue a bearer token for the mint API\n", tokenCommand)
	fmt.Fprintf(w, "  %-8s write indexed mint records to a Parquet file\n", exportCommand)
	fmt.Fprintf(w, "  %-8s create or validate the daemon configuration\n", configCommand)
	fmt.Fprintf(w, "  %-8s generate an admin key and print its address\n", keygenCommand)
}

func runToken(args []string, out, diag io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("sub", "", "Caller address carried as the token subject")
	scopes := fs.String("scope", "mint", "Comma separated scopes (mint, admin)")
	ttl := fs.Duration("ttl", defaultTTL, "Token lifetime")
	issuer := fs.String("iss", "", "Issuer claim")
	audience := fs.String("aud", "", "Audience claim")
	secretEnv := fs.String("secret-env", defaultSecret, "Environment variable holding the HMAC secret")
	verbose := fs.Bool("v", false, "Describe the issued token on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := secret.NewSource(*secretEnv, "JWT signing secret").Get()
	if err != nil {
		return err
	}
	signed, err := issueToken(key, tokenClaims{
		Subject:  *subject,
		Scopes:   splitList(*scopes),
		TTL:      *ttl,
		Issuer:   *issuer,
		Audience: *audience,
	}, time.Now())
	if err != nil {
		return err
	}
	if *verbose {
		slog.New(slog.NewTextHandler(diag, nil)).Info("token issued",
			"secret_env", *secretEnv,
			logging.MaskField("secret", key),
			"sub", *subject,
			"scope", *scopes,
			"ttl", ttl.String(),
		)
	}
	fmt.Fprintln(out, signed)
	return nil
}

type tokenClaims struct {
	Subject  string
	Scopes   []string
	TTL      time.Duration
	Issuer   string
	Audience string
}

func issueToken(key string, claims tokenClaims, now time.Time) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("signing secret required")
	}
	if !common.IsHexAddress(claims.Subject) {
		return "", fmt.Errorf("subject must be a hex address, got %q", claims.Subject)
	}
	if len(claims.Scopes) == 0 {
		return "", fmt.Errorf("at least one scope required")
	}
	if claims.TTL <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	mapClaims := jwt.MapClaims{
		"sub":   common.HexToAddress(claims.Subject).Hex(),
		"scope": strings.Join(claims.Scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(claims.TTL).Unix(),
	}
	if claims.Issuer != "" {
		mapClaims["iss"] = claims.Issuer
	}
	if claims.Audience != "" {
		mapClaims["aud"] = claims.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString([]byte(key))
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the mint config file")
	dsn := fs.String("dsn", "", "Indexer DSN (overrides the config file)")
	target := fs.String("out", defaultParquet, "Output Parquet file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Export deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	source := strings.TrimSpace(*dsn)
	if source == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		source = cfg.IndexerDSN()
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rows, err := exportRecords(ctx, source, *target)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d mint records to %s\n", rows, *target)
	return nil
}

func exportRecords(ctx context.Context, dsn, target string) (int, error) {
	db, err := indexer.Open(dsn)
	if err != nil {
		return 0, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return indexer.New(db, nil).ExportParquet(ctx, target)
}

func runConfig(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(configCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the mint config file; created with defaults when missing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	sale, err := cfg.SaleConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config %s ok\n", *configPath)
	fmt.Fprintf(out, "  listen:     %s\n", cfg.ListenAddress)
	fmt.Fprintf(out, "  data dir:   %s\n", cfg.DataDir)
	fmt.Fprintf(out, "  phase:      %s\n", sale.Phase())
	fmt.Fprintf(out, "  admins:     %d\n", len(cfg.Admins))
	fmt.Fprintf(out, "  whitelist:  %d\n", len(cfg.Whitelist))
	fmt.Fprintf(out, "  indexer:    %s\n", cfg.IndexerDSN())
	return nil
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keyPath := fs.String("out", "", "File to store the hex encoded private key (required)")
	force := fs.Bool("force", false, "Overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := generateKey(*keyPath, *force)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "address %s written to %s\n", addr.Hex(), *keyPath)
	return nil
}

func generateKey(path string, force bool) (common.Address, error) {
	if strings.TrimSpace(path) == "" {
		return common.Address{}, fmt.Errorf("-out is required")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return common.Address{}, fmt.Errorf("%s already exists; pass -force to overwrite", path)
		}
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return common.Address{}, fmt.Errorf("write key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
