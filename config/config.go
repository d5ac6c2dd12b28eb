package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the mint daemon settings. Amounts are wei strings in decimal
// or 0x form so they survive TOML's 64-bit integers.
type Config struct {
	ListenAddress     string         `toml:"ListenAddress"`
	GatewayConfig     string         `toml:"GatewayConfig"`
	DataDir           string         `toml:"DataDir"`
	Admins            []string       `toml:"Admins"`
	StartToken        uint64         `toml:"StartToken"`
	CollectionSupply  uint64         `toml:"CollectionSupply"`
	FallbackReference string         `toml:"FallbackReference"`
	Sale              Sale           `toml:"sale"`
	Quota             Quota          `toml:"quota"`
	Pauses            Pauses         `toml:"pauses"`
	Content           []ContentBand  `toml:"content"`
	Length            []LengthTier   `toml:"length"`
	Oracle            Oracle         `toml:"oracle"`
	Indexer           Indexer        `toml:"indexer"`
	Logging           Logging        `toml:"logging"`
	Whitelist         []WhitelistSet `toml:"whitelist"`
}

// Sale seeds the sale configuration the first time the store is opened.
type Sale struct {
	SaleActive  bool   `toml:"SaleActive"`
	PublicSale  bool   `toml:"PublicSale"`
	FreeMinting bool   `toml:"FreeMinting"`
	PercFee     uint64 `toml:"PercFee"`
	MinFeeWei   string `toml:"MinFeeWei"`
	DonationBps uint32 `toml:"DonationBps"`
}

// Quota limits mints per wallet. Zero MaxMintsPerEpoch disables the limit.
type Quota struct {
	MaxMintsPerEpoch uint32 `toml:"MaxMintsPerEpoch"`
	EpochSeconds     uint32 `toml:"EpochSeconds"`
}

// Pauses toggles individual modules at start-up.
type Pauses struct {
	Mint      bool `toml:"Mint"`
	Whitelist bool `toml:"Whitelist"`
}

// ContentBand maps token ids up to UpTo onto a content identifier. The last
// band is unbounded.
type ContentBand struct {
	UpTo      uint64 `toml:"UpTo"`
	ContentID string `toml:"ContentID"`
}

// LengthTier assigns Length to minters whose reference balance is at least
// MinBalanceWei.
type LengthTier struct {
	MinBalanceWei string `toml:"MinBalanceWei"`
	Length        string `toml:"Length"`
}

// Oracle selects the balance source. An empty RPCURL uses the in-memory book
// seeded from Balances.
type Oracle struct {
	RPCURL         string    `toml:"RPCURL"`
	TimeoutSeconds int       `toml:"TimeoutSeconds"`
	NativeBalances bool      `toml:"NativeBalances"`
	Balances       []Balance `toml:"balances"`
}

// Balance is one [[oracle.balances]] holding. An empty Token is the native
// coin; a non-empty SemiFungibleID selects one kind inside Token.
type Balance struct {
	Holder         string `toml:"Holder"`
	Token          string `toml:"Token"`
	SemiFungibleID string `toml:"SemiFungibleID"`
	AmountWei      string `toml:"AmountWei"`
}

// Indexer configures the durable mint record store.
type Indexer struct {
	DSN string `toml:"DSN"`
}

// Logging configures the service logger.
type Logging struct {
	Environment string `toml:"Environment"`
	File        string `toml:"File"`
	MaxSizeMB   int    `toml:"MaxSizeMB"`
	MaxBackups  int    `toml:"MaxBackups"`
	MaxAgeDays  int    `toml:"MaxAgeDays"`
	Compress    bool   `toml:"Compress"`
}

// WhitelistSet is a community collection registered at start-up when the
// registry does not yet hold an entry with the same index.
type WhitelistSet struct {
	SemiFungible    bool   `toml:"SemiFungible"`
	Contract        string `toml:"Contract"`
	CommunityWallet string `toml:"CommunityWallet"`
	MaxSupply       uint64 `toml:"MaxSupply"`
	MinBalanceWei   string `toml:"MinBalanceWei"`
	PercRoyal       uint64 `toml:"PercRoyal"`
	SemiFungibleID  string `toml:"SemiFungibleID"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by the defaults, which are written back to disk.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the launch configuration: a private sale charging at least
// 0.02 ether with a 1/100 balance divisor.
func Default() *Config {
	return &Config{
		ListenAddress:     ":8545",
		DataDir:           "./mint-data",
		Admins:            []string{},
		FallbackReference: "0",
		Sale: Sale{
			SaleActive: true,
			PercFee:    100,
			MinFeeWei:  "20000000000000000",
		},
		Oracle:  Oracle{TimeoutSeconds: 5},
		Logging: Logging{Environment: "dev", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// OracleTimeout returns the per-lookup deadline.
func (c *Config) OracleTimeout() time.Duration {
	if c.Oracle.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// IndexerDSN returns the configured DSN or a sqlite file under DataDir.
func (c *Config) IndexerDSN() string {
	if dsn := strings.TrimSpace(c.Indexer.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "indexer.db")
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.Admins == nil {
		c.Admins = []string{}
	}
	for i := range c.Admins {
		c.Admins[i] = strings.TrimSpace(c.Admins[i])
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
