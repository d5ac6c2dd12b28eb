package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"communitymint/native/mint"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8545", cfg.ListenAddress)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Sale, again.Sale)

	sale, err := again.SaleConfig()
	require.NoError(t, err)
	require.Equal(t, mint.DefaultSaleConfig().MinFee.String(), sale.MinFee.String())
	require.Equal(t, mint.PhasePrivateSale, sale.Phase())
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/mint"
Admins = ["0x00000000000000000000000000000000000000aa"]
StartToken = 1
CollectionSupply = 10000
FallbackReference = "0x0de0b6b3a7640000"

[sale]
SaleActive = true
PublicSale = true
PercFee = 50
MinFeeWei = "1000"
DonationBps = 2500

[quota]
MaxMintsPerEpoch = 3
EpochSeconds = 86400

[[content]]
UpTo = 10
ContentID = "cid-a"

[[content]]
ContentID = "cid-b"

[[length]]
MinBalanceWei = "1000000000000000000"
Length = "2"

[[whitelist]]
Contract = "0x0000000000000000000000000000000000000001"
CommunityWallet = "0x0000000000000000000000000000000000000002"
MaxSupply = 5
MinBalanceWei = "1"
PercRoyal = 10

[oracle]
RPCURL = "http://localhost:8546"
TimeoutSeconds = 2

[[oracle.balances]]
Holder = "0x00000000000000000000000000000000000000aa"
AmountWei = "0x10"

[[oracle.balances]]
Holder = "0x00000000000000000000000000000000000000aa"
Token = "0x0000000000000000000000000000000000000001"
SemiFungibleID = "4"
AmountWei = "9"

[indexer]
DSN = "postgres://mint@localhost/mint"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	admins, err := cfg.AdminAddresses()
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, byte(0xaa), admins[0][19])

	fallback, err := cfg.FallbackAmount()
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", fallback.String())

	sale, err := cfg.SaleConfig()
	require.NoError(t, err)
	require.Equal(t, mint.PhasePublicSale, sale.Phase())
	require.Equal(t, uint32(2500), sale.DonationBps)

	resolver, err := cfg.URIResolver()
	require.NoError(t, err)
	require.Equal(t, "cid-a", resolver.Resolve(10))
	require.Equal(t, "cid-b", resolver.Resolve(11))

	tiers, err := cfg.LengthTiers()
	require.NoError(t, err)
	require.Equal(t, "2", tiers.Resolve(fallback))

	params, err := cfg.WhitelistParams()
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.Equal(t, uint64(10), params[0].PercRoyal)

	require.Equal(t, uint32(3), cfg.QuotaRule().MaxMintsPerEpoch)
	require.Equal(t, "postgres://mint@localhost/mint", cfg.IndexerDSN())
	require.Equal(t, "2s", cfg.OracleTimeout().String())

	holdings, err := cfg.OracleHoldings()
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	require.True(t, holdings[0].Native)
	require.Equal(t, "16", holdings[0].Amount.String())
	require.True(t, holdings[1].SemiFungible)
	require.Equal(t, byte(0x01), holdings[1].Token[19])
	require.Equal(t, "4", holdings[1].SubID.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "Bogus = 1\n",
		"bad admin":     "Admins = [\"nope\"]\n",
		"zero divisor":  "[sale]\nPercFee = 0\n",
		"bad fee":       "[sale]\nMinFeeWei = \"-1\"\n",
		"donation bps":  "[sale]\nDonationBps = 10001\n",
		"bad bands":     "[[content]]\nUpTo = 5\nContentID = \"a\"\n[[content]]\nUpTo = 5\nContentID = \"\"\n",
		"bad tier":      "[[length]]\nMinBalanceWei = \"1\"\nLength = \"a_b\"\n",
		"bad whitelist": "[[whitelist]]\nContract = \"0x01\"\n",
		"bad balance":   "[[oracle.balances]]\nHolder = \"0x00000000000000000000000000000000000000aa\"\nSemiFungibleID = \"1\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
}

func TestIndexerDSNDefaultsUnderDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	require.Equal(t, filepath.Join("/data", "indexer.db"), cfg.IndexerDSN())
}
