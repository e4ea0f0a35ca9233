package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stakehub/crypto"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8547", cfg.ListenAddress)
	require.Equal(t, "./stakehub-data", cfg.DataDir)
	require.Equal(t, "SHB", cfg.RewardToken)
	require.Equal(t, float64(20), cfg.RateLimitRPS)
	require.Equal(t, 40, cfg.RateLimitBurst)

	// The default file is written so the next load hits the parse path.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, again.ListenAddress)
}

func TestLoadParsesPoolsAndAddresses(t *testing.T) {
	raw := make([]byte, 20)
	raw[19] = 0x42
	ownerAddr := crypto.MustNewAddress(crypto.StakePrefix, raw)

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
ListenAddress = ":9000"
DataDir = "/tmp/stakehub"
OwnerAddress = "` + ownerAddr.String() + `"
RewardToken = "SHB"

[[Pools]]
Token = "STAKE"
RewardsDuration = 604800
LockPeriod = 86400
WithdrawDelay = 3600
VestingPeriod = 86400
VotingMultiplier = 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Len(t, cfg.Pools, 1)
	require.Equal(t, uint64(604800), cfg.Pools[0].RewardsDuration)
	require.Equal(t, uint64(2), cfg.Pools[0].VotingMultiplier)

	owner, ok := cfg.Owner()
	require.True(t, ok)
	require.Equal(t, ownerAddr.Raw(), owner.Raw())
	_, ok = cfg.Vault()
	require.False(t, ok)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad owner": `OwnerAddress = "not-an-address"`,
		"pool without token": `
[[Pools]]
RewardsDuration = 100
VotingMultiplier = 1
`,
		"pool zero duration": `
[[Pools]]
Token = "STAKE"
RewardsDuration = 0
VotingMultiplier = 1
`,
		"pool zero multiplier": `
[[Pools]]
Token = "STAKE"
RewardsDuration = 100
VotingMultiplier = 0
`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		require.Error(t, err, name)
	}
}
