package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakehub/crypto"
)

// PoolConfig describes one staking pool provisioned at startup.
type PoolConfig struct {
	Token            string `toml:"Token"`
	RewardsDuration  uint64 `toml:"RewardsDuration"`
	LockPeriod       uint64 `toml:"LockPeriod"`
	WithdrawDelay    uint64 `toml:"WithdrawDelay"`
	VestingPeriod    uint64 `toml:"VestingPeriod"`
	VotingMultiplier uint64 `toml:"VotingMultiplier"`
}

type Config struct {
	ListenAddress  string       `toml:"ListenAddress"`
	DataDir        string       `toml:"DataDir"`
	OwnerAddress   string       `toml:"OwnerAddress"`
	VaultAddress   string       `toml:"VaultAddress"`
	RewardToken    string       `toml:"RewardToken"`
	LogFile        string       `toml:"LogFile"`
	RateLimitRPS   float64      `toml:"RateLimitRPS"`
	RateLimitBurst int          `toml:"RateLimitBurst"`
	Pools          []PoolConfig `toml:"Pools"`
}

// Load reads the configuration from path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8547"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./stakehub-data"
	}
	if strings.TrimSpace(c.RewardToken) == "" {
		c.RewardToken = "SHB"
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 20
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 40
	}
}

// Validate checks address fields and pool definitions.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OwnerAddress) != "" {
		if _, err := crypto.DecodeAddress(c.OwnerAddress); err != nil {
			return fmt.Errorf("config: invalid OwnerAddress: %w", err)
		}
	}
	if strings.TrimSpace(c.VaultAddress) != "" {
		if _, err := crypto.DecodeAddress(c.VaultAddress); err != nil {
			return fmt.Errorf("config: invalid VaultAddress: %w", err)
		}
	}
	for i, pool := range c.Pools {
		if strings.TrimSpace(pool.Token) == "" {
			return fmt.Errorf("config: pool %d: Token required", i)
		}
		if pool.RewardsDuration == 0 {
			return fmt.Errorf("config: pool %d: RewardsDuration must be positive", i)
		}
		if pool.VotingMultiplier == 0 {
			return fmt.Errorf("config: pool %d: VotingMultiplier must be >= 1", i)
		}
	}
	return nil
}

// Owner returns the decoded owner address, or false when unset.
func (c *Config) Owner() (crypto.Address, bool) {
	if strings.TrimSpace(c.OwnerAddress) == "" {
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(c.OwnerAddress)
	if err != nil {
		return crypto.Address{}, false
	}
	return addr, true
}

// Vault returns the decoded module vault address, or false when unset.
func (c *Config) Vault() (crypto.Address, bool) {
	if strings.TrimSpace(c.VaultAddress) == "" {
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(c.VaultAddress)
	if err != nil {
		return crypto.Address{}, false
	}
	return addr, true
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
