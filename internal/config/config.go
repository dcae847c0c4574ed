package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MJE43/digiwin/internal/chain"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds node and simulator settings read from DIGIWIN_* variables.
type Config struct {
	Addr            string        `env:"DIGIWIN_ADDR"             envDefault:":8080"`
	Store           string        `env:"DIGIWIN_STORE"            envDefault:"memory"`
	DBPath          string        `env:"DIGIWIN_DB_PATH"          envDefault:"digiwin.db"`
	ServerSeed      string        `env:"DIGIWIN_SERVER_SEED"`
	SeedFile        string        `env:"DIGIWIN_SEED_FILE"`
	CORSOrigin      string        `env:"DIGIWIN_CORS_ORIGIN"      envDefault:"*"`
	RequestTimeout  time.Duration `env:"DIGIWIN_REQUEST_TIMEOUT"  envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"DIGIWIN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ScenarioTimeout time.Duration `env:"DIGIWIN_SCENARIO_TIMEOUT" envDefault:"10s"`
	SkipGenesis     bool          `env:"DIGIWIN_SKIP_GENESIS"`
	GenesisBalance  string        `env:"DIGIWIN_GENESIS_BALANCE"  envDefault:"100000000"`
}

// Load reads the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFrom reads the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DIGIWIN_DB_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("DIGIWIN_STORE must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Store)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("DIGIWIN_REQUEST_TIMEOUT must be positive")
	}
	if c.ScenarioTimeout <= 0 {
		return fmt.Errorf("DIGIWIN_SCENARIO_TIMEOUT must be positive")
	}
	if micro, ok := chain.ParseSTX(c.GenesisBalance); !ok || micro == 0 {
		return fmt.Errorf("DIGIWIN_GENESIS_BALANCE must be a positive STX amount with at most six decimals, got %q", c.GenesisBalance)
	}
	return nil
}

// GenesisMicroSTX is the genesis balance of each devnet account in µSTX.
// It is zero when GenesisBalance is invalid.
func (c Config) GenesisMicroSTX() uint64 {
	micro, _ := chain.ParseSTX(c.GenesisBalance)
	return micro
}

// Summary is a loggable view of the config. The server seed is passed
// under a key the security logger hashes.
func (c Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"addr":            c.Addr,
		"store":           c.Store,
		"db_path":         c.DBPath,
		"server_seed":     c.ServerSeed,
		"cors_origin":     c.CORSOrigin,
		"request_timeout": c.RequestTimeout,
		"genesis_balance": c.GenesisBalance,
	}
}
