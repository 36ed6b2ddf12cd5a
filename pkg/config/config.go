package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the resolver configuration
type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Chains     map[string]ChainConfig `mapstructure:"chains"`
	Swap       SwapConfig             `mapstructure:"swap"`
	Pool       PoolConfig             `mapstructure:"pool"`
	Relay      RelayConfig            `mapstructure:"relay"`
	Monitoring MonitoringConfig       `mapstructure:"monitoring"`
	Logging    LoggingConfig          `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ChainConfig contains per-chain client settings. The map key in
// Config.Chains is the chain name used in swap records ("sepolia",
// "polygon-amoy", "monad-testnet").
type ChainConfig struct {
	RPCURL             string        `mapstructure:"rpc_url"`
	ChainID            int64         `mapstructure:"chain_id"`
	HTLCContract       string        `mapstructure:"htlc_contract"`
	RelayerPrivateKey  string        `mapstructure:"relayer_private_key"`
	ConfirmationBlocks int           `mapstructure:"confirmation_blocks"`
	PollingInterval    time.Duration `mapstructure:"polling_interval"`
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout"`
	GasLimit           uint64        `mapstructure:"gas_limit"`
	MaxGasPrice        string        `mapstructure:"max_gas_price"`
}

// SwapConfig contains swap validation and quoting settings
type SwapConfig struct {
	Pairs           []PairConfig  `mapstructure:"pairs"`
	DefaultTimelock time.Duration `mapstructure:"default_timelock"`
	MinTimelock     time.Duration `mapstructure:"min_timelock"`
	MaxTimelock     time.Duration `mapstructure:"max_timelock"`
}

// PairConfig describes one entry of the supported-pairs allow-list together
// with its fixed quote rate and amount bounds (minor units).
type PairConfig struct {
	SourceChain      string `mapstructure:"source_chain"`
	SourceToken      string `mapstructure:"source_token"`
	DestinationChain string `mapstructure:"destination_chain"`
	DestinationToken string `mapstructure:"destination_token"`
	Rate             string `mapstructure:"rate"`
	MinAmount        string `mapstructure:"min_amount"`
	MaxAmount        string `mapstructure:"max_amount"`
}

// PoolConfig contains fulfillment agent settings
type PoolConfig struct {
	Address        string        `mapstructure:"address"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	MinMargin      time.Duration `mapstructure:"min_margin"`
	ExpirySweep    time.Duration `mapstructure:"expiry_sweep"`
	SettlePoll     time.Duration `mapstructure:"settle_poll"`
}

// RelayConfig contains gasless claim relay settings
type RelayConfig struct {
	MaxClaimsPerWindow int           `mapstructure:"max_claims_per_window"`
	Window             time.Duration `mapstructure:"window"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "swapsage")

	// Swap defaults
	viper.SetDefault("swap.default_timelock", "2h")
	viper.SetDefault("swap.min_timelock", "30m")
	viper.SetDefault("swap.max_timelock", "48h")

	// Pool defaults
	viper.SetDefault("pool.poll_interval", "15s")
	viper.SetDefault("pool.batch_size", 20)
	viper.SetDefault("pool.min_margin", "10m")
	viper.SetDefault("pool.expiry_sweep", "1m")
	viper.SetDefault("pool.settle_poll", "15s")

	// Relay defaults
	viper.SetDefault("relay.max_claims_per_window", 5)
	viper.SetDefault("relay.window", "1h")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if len(config.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for name, chain := range config.Chains {
		if chain.RPCURL == "" {
			return fmt.Errorf("chains.%s.rpc_url is required", name)
		}
		if chain.HTLCContract == "" {
			return fmt.Errorf("chains.%s.htlc_contract is required", name)
		}
	}
	if config.Pool.Address == "" {
		return fmt.Errorf("pool.address is required")
	}
	for i, pair := range config.Swap.Pairs {
		if _, ok := config.Chains[pair.SourceChain]; !ok {
			return fmt.Errorf("swap.pairs[%d]: unknown source chain %q", i, pair.SourceChain)
		}
		if _, ok := config.Chains[pair.DestinationChain]; !ok {
			return fmt.Errorf("swap.pairs[%d]: unknown destination chain %q", i, pair.DestinationChain)
		}
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
