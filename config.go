package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/stablepay/layer2/pkg/eddsa"
	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
)

const (
	configDirPathEnv     = "L2_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// AppConfig holds the settings read from the environment.
type AppConfig struct {
	Vendor        string        `env:"L2_VENDOR" env-default:"loopring"`
	Network       string        `env:"L2_NETWORK" env-default:"mainnet"`
	PrivateKey    string        `env:"L2_PRIVATE_KEY"`
	NonceScheme   string        `env:"L2_NONCE_SCHEME" env-default:"blake512"`
	FeeToken      string        `env:"L2_FEE_TOKEN" env-default:"ETH"`
	UnlockMaxFee  string        `env:"L2_UNLOCK_MAX_FEE" env-default:"0"`
	PollInterval  time.Duration `env:"L2_POLL_INTERVAL" env-default:"5s"`
	MetricsAddr   string        `env:"L2_METRICS_ADDR" env-default:":4242"`
	WorkerTick    time.Duration `env:"L2_WORKER_TICK" env-default:"30s"`
	ReceiptWait   time.Duration `env:"L2_RECEIPT_WAIT" env-default:"2m"`
	DatabaseURL   string        `env:"L2_DATABASE_URL"`
	HTTPTimeout   time.Duration `env:"L2_HTTP_TIMEOUT" env-default:"15s"`
	StreamBufSize int           `env:"L2_STREAM_BUFFER" env-default:"100"`
}

// Config represents the overall application configuration
type Config struct {
	app      AppConfig
	log      log.Config
	dbConf   DatabaseConfig
	networks NetworksConfig
	scheme   eddsa.Scheme
	vendor   layer2.Vendor
	network  layer2.Network
}

// LoadConfig reads <L2_CONFIG_DIR_PATH>/.env, the environment and the
// optional networks file. It does not prompt for the private key.
func LoadConfig() (*Config, error) {
	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	// a missing .env is fine, everything can come from the environment
	_ = godotenv.Load(filepath.Join(configDirPath, ".env"))

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg.app); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	if err := cleanenv.ReadEnv(&cfg.log); err != nil {
		return nil, fmt.Errorf("failed to read log env: %w", err)
	}

	if cfg.app.DatabaseURL != "" {
		dbConf, err := ParseConnectionString(cfg.app.DatabaseURL)
		if err != nil {
			return nil, err
		}
		cfg.dbConf = dbConf
	} else if err := cleanenv.ReadEnv(&cfg.dbConf); err != nil {
		return nil, fmt.Errorf("failed to read database env: %w", err)
	}

	scheme, err := eddsa.ParseScheme(cfg.app.NonceScheme)
	if err != nil {
		return nil, err
	}
	cfg.scheme = scheme
	cfg.vendor = layer2.Vendor(strings.ToLower(strings.TrimSpace(cfg.app.Vendor)))
	cfg.network = layer2.NormalizeNetwork(cfg.app.Network)

	networks, err := LoadNetworks(configDirPath)
	if err != nil {
		return nil, err
	}
	cfg.networks = networks

	return &cfg, nil
}

// privateKey returns L2_PRIVATE_KEY, or reads it from the terminal without
// echo when stdin is interactive.
func (c *Config) privateKey() (string, error) {
	if c.app.PrivateKey != "" {
		return c.app.PrivateKey, nil
	}
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", errors.New("L2_PRIVATE_KEY environment variable is required")
	}

	fmt.Fprint(os.Stderr, "Paste private key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", errors.New("empty private key")
	}
	c.app.PrivateKey = key
	return key, nil
}
