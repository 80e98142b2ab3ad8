package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gotify/configor"
	"github.com/pkg/errors"
)

type Config struct {
	AppPort  string `default:"8080" env:"APP_PORT"`
	LogLevel string `default:"info" env:"LOG_LEVEL"`

	DBDriver string `default:"mysql" env:"DB_DRIVER"`

	MySQLHost string `default:"mysql" env:"MYSQL_HOST"`
	MySQLPort string `default:"3306" env:"MYSQL_PORT"`
	MySQLDB   string `default:"rcv" env:"MYSQL_DB"`
	MySQLUser string `default:"rcv" env:"MYSQL_USER"`
	MySQLPass string `default:"rcv" env:"MYSQL_PASS"`

	PostgresHost string `default:"postgres" env:"POSTGRES_HOST"`
	PostgresPort string `default:"5432" env:"POSTGRES_PORT"`
	PostgresDB   string `default:"rcv" env:"POSTGRES_DB"`
	PostgresUser string `default:"rcv" env:"POSTGRES_USER"`
	PostgresPass string `default:"rcv" env:"POSTGRES_PASS"`

	MigrateOnStart bool `default:"true" env:"DB_MIGRATE_ON_START"`

	RedisAddr string `default:"redis:6379" env:"REDIS_ADDR"`
	RedisDB   int    `default:"0" env:"REDIS_DB"`

	IdempTTLSecs int `default:"300" env:"IDEMPOTENCY_TTL_SECONDS"`

	JWTSigningKey string `default:"" env:"JWT_SIGNING_KEY"`

	// Window during which a server-issued signing timestamp is accepted back.
	SigningWindowSecs int `default:"900" env:"SIGNING_WINDOW_SECONDS"`

	LedgerRPCURL         string `default:"" env:"LEDGER_RPC_URL"`
	LedgerChainID        int64  `default:"11155111" env:"LEDGER_CHAIN_ID"`
	LedgerPrivateKey     string `default:"" env:"LEDGER_PRIVATE_KEY"`
	LedgerGasLimit       uint64 `default:"100000" env:"LEDGER_GAS_LIMIT"`
	LedgerConfirmTimeout int    `default:"60" env:"LEDGER_CONFIRM_TIMEOUT_SECONDS"`

	IndexAPIURL        string  `default:"https://api.etherscan.io/v2/api" env:"INDEX_API_URL"`
	IndexAPIKey        string  `default:"" env:"INDEX_API_KEY"`
	IndexPageSize      int     `default:"10000" env:"INDEX_PAGE_SIZE"`
	IndexRatePerSecond float64 `default:"5" env:"INDEX_RATE_PER_SECOND"`

	ExplorerTxURL string `default:"https://sepolia.etherscan.io/tx/" env:"EXPLORER_TX_URL"`
}

func configFiles() []string {
	return []string{"config.yml"}
}

// Load reads config.yml when present, then environment variables, then defaults.
func Load() (*Config, error) {
	c := new(Config)
	if err := configor.New(&configor.Config{}).Load(c, configFiles()...); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return errors.Wrapf(err, "invalid MYSQL_PORT %q", c.MySQLPort)
		}
	case "postgres":
		if c.PostgresHost == "" || c.PostgresPort == "" || c.PostgresDB == "" || c.PostgresUser == "" {
			return errors.New("missing Postgres config (POSTGRES_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.PostgresPort); err != nil {
			return errors.Wrapf(err, "invalid POSTGRES_PORT %q", c.PostgresPort)
		}
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.JWTSigningKey == "" {
		return errors.New("missing JWT_SIGNING_KEY")
	}
	if c.LedgerGasLimit == 0 {
		return errors.New("LEDGER_GAS_LIMIT must be positive")
	}
	if c.IndexPageSize <= 0 || c.IndexPageSize > 10000 {
		return errors.Errorf("INDEX_PAGE_SIZE must be in 1..10000, got %d", c.IndexPageSize)
	}
	return nil
}

// LedgerConfigured reports whether anchoring can be attempted at all.
func (c *Config) LedgerConfigured() bool {
	return c.LedgerRPCURL != "" && c.LedgerPrivateKey != ""
}

func (c *Config) IdempotencyTTL() time.Duration { return time.Duration(c.IdempTTLSecs) * time.Second }

func (c *Config) SigningWindow() time.Duration {
	return time.Duration(c.SigningWindowSecs) * time.Second
}

func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerConfirmTimeout) * time.Second
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB)
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if strings.EqualFold(c.DBDriver, "postgres") {
		return c.PostgresDSN()
	}
	return c.MySQLDSN()
}
