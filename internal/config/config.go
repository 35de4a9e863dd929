// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	Pair        string          `yaml:"pair"`
	AccountName string          `yaml:"account_name"`
	LogLevel    string          `yaml:"log_level"`
	PrivateKey  string          `yaml:"-"` // Loaded from env only
	Hive        HiveConfig      `yaml:"hive"`
	Trading     TradingConfig   `yaml:"trading"`
	Fetcher     FetcherConfig   `yaml:"fetcher"`
	Predictor   PredictorConfig `yaml:"predictor"`
	Learning    LearningConfig  `yaml:"learning"`
	Backtest    BacktestConfig  `yaml:"backtest"`
	Database    DatabaseConfig  `yaml:"database"`
	DBWriter    DBWriterConfig  `yaml:"db_writer"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	HTTP        HTTPConfig      `yaml:"http"`
}

// HiveConfig holds the node and signer endpoints.
type HiveConfig struct {
	NodeURL               string  `yaml:"node_url"`
	SignerURL             string  `yaml:"signer_url"`
	RequestsPerSecond     float64 `yaml:"requests_per_second"`
	Burst                 int     `yaml:"burst"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	// ForwardKey sends PRIVATE_KEY to the signer with every broadcast.
	// Leave it off when the signer holds the key itself.
	ForwardKey FlexBool `yaml:"forward_key"`
}

// SignerKey is the key to hand the signer, empty unless ForwardKey is set.
func (h HiveConfig) SignerKey(privateKey string) string {
	if !h.ForwardKey.Bool() {
		return ""
	}
	return privateKey
}

// TradingConfig holds the live loop settings.
type TradingConfig struct {
	DryRun                FlexBool `yaml:"dry_run"`
	BufferAmount          float64  `yaml:"buffer_amount"`
	PollIntervalSeconds   int      `yaml:"poll_interval_seconds"`
	ErrorBackoffSeconds   int      `yaml:"error_backoff_seconds"`
	ConfirmOrders         FlexBool `yaml:"confirm_orders"`
	ConfirmTimeoutSeconds int      `yaml:"confirm_timeout_seconds"`
	ConfirmPollSeconds    int      `yaml:"confirm_poll_seconds"`
	OrderExpirationHours  int      `yaml:"order_expiration_hours"`
}

// FetcherConfig controls trade history pagination.
type FetcherConfig struct {
	Limit         int `yaml:"limit"`
	BatchSize     int `yaml:"batch_size"`
	WindowMinutes int `yaml:"window_minutes"`
	StepMinutes   int `yaml:"step_minutes"`
}

// PredictorConfig holds the heuristic blend parameters.
type PredictorConfig struct {
	Interval      int     `yaml:"interval"`
	AverageWeight float64 `yaml:"average_weight"`
	RecentWeight  float64 `yaml:"recent_weight"`
	BuyDiscount   float64 `yaml:"buy_discount"`
	SellPremium   float64 `yaml:"sell_premium"`
}

// LearningConfig holds the regression settings.
type LearningConfig struct {
	RollingWindow          int     `yaml:"rolling_window"`
	TestSize               float64 `yaml:"test_size"`
	Seed                   int64   `yaml:"seed"`
	ForecastSteps          int     `yaml:"forecast_steps"`
	RetrainIntervalMinutes int     `yaml:"retrain_interval_minutes"`
}

// BacktestConfig holds the simulator settings.
type BacktestConfig struct {
	InitialHBD float64 `yaml:"initial_hbd"`
}

// DatabaseConfig holds TimescaleDB connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DBWriterConfig holds batching settings for the writer.
type DBWriterConfig struct {
	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// KafkaConfig holds the optional event sink settings.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	TradeTopic     string   `yaml:"trade_topic"`
	OrderTopic     string   `yaml:"order_topic"`
	PortfolioTopic string   `yaml:"portfolio_topic"`
}

// HTTPConfig holds the health/status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Pair:     "HIVE/HBD",
		LogLevel: "info",
		Hive: HiveConfig{
			NodeURL:               "https://api.hive.blog",
			RequestsPerSecond:     5,
			Burst:                 5,
			RequestTimeoutSeconds: 10,
		},
		Trading: TradingConfig{
			DryRun:                true,
			PollIntervalSeconds:   120,
			ErrorBackoffSeconds:   10,
			ConfirmTimeoutSeconds: 60,
			ConfirmPollSeconds:    5,
			OrderExpirationHours:  24 * 27,
		},
		Fetcher: FetcherConfig{
			Limit:         200,
			BatchSize:     1000,
			WindowMinutes: 60,
			StepMinutes:   2,
		},
		Predictor: PredictorConfig{
			Interval:      2,
			AverageWeight: 0.7,
			RecentWeight:  0.3,
			BuyDiscount:   0.98,
			SellPremium:   1.02,
		},
		Learning: LearningConfig{
			RollingWindow:          5,
			TestSize:               0.2,
			Seed:                   42,
			ForecastSteps:          10,
			RetrainIntervalMinutes: 10,
		},
		Backtest: BacktestConfig{InitialHBD: 6},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Kafka: KafkaConfig{
			TradeTopic:     "hive_market_trades",
			OrderTopic:     "hive_bot_orders",
			PortfolioTopic: "hive_portfolio_values",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables. An empty path skips the file.
// A .env file in the working directory is loaded first if present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Default()

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if node := firstEnv("HIVE_NODE", "STEEM_NODE"); node != "" {
		cfg.Hive.NodeURL = node
	}
	if signer := os.Getenv("SIGNER_URL"); signer != "" {
		cfg.Hive.SignerURL = signer
	}
	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		cfg.PrivateKey = key
	}
	if forward := os.Getenv("FORWARD_PRIVATE_KEY"); forward != "" {
		v, err := strconv.ParseBool(forward)
		if err != nil {
			return fmt.Errorf("invalid FORWARD_PRIVATE_KEY %q: %w", forward, err)
		}
		cfg.Hive.ForwardKey = FlexBool(v)
	}
	if account := os.Getenv("ACCOUNT_NAME"); account != "" {
		cfg.AccountName = account
	}
	if buffer := firstEnv("BUFFER_AMOUNT", "BufferError"); buffer != "" {
		v, err := strconv.ParseFloat(buffer, 64)
		if err != nil {
			return fmt.Errorf("invalid buffer amount %q: %w", buffer, err)
		}
		cfg.Trading.BufferAmount = v
	}
	if dryRun := os.Getenv("DRY_RUN"); dryRun != "" {
		v, err := strconv.ParseBool(dryRun)
		if err != nil {
			return fmt.Errorf("invalid DRY_RUN %q: %w", dryRun, err)
		}
		cfg.Trading.DryRun = FlexBool(v)
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		port, err := strconv.Atoi(dbPort)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", dbPort, err)
		}
		cfg.Database.Port = port
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the values the trading loop cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.AccountName == "" {
		errs = append(errs, errors.New("account name is required (ACCOUNT_NAME)"))
	}
	if c.Hive.NodeURL == "" {
		errs = append(errs, errors.New("hive node url is required (HIVE_NODE)"))
	}
	if c.Trading.BufferAmount < 0 {
		errs = append(errs, fmt.Errorf("buffer amount must not be negative, got %f", c.Trading.BufferAmount))
	}
	if c.Trading.PollIntervalSeconds <= 0 || c.Trading.ErrorBackoffSeconds <= 0 {
		errs = append(errs, errors.New("poll interval and error backoff must be positive"))
	}
	if c.Fetcher.Limit <= 0 || c.Fetcher.BatchSize <= 0 {
		errs = append(errs, errors.New("fetcher limit and batch size must be positive"))
	}
	if c.Predictor.Interval <= 0 {
		errs = append(errs, errors.New("predictor interval must be positive"))
	}
	if !c.Trading.DryRun {
		if c.Hive.SignerURL == "" {
			errs = append(errs, errors.New("signer url is required when dry_run is false (SIGNER_URL)"))
		} else if err := checkSignerURL(c.Hive.SignerURL); err != nil {
			errs = append(errs, err)
		}
		if c.Hive.ForwardKey.Bool() && c.PrivateKey == "" {
			errs = append(errs, errors.New("forward_key is set but PRIVATE_KEY is empty"))
		}
	}
	return errors.Join(errs...)
}

// Orders (and with forward_key the private key) go to the signer, so plain http
// is only accepted on loopback.
func checkSignerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid signer url: %w", err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("signer url %s must use https unless it is on loopback", raw)
	default:
		return fmt.Errorf("unsupported signer url scheme %q", u.Scheme)
	}
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}

// Enabled reports whether enough settings exist to open a connection.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != "" && d.Name != "" && d.User != ""
}

// PollInterval returns the sleep between successful iterations.
func (t TradingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSeconds) * time.Second
}

// ErrorBackoff returns the sleep after a failed iteration.
func (t TradingConfig) ErrorBackoff() time.Duration {
	return time.Duration(t.ErrorBackoffSeconds) * time.Second
}

// ConfirmTimeout bounds the wait for a broadcast transaction.
func (t TradingConfig) ConfirmTimeout() time.Duration {
	return time.Duration(t.ConfirmTimeoutSeconds) * time.Second
}

// ConfirmPoll is the delay between confirmation lookups.
func (t TradingConfig) ConfirmPoll() time.Duration {
	return time.Duration(t.ConfirmPollSeconds) * time.Second
}
