package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	PlatformUpbit   = "upbit"
	PlatformBinance = "binance"
)

// Defaults applied where the config file or flags stay silent.
const (
	defaultFeeFactor     = "0.9995"
	defaultMinOrderValue = "5000"
	defaultHistoryDays   = 30
	defaultRunInterval   = 30 * time.Second
	defaultListenAddr    = ":8080"
	defaultLLMModel      = "gpt-4o"
	defaultJournalDir    = "./wal/decisions"
)

// Config is the fully validated runtime configuration.
type Config struct {
	Platform   string
	Settlement string

	FeeFactor     decimal.Decimal
	MinOrderValue decimal.Decimal
	HistoryDays   int
	RunInterval   time.Duration
	ListenAddr    string
	JournalDir    string

	DB  DBConfig
	LLM LLMConfig

	ExchangeAccessKey string
	ExchangeSecretKey string
}

// DBConfig holds PostgreSQL connection options.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// LLMConfig holds the decision oracle endpoint options.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// configTmp is the raw yaml shape; decimals and durations arrive as strings
// and are validated into Config.
type configTmp struct {
	Platform   string `yaml:"platform"`
	Settlement string `yaml:"settlement"`

	FeeFactor      string `yaml:"fee_factor,omitempty"`
	MinOrderValue  string `yaml:"min_order_value,omitempty"`
	HistoryDays    int    `yaml:"history_days,omitempty"`
	RunIntervalStr string `yaml:"run_interval,omitempty"`
	ListenAddr     string `yaml:"listen_addr,omitempty"`
	JournalDir     string `yaml:"journal_dir,omitempty"`

	DB  DBConfig  `yaml:"db"`
	LLM LLMConfig `yaml:"llm"`

	ExchangeAccessKey string `yaml:"exchange_access_key"`
	ExchangeSecretKey string `yaml:"exchange_secret_key"`
}

// Get loads configuration from the yaml file named by --config, falling back
// to flags for a minimal local setup. Exchange and LLM credentials may also
// arrive via environment variables, which take priority over the file.
func Get() (*Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", PlatformUpbit, "exchange platform: upbit or binance")
	settlement := flag.String("settlement", "", "settlement currency, defaults to KRW for upbit and USDT for binance")
	listenAddr := flag.String("listen", defaultListenAddr, "http api listen address")
	runInterval := flag.Duration("runinterval", defaultRunInterval, "interval between automatic trading cycles")
	flag.Parse()

	var tmp configTmp
	if *configPath != "" {
		f, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return nil, err
		}
	} else {
		tmp.Platform = *platform
		tmp.Settlement = *settlement
		tmp.ListenAddr = *listenAddr
		tmp.RunIntervalStr = runInterval.String()
	}

	applyEnv(&tmp)
	return tmp.validate()
}

func applyEnv(tmp *configTmp) {
	if v := os.Getenv("EXCHANGE_ACCESS_KEY"); v != "" {
		tmp.ExchangeAccessKey = v
	}
	if v := os.Getenv("EXCHANGE_SECRET_KEY"); v != "" {
		tmp.ExchangeSecretKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		tmp.LLM.APIKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		tmp.DB.Password = v
	}
}

func (tmp configTmp) validate() (*Config, error) {
	cfg := &Config{
		Platform:          tmp.Platform,
		Settlement:        tmp.Settlement,
		HistoryDays:       tmp.HistoryDays,
		ListenAddr:        tmp.ListenAddr,
		JournalDir:        tmp.JournalDir,
		DB:                tmp.DB,
		LLM:               tmp.LLM,
		ExchangeAccessKey: tmp.ExchangeAccessKey,
		ExchangeSecretKey: tmp.ExchangeSecretKey,
	}

	switch cfg.Platform {
	case PlatformUpbit:
		if cfg.Settlement == "" {
			cfg.Settlement = "KRW"
		}
	case PlatformBinance:
		if cfg.Settlement == "" {
			cfg.Settlement = "USDT"
		}
	default:
		return nil, fmt.Errorf("unknown platform %q, expected %s or %s", cfg.Platform, PlatformUpbit, PlatformBinance)
	}

	feeFactor := tmp.FeeFactor
	if feeFactor == "" {
		feeFactor = defaultFeeFactor
	}
	fee, err := decimal.NewFromString(feeFactor)
	if err != nil {
		return nil, fmt.Errorf("invalid fee_factor %q: %w", feeFactor, err)
	}
	if fee.LessThanOrEqual(decimal.Zero) || fee.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee_factor must be in (0, 1], got %s", fee)
	}
	cfg.FeeFactor = fee

	minOrder := tmp.MinOrderValue
	if minOrder == "" {
		minOrder = defaultMinOrderValue
	}
	min, err := decimal.NewFromString(minOrder)
	if err != nil {
		return nil, fmt.Errorf("invalid min_order_value %q: %w", minOrder, err)
	}
	if min.IsNegative() {
		return nil, fmt.Errorf("min_order_value must not be negative, got %s", min)
	}
	cfg.MinOrderValue = min

	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = defaultHistoryDays
	}

	cfg.RunInterval = defaultRunInterval
	if tmp.RunIntervalStr != "" {
		interval, err := time.ParseDuration(tmp.RunIntervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid run_interval %q: %w", tmp.RunIntervalStr, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("run_interval must be positive, got %s", interval)
		}
		cfg.RunInterval = interval
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = defaultJournalDir
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLMModel
	}

	if cfg.LLM.BaseURL == "" {
		return nil, fmt.Errorf("llm.base_url is required")
	}
	if cfg.ExchangeAccessKey == "" || cfg.ExchangeSecretKey == "" {
		return nil, fmt.Errorf("exchange credentials are required (config file or EXCHANGE_ACCESS_KEY/EXCHANGE_SECRET_KEY)")
	}

	return cfg, nil
}
