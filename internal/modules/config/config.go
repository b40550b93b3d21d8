package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"signal_bridge/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs/"
	defaultConfigFile = "values_local.yaml"
)

// Config ...
type Config struct {
	Service struct {
		Name string `yaml:"name"`
		Addr string `yaml:"addr"` // health/metrics/webhook, например ":8080"
	} `yaml:"service"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	BingX BingX `yaml:"bingx"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Webhook struct {
		Path   string `yaml:"path"`
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`

	// Где живут дефолты и снапшоты позиций: memory | file | postgres
	Store struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Trading Trading `yaml:"trading"`

	Protection struct {
		Enabled      bool          `yaml:"enabled"`
		PollInterval time.Duration `yaml:"poll_interval"` // сверка позиций с биржей
	} `yaml:"protection"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`
}

type BingX struct {
	BaseURL        string        `yaml:"base_url"`
	WSURL          string        `yaml:"ws_url"`
	APIKey         string        `yaml:"api_key"`
	APISecret      string        `yaml:"api_secret"`
	RecvWindow     time.Duration `yaml:"recv_window"`
	MaxAttempts    uint          `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	FiltersTTL     time.Duration `yaml:"filters_ttl"`
	PositionMode   string        `yaml:"position_mode"` // hedge | oneway
}

type Trading struct {
	MarginUSDT    float64       `yaml:"margin_usdt"`
	Leverage      int           `yaml:"leverage"`
	MarginMode    string        `yaml:"margin_mode"`
	TimeInForce   string        `yaml:"time_in_force"`
	AutoTrade     bool          `yaml:"auto_trade"`
	Precedence    string        `yaml:"precedence"` // defaults | payload
	DedupWindow   time.Duration `yaml:"dedup_window"`
	DedupCapacity int           `yaml:"dedup_capacity"`
	TPStages      []Stage       `yaml:"tp_stages"`
	SLPercent     float64       `yaml:"sl_percent"` // 0 = без стопа
}

type Stage struct {
	Move float64 `yaml:"move"` // % движения в пользу позиции
	Sell float64 `yaml:"sell"` // % от остатка
}

// секреты из окружения (.env подхватывается godotenv)
type secrets struct {
	BingXBase      string `envconfig:"BINGX_BASE"`
	BingXAPIKey    string `envconfig:"BINGX_API_KEY"`
	BingXAPISecret string `envconfig:"BINGX_API_SECRET"`
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID"`
	WebhookSecret  string `envconfig:"WEBHOOK_SECRET"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN"`
}

func Defaults() Config {
	var c Config
	c.Service.Name = "signal-bridge"
	c.Service.Addr = ":8080"
	c.Log.Level = "info"
	c.BingX = BingX{
		BaseURL:        "https://open-api.bingx.com",
		WSURL:          "wss://open-api-swap.bingx.com/swap-market",
		RecvWindow:     30 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: 300 * time.Millisecond,
		FiltersTTL:     5 * time.Minute,
		PositionMode:   string(models.PositionModeHedge),
	}
	c.Webhook.Path = "/webhook"
	c.Store.Driver = "memory"
	c.Store.Path = "data/state.yaml"
	c.Trading = Trading{
		MarginUSDT:    10,
		Leverage:      10,
		MarginMode:    "ISOLATED",
		TimeInForce:   "GTC",
		Precedence:    "defaults",
		DedupWindow:   30 * time.Second,
		DedupCapacity: 4096,
	}
	c.Protection.Enabled = true
	c.Protection.PollInterval = 30 * time.Second
	c.Tracing.Host = "localhost"
	c.Tracing.Port = 6831
	return c
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = defaultConfigFile
	}
	// .env не обязателен
	_ = godotenv.Load()

	return Load(configDir + configFileName)
}

// Load читает yaml поверх дефолтов, затем секреты из окружения. Отсутствующий файл не ошибка.
func Load(path string) (*Config, error) {
	config := Defaults()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}

	var env secrets
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	config.applySecrets(env)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(env secrets) {
	if env.BingXBase != "" {
		c.BingX.BaseURL = env.BingXBase
	}
	if env.BingXAPIKey != "" {
		c.BingX.APIKey = env.BingXAPIKey
	}
	if env.BingXAPISecret != "" {
		c.BingX.APISecret = env.BingXAPISecret
	}
	if env.TelegramToken != "" {
		c.Telegram.Token = env.TelegramToken
	}
	if env.TelegramChatID != 0 {
		c.Telegram.ChatID = env.TelegramChatID
	}
	if env.WebhookSecret != "" {
		c.Webhook.Secret = env.WebhookSecret
	}
	if env.DatabaseDSN != "" {
		c.Store.DSN = env.DatabaseDSN
	}
}

func (c *Config) Validate() error {
	if c.BingX.RecvWindow <= 0 {
		return fmt.Errorf("bingx.recv_window must be > 0")
	}
	switch models.PositionMode(c.BingX.PositionMode) {
	case models.PositionModeHedge, models.PositionModeOneWay:
	default:
		return fmt.Errorf("bingx.position_mode: unknown %q", c.BingX.PositionMode)
	}
	if c.Trading.Leverage < 1 {
		return fmt.Errorf("trading.leverage must be >= 1")
	}
	if c.Trading.MarginUSDT < 0 {
		return fmt.Errorf("trading.margin_usdt must be >= 0")
	}
	switch c.Trading.Precedence {
	case "defaults", "payload":
	default:
		return fmt.Errorf("trading.precedence: unknown %q (want defaults|payload)", c.Trading.Precedence)
	}
	switch c.Store.Driver {
	case "memory", "file":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("store.driver: unknown %q", c.Store.Driver)
	}
	for i, s := range c.Trading.TPStages {
		if s.Move <= 0 {
			return fmt.Errorf("trading.tp_stages[%d].move must be > 0", i)
		}
		if s.Sell <= 0 || s.Sell > 100 {
			return fmt.Errorf("trading.tp_stages[%d].sell must be in (0,100]", i)
		}
	}
	if c.Trading.SLPercent < 0 {
		return fmt.Errorf("trading.sl_percent must be >= 0")
	}
	return nil
}

// Settings: стартовые дефолты для store, если там ещё пусто.
func (c *Config) Settings() models.Settings {
	return models.Settings{
		MarginUSDT:  decimal.NewFromFloat(c.Trading.MarginUSDT),
		Leverage:    c.Trading.Leverage,
		MarginMode:  c.Trading.MarginMode,
		TimeInForce: c.Trading.TimeInForce,
		AutoTrade:   c.Trading.AutoTrade,
	}
}

func (c *Config) ProtectionDefaults() models.ProtectionConfig {
	out := models.ProtectionConfig{}
	for _, s := range c.Trading.TPStages {
		out.Stages = append(out.Stages, models.TPStageConfig{
			MovePercent: decimal.NewFromFloat(s.Move),
			SellPercent: decimal.NewFromFloat(s.Sell),
		})
	}
	if c.Trading.SLPercent > 0 {
		out.SLPercent = decimal.NewNullDecimal(decimal.NewFromFloat(c.Trading.SLPercent))
	}
	return out
}
