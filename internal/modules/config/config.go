package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"perp_bot/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type OKXConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	WSURL      string `mapstructure:"ws_url"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Passphrase string `mapstructure:"passphrase"`
	Simulated  bool   `mapstructure:"simulated"`
}

type AdmissionConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ExpectedProducers []string      `mapstructure:"expected_producers"`
	ConcurrencyCap    int           `mapstructure:"concurrency_cap"`
}

// RiskConfig: пороги предторговых проверок. AssetMinVolume перекрывает MinVolume24h по активу.
type RiskConfig struct {
	MinBalance     float64            `mapstructure:"min_balance"`
	MaxDailyLoss   float64            `mapstructure:"max_daily_loss"`
	MinNotional    float64            `mapstructure:"min_notional"`
	MinVolume24h   float64            `mapstructure:"min_volume_24h"`
	AssetMinVolume map[string]float64 `mapstructure:"asset_min_volume"`
}

type ExecutionConfig struct {
	StepTimeout   time.Duration `mapstructure:"step_timeout"`
	IOCSlippage   float64       `mapstructure:"ioc_slippage"`
	RetrySlippage float64       `mapstructure:"retry_slippage"`
}

type LadderConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	Expiry           time.Duration `mapstructure:"expiry"`
	Attempts         int           `mapstructure:"attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	Factor           float64       `mapstructure:"factor"`
	MaxDeviationPct  float64       `mapstructure:"max_deviation_pct"`
	RunnerFraction   float64       `mapstructure:"runner_fraction"`
	StopLossFraction float64       `mapstructure:"stop_loss_fraction"`
}

type ExitsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	Concurrency  int           `mapstructure:"concurrency"`
}

type ProducerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	HistorySize int           `mapstructure:"history_size"`
	Stream      bool          `mapstructure:"stream"`
}

// Config ...
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`
	DB     string      `mapstructure:"db_dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
	OKX    OKXConfig   `mapstructure:"okx"`
	Health struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"health"`
	Jaeger struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"jaeger"`

	StrategiesFile string `mapstructure:"strategies_file"`

	Admission AdmissionConfig `mapstructure:"admission"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Ladder    LadderConfig    `mapstructure:"ladder"`
	Exits     ExitsConfig     `mapstructure:"exits"`
	Producer  ProducerConfig  `mapstructure:"producer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("db_dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("okx.base_url", "https://www.okx.com")
	v.SetDefault("okx.ws_url", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("okx.api_key", "")
	v.SetDefault("okx.api_secret", "")
	v.SetDefault("okx.passphrase", "")
	v.SetDefault("okx.simulated", false)
	v.SetDefault("health.addr", ":8080")
	v.SetDefault("jaeger.host", "")
	v.SetDefault("jaeger.port", 6831)
	v.SetDefault("strategies_file", "configs/strategies.yaml")

	v.SetDefault("admission.poll_interval", "5s")
	v.SetDefault("admission.expected_producers", []string{})
	v.SetDefault("admission.concurrency_cap", 3)

	v.SetDefault("risk.min_balance", 10.0)
	v.SetDefault("risk.max_daily_loss", 100.0)
	v.SetDefault("risk.min_notional", 10.0)
	v.SetDefault("risk.min_volume_24h", 1_000_000.0)
	v.SetDefault("risk.asset_min_volume", map[string]float64{})

	v.SetDefault("execution.step_timeout", "5s")
	v.SetDefault("execution.ioc_slippage", 0.0001)
	v.SetDefault("execution.retry_slippage", 0.0002)

	v.SetDefault("ladder.sweep_interval", "5s")
	v.SetDefault("ladder.expiry", "60s")
	v.SetDefault("ladder.attempts", 3)
	v.SetDefault("ladder.base_delay", "500ms")
	v.SetDefault("ladder.factor", 2.0)
	v.SetDefault("ladder.max_deviation_pct", 50.0)
	v.SetDefault("ladder.runner_fraction", 0.2)
	v.SetDefault("ladder.stop_loss_fraction", 1.0)

	v.SetDefault("exits.poll_interval", "10s")
	v.SetDefault("exits.cooldown", "15m")
	v.SetDefault("exits.concurrency", 4)

	v.SetDefault("producer.interval", "1m")
	v.SetDefault("producer.history_size", 200)
	v.SetDefault("producer.stream", true)
}

// NewConfig: .env -> configs/$CONFIG_FILE -> переменные окружения (REDIS_ADDR, OKX_API_KEY, ...).
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := configPath()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	} else {
		logger.Warn("config file %s not found, using defaults and env", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		cfg.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		cfg.DB = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath() string {
	name := getenvDefault(configFilePathENV, "values_local.yaml")
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(getenvDefault(configDirENV, "configs"), name)
}

func (c *Config) Validate() error {
	switch {
	case c.Admission.ConcurrencyCap < 0:
		return errors.New("admission.concurrency_cap must be >= 0")
	case c.Ladder.Attempts <= 0:
		return errors.New("ladder.attempts must be > 0")
	case c.Ladder.RunnerFraction < 0 || c.Ladder.RunnerFraction >= 1:
		return errors.New("ladder.runner_fraction must be in [0,1)")
	case c.Ladder.StopLossFraction <= 0 || c.Ladder.StopLossFraction > 1:
		return errors.New("ladder.stop_loss_fraction must be in (0,1]")
	case c.Execution.IOCSlippage <= 0 || c.Execution.RetrySlippage < c.Execution.IOCSlippage:
		return errors.New("execution slippage must be > 0 and retry >= ioc")
	case c.Risk.MaxDailyLoss <= 0:
		return errors.New("risk.max_daily_loss must be > 0")
	}
	return nil
}

// MinVolumeFor: порог 24h-объёма для актива.
func (r RiskConfig) MinVolumeFor(asset string) float64 {
	if v, ok := r.AssetMinVolume[asset]; ok {
		return v
	}
	if v, ok := r.AssetMinVolume[strings.ToLower(asset)]; ok {
		return v
	}
	return r.MinVolume24h
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
