package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"wingman/internal/pricing"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Queue       QueueConfig       `mapstructure:"queue"`
	AI          AIConfig          `mapstructure:"ai"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Accounts    AccountsConfig    `mapstructure:"accounts"`

	// Pricing is filled from DefaultConfig with the "pricing" subtree laid over it.
	Pricing pricing.Config `mapstructure:"-"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // development | production
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"` // empty => in-process queue
}

type QueueConfig struct {
	Name    string `mapstructure:"name"`
	Workers int    `mapstructure:"workers"`
	Buffer  int    `mapstructure:"buffer"`
	// VisibilityTimeout is how long a claimed job may stay in processing
	// before another worker treats its owner as dead.
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

type AIConfig struct {
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Temperature  float32       `mapstructure:"temperature"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type CacheConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

type IdempotencyConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AccountsConfig struct {
	DefaultTimezone string `mapstructure:"default_timezone"`
}

func (c Config) IsProduction() bool { return c.App.Env == "production" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("queue.name", "wingman:analyses")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.buffer", 256)
	v.SetDefault("queue.visibility_timeout", 5*time.Minute)
	v.SetDefault("ai.openai_api_key", "")
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", time.Hour)
	v.SetDefault("cache.retention", 720*time.Hour)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.sweep_interval", time.Hour)
	v.SetDefault("accounts.default_timezone", "UTC")
}

// Load reads .env (if present), then defaults, config.yaml and WINGMAN_* env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/wingman/")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes an already-populated viper instance. Tests use it with
// an in-memory YAML source.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("WINGMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p, err := loadPricing(v)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = p

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadPricing decodes each tier onto its default policy so a partial override
// (say, only pricing.tiers.pro.short_cost) keeps the remaining defaults. The
// token maps merge the same way.
func loadPricing(v *viper.Viper) (pricing.Config, error) {
	cfg := pricing.DefaultConfig()
	sub := v.Sub("pricing")
	if sub == nil {
		return cfg, nil
	}

	tiers := cfg.Tiers
	cfg.Tiers = nil
	if err := sub.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal pricing: %w", err)
	}

	for name, policy := range tiers {
		if tierSub := sub.Sub("tiers." + string(name)); tierSub != nil {
			if err := tierSub.Unmarshal(&policy); err != nil {
				return cfg, fmt.Errorf("failed to unmarshal pricing tier %s: %w", name, err)
			}
		}
		tiers[name] = policy
	}
	cfg.Tiers = tiers
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Queue.Workers <= 0 {
		errs = append(errs, errors.New("queue.workers must be positive"))
	}
	if c.Queue.Buffer < 0 {
		errs = append(errs, errors.New("queue.buffer must not be negative"))
	}
	if c.AI.Timeout <= 0 {
		errs = append(errs, errors.New("ai.timeout must be positive"))
	}
	if c.Queue.VisibilityTimeout <= c.AI.Timeout {
		errs = append(errs, fmt.Errorf("queue.visibility_timeout %s must exceed ai.timeout %s",
			c.Queue.VisibilityTimeout, c.AI.Timeout))
	}
	if c.Cache.Retention < 0 {
		errs = append(errs, errors.New("cache.retention must not be negative"))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, errors.New("idempotency.ttl must be positive"))
	}
	if c.Idempotency.SweepInterval <= 0 {
		errs = append(errs, errors.New("idempotency.sweep_interval must be positive"))
	}
	if _, err := time.LoadLocation(c.Accounts.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("accounts.default_timezone: %w", err))
	}
	if c.IsProduction() {
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required in production"))
		}
		if c.JWT.Secret == "" {
			errs = append(errs, errors.New("jwt.secret is required in production"))
		}
	}
	if err := c.Pricing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
