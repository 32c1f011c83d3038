package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultPath = "config/config.yaml"

type FilesConfig struct {
	RootDir  string `yaml:"root_dir"`
	FontPath string `yaml:"font_path"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	WebhookURL string `yaml:"webhook_url"`
}

// RedisConfig is optional; an empty Addr keeps idempotency state in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebhooksConfig struct {
	DocuSignSecret  string `yaml:"docusign_secret"`
	HelloSignAPIKey string `yaml:"hellosign_api_key"`
	PandaDocKey     string `yaml:"pandadoc_key"`
}

// BusinessConfig holds the read-only business defaults exposed to clients.
type BusinessConfig struct {
	CompanyName     string `yaml:"company_name" json:"company_name"`
	DefaultCurrency string `yaml:"default_currency" json:"default_currency"`
	Timezone        string `yaml:"timezone" json:"timezone"`
}

type WorkersConfig struct {
	ReminderInterval    time.Duration `yaml:"reminder_interval"`
	CampaignConcurrency int           `yaml:"campaign_concurrency"`
}

type Config struct {
	Server struct {
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Files    FilesConfig    `yaml:"files"`
	Business BusinessConfig `yaml:"business"`
	Workers  WorkersConfig  `yaml:"workers"`
}

// LoadConfig reads the YAML file named by CRMHUB_CONFIG (or
// config/config.yaml), applies env overrides and defaults, and validates.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CRMHUB_CONFIG")
	if path == "" {
		path = defaultPath
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CRMHUB_DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CRMHUB_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Files.RootDir == "" {
		c.Files.RootDir = "./files"
	}
	if c.Business.DefaultCurrency == "" {
		c.Business.DefaultCurrency = "USD"
	}
	if c.Business.Timezone == "" {
		c.Business.Timezone = "UTC"
	}
	if c.Workers.ReminderInterval == 0 {
		c.Workers.ReminderInterval = time.Minute
	}
	if c.Workers.CampaignConcurrency <= 0 {
		c.Workers.CampaignConcurrency = 4
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
