package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port   string `yaml:"port"`
	Env    string `yaml:"env"`
	NodeID string `yaml:"node_id"`

	StoreDriver string `yaml:"store_driver"` // postgres | memory
	DatabaseURL string `yaml:"database_url"`
	// SeedPath names a YAML fixture loaded into the memory store at start.
	SeedPath string `yaml:"seed_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	AlertsEnabled bool   `yaml:"alerts_enabled"`

	JWTSecret string `yaml:"jwt_secret"`

	// Percentages, 20 means 20%.
	PlatformFeePct decimal.Decimal `yaml:"platform_fee_percentage"`
	GSTPct         decimal.Decimal `yaml:"gst_percentage"`

	PresenceWindow       time.Duration `yaml:"presence_window"`
	AssignedCancelWindow time.Duration `yaml:"assigned_cancel_window"`
	OverdueCancelAfter   time.Duration `yaml:"overdue_cancel_after"`
	WalletAuditInterval  time.Duration `yaml:"wallet_audit_interval"`
	// JobSweepInterval of zero disables the stale-job sweeper.
	JobSweepInterval time.Duration `yaml:"job_sweep_interval"`
	StaleJobAge      time.Duration `yaml:"stale_job_age"`
}

func defaults() Config {
	host, _ := os.Hostname()
	return Config{
		Port:                 "8080",
		Env:                  "development",
		NodeID:               host,
		StoreDriver:          "postgres",
		RedisAddr:            "127.0.0.1:6379",
		PlatformFeePct:       decimal.Zero,
		GSTPct:               decimal.NewFromInt(18),
		PresenceWindow:       2 * time.Minute,
		AssignedCancelWindow: 5 * time.Minute,
		OverdueCancelAfter:   45 * time.Minute,
		WalletAuditInterval:  time.Hour,
		JobSweepInterval:     time.Hour,
		StaleJobAge:          24 * time.Hour,
	}
}

// Load reads .env (if any), then the YAML file named by CONFIG_PATH (if any), then
// environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("SERVER_ENV", c.Env)
	c.NodeID = getEnv("NODE_ID", c.NodeID)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SeedPath = getEnv("SEED_PATH", c.SeedPath)
	if c.DatabaseURL == "" && os.Getenv("DB_HOST") != "" {
		c.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			getEnv("DB_PORT", "5432"),
			os.Getenv("DB_NAME"),
		)
	}
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALERTS_ENABLED: %w", err)
		}
		c.AlertsEnabled = b
	}

	var err error
	if c.PlatformFeePct, err = envDecimal("PLATFORM_FEE_PERCENTAGE", c.PlatformFeePct); err != nil {
		return err
	}
	if c.GSTPct, err = envDecimal("GST_PERCENTAGE", c.GSTPct); err != nil {
		return err
	}
	if c.PresenceWindow, err = envDuration("PRESENCE_WINDOW", c.PresenceWindow); err != nil {
		return err
	}
	if c.AssignedCancelWindow, err = envDuration("ASSIGNED_CANCEL_WINDOW", c.AssignedCancelWindow); err != nil {
		return err
	}
	if c.OverdueCancelAfter, err = envDuration("OVERDUE_CANCEL_AFTER", c.OverdueCancelAfter); err != nil {
		return err
	}
	if c.WalletAuditInterval, err = envDuration("WALLET_AUDIT_INTERVAL", c.WalletAuditInterval); err != nil {
		return err
	}
	if c.JobSweepInterval, err = envDuration("JOB_SWEEP_INTERVAL", c.JobSweepInterval); err != nil {
		return err
	}
	if c.StaleJobAge, err = envDuration("STALE_JOB_AGE", c.StaleJobAge); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.PlatformFeePct.IsNegative() || c.GSTPct.IsNegative() {
		return errors.New("fee percentages must not be negative")
	}
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL (or DB_HOST and friends) is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PresenceWindow <= 0 {
		return errors.New("PRESENCE_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
