package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
)

const day = 24 * time.Hour

// Config holds all configuration for the engine, its server and worker.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Cooldowns   CooldownConfig    `yaml:"cooldowns"`
	Ownership   OwnershipConfig   `yaml:"ownership"`
	TAM         TAMConfig         `yaml:"tam"`
	Fill        FillConfig        `yaml:"fill"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	ReadTimeoutSeconds int      `yaml:"read_timeout_seconds"`
	CORSOrigins        []string `yaml:"cors_origins"`
}

// GetHost returns the listen host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and tunes the store.
type DatabaseConfig struct {
	Driver             string `yaml:"driver"`
	URL                string `yaml:"url"`
	SQLitePath         string `yaml:"sqlite_path"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMin int    `yaml:"conn_max_lifetime_minutes"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMin) * time.Minute
}

// RedisConfig is optional; without an address maintenance locks fall back
// to Postgres advisory locks or an in-process lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CooldownConfig holds cooldowns in days.
type CooldownConfig struct {
	EmailDays      int `yaml:"email_days"`
	LinkedInDays   int `yaml:"linkedin_days"`
	PhoneDays      int `yaml:"phone_days"`
	NoResponseDays int `yaml:"no_response_days"`
	NeutralDays    int `yaml:"neutral_days"`
	NegativeDays   int `yaml:"negative_days"`
	LostClosedDays int `yaml:"lost_closed_days"`
	CompanyDays    int `yaml:"company_days"`
	StaleAfterDays int `yaml:"stale_after_days"`
}

// OwnershipConfig holds lease settings.
type OwnershipConfig struct {
	LeaseDays int `yaml:"lease_days"`
}

// TAMConfig tunes snapshots and health grading.
type TAMConfig struct {
	Channel       string  `yaml:"channel"`
	BurnWindow    int     `yaml:"burn_window"`
	WarningWeeks  float64 `yaml:"warning_weeks"`
	CriticalWeeks float64 `yaml:"critical_weeks"`
	Concurrency   int     `yaml:"concurrency"`
}

// FillConfig holds campaign fill defaults.
type FillConfig struct {
	FreshRatio    float64 `yaml:"fresh_ratio"`
	MaxPerCompany int     `yaml:"max_per_company"`
}

// MaintenanceConfig schedules the daily cycle.
type MaintenanceConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	BatchSize       int `yaml:"batch_size"`
	LockTTLMinutes  int `yaml:"lock_ttl_minutes"`
}

func (c MaintenanceConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c MaintenanceConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// ArchiveConfig controls where TAM snapshots are copied after capture.
// Type is "", "local" or "aws".
type ArchiveConfig struct {
	Type          string `yaml:"type"`
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // empty uses the default credential chain
	TTLDays       int    `yaml:"ttl_days"`
}

// GetAWSProfile returns the AWS profile, honouring AWS_PROFILE_OVERRIDE and
// dropping the profile on ECS/Lambda where the task role applies.
func (c ArchiveConfig) GetAWSProfile() string {
	if v := os.Getenv("AWS_PROFILE_OVERRIDE"); v != "" {
		if v == "none" || v == "iam" {
			return ""
		}
		return v
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

func (c ArchiveConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * day
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether email addresses are masked in logs. Default true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Policy converts the cooldown and lease settings into the engine policy.
// Zero values keep the defaults; a negative company cooldown disables it.
func (c *Config) Policy() policy.Policy {
	p := policy.Default()
	set := func(d *time.Duration, days int) {
		if days > 0 {
			*d = time.Duration(days) * day
		}
	}
	for ch, days := range map[domain.Channel]int{
		domain.ChannelEmail:    c.Cooldowns.EmailDays,
		domain.ChannelLinkedIn: c.Cooldowns.LinkedInDays,
		domain.ChannelPhone:    c.Cooldowns.PhoneDays,
	} {
		if days > 0 {
			p.ChannelCooldowns[ch] = time.Duration(days) * day
		}
	}
	for st, days := range map[domain.DispositionStatus]int{
		domain.StatusCompletedNoResponse: c.Cooldowns.NoResponseDays,
		domain.StatusRepliedNeutral:      c.Cooldowns.NeutralDays,
		domain.StatusRepliedNegative:     c.Cooldowns.NegativeDays,
		domain.StatusLostClosed:          c.Cooldowns.LostClosedDays,
	} {
		if days > 0 {
			p.OutcomeCooldowns[st] = time.Duration(days) * day
		}
	}
	set(&p.CompanyCooldown, c.Cooldowns.CompanyDays)
	set(&p.StaleAfter, c.Cooldowns.StaleAfterDays)
	set(&p.LeaseTTL, c.Ownership.LeaseDays)
	return p
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, cfg.Validate()
}

// Default returns a configuration with every default applied, for running
// without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "./data/leads.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMin == 0 {
		cfg.Database.ConnMaxLifetimeMin = 30
	}
	if cfg.TAM.Channel == "" {
		cfg.TAM.Channel = string(domain.ChannelEmail)
	}
	if cfg.TAM.BurnWindow == 0 {
		cfg.TAM.BurnWindow = 4
	}
	if cfg.TAM.WarningWeeks == 0 {
		cfg.TAM.WarningWeeks = 8
	}
	if cfg.TAM.CriticalWeeks == 0 {
		cfg.TAM.CriticalWeeks = 4
	}
	if cfg.TAM.Concurrency == 0 {
		cfg.TAM.Concurrency = 4
	}
	if cfg.Fill.FreshRatio == 0 {
		cfg.Fill.FreshRatio = 0.7
	}
	if cfg.Fill.MaxPerCompany == 0 {
		cfg.Fill.MaxPerCompany = 3
	}
	if cfg.Maintenance.IntervalMinutes == 0 {
		cfg.Maintenance.IntervalMinutes = 24 * 60
	}
	if cfg.Maintenance.BatchSize == 0 {
		cfg.Maintenance.BatchSize = 500
	}
	if cfg.Maintenance.LockTTLMinutes == 0 {
		cfg.Maintenance.LockTTLMinutes = 30
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "./data/snapshots"
	}
	if cfg.Archive.S3Prefix == "" {
		cfg.Archive.S3Prefix = "tam-snapshots"
	}
	if cfg.Archive.AWSRegion == "" {
		cfg.Archive.AWSRegion = "us-west-2"
	}
	if cfg.Archive.TTLDays == 0 {
		cfg.Archive.TTLDays = 730
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "lead_disposition"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects settings the engine cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if _, err := domain.ParseChannel(cfg.TAM.Channel); err != nil {
		return fmt.Errorf("tam.channel: %w", err)
	}
	if cfg.Fill.FreshRatio < 0 || cfg.Fill.FreshRatio > 1 {
		return fmt.Errorf("fill.fresh_ratio must be within [0, 1], got %v", cfg.Fill.FreshRatio)
	}
	if cfg.TAM.CriticalWeeks > cfg.TAM.WarningWeeks {
		return fmt.Errorf("tam.critical_weeks must not exceed tam.warning_weeks")
	}
	switch cfg.Archive.Type {
	case "", "local":
	case "aws":
		if cfg.Archive.S3Bucket == "" && cfg.Archive.DynamoDBTable == "" {
			return fmt.Errorf("archive.type aws needs s3_bucket or dynamodb_table")
		}
	default:
		return fmt.Errorf("unknown archive type %q", cfg.Archive.Type)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first when present. An empty path skips the file
// and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else if cfg, err = Load(path); err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
	}
	if v := os.Getenv("ARCHIVE_DYNAMODB_TABLE"); v != "" {
		cfg.Archive.DynamoDBTable = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Archive.AWSRegion = v
	}

	return cfg, cfg.Validate()
}
