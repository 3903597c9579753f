// Package config loads service settings from a YAML file, an optional .env
// file and CRMCAL_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/directory"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
)

const envPrefix = "CRMCAL_"

type HTTPConfig struct {
	Listen       string        `yaml:"listen"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type GRPCConfig struct {
	// Listen is empty when the gRPC event store is disabled.
	Listen string `yaml:"listen"`
}

type PostgresConfig struct {
	// DSN selects the Postgres store. Without it events live in memory.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// IssueTokens turns on POST /v1/auth/token, which signs whatever identity
// the caller asks for. Leave it off outside development.
type AuthConfig struct {
	Secret      string        `yaml:"secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	IssueTokens bool          `yaml:"issue_tokens"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type RecurrenceConfig struct {
	// Policy is "partial" or "all_or_nothing".
	Policy       string `yaml:"policy"`
	MaxInstances int    `yaml:"max_instances"`
}

type DirectoryConfig struct {
	// RefreshCron is a robfig/cron spec for reloading the cached directory.
	RefreshCron string `yaml:"refresh"`
	// Subjects seeds the in-memory directory when no Postgres DSN is set.
	Subjects []directory.Subject `yaml:"subjects"`
}

// Config is the top-level service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Recurrence RecurrenceConfig `yaml:"recurrence"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Timezone   string           `yaml:"timezone"`
	LogLevel   string           `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Listen:       ":8080",
			MaxBodyBytes: 1 << 20,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		GRPC:       GRPCConfig{Listen: ":9090"},
		Postgres:   PostgresConfig{MaxOpenConns: 10},
		Auth:       AuthConfig{TokenTTL: 12 * time.Hour},
		RateLimit:  RateLimitConfig{PerSecond: 20, Burst: 40},
		Recurrence: RecurrenceConfig{Policy: "partial", MaxInstances: 1000},
		Directory:  DirectoryConfig{RefreshCron: directory.DefaultRefreshSpec},
		Timezone:   "UTC",
		LogLevel:   "info",
	}
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	def := Default()
	if strings.TrimSpace(c.HTTP.Listen) == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = def.HTTP.MaxBodyBytes
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = def.HTTP.ReadTimeout
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = def.HTTP.WriteTimeout
	}
	if c.Postgres.MaxOpenConns <= 0 {
		c.Postgres.MaxOpenConns = def.Postgres.MaxOpenConns
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = def.Auth.TokenTTL
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = def.RateLimit.PerSecond
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if strings.TrimSpace(c.Recurrence.Policy) == "" {
		c.Recurrence.Policy = def.Recurrence.Policy
	}
	if c.Recurrence.MaxInstances <= 0 {
		c.Recurrence.MaxInstances = def.Recurrence.MaxInstances
	}
	if strings.TrimSpace(c.Directory.RefreshCron) == "" {
		c.Directory.RefreshCron = def.Directory.RefreshCron
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = def.Timezone
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if _, err := scheduling.ParseRecurringPolicy(c.Recurrence.Policy); err != nil {
		return fmt.Errorf("recurrence: %w", err)
	}
	if c.GRPC.Listen != "" && c.GRPC.Listen == c.HTTP.Listen {
		return errors.New("http and grpc listen on the same address")
	}
	return nil
}

// RecurringPolicy returns the parsed recurrence policy.
func (c *Config) RecurringPolicy() scheduling.RecurringPolicy {
	p, _ := scheduling.ParseRecurringPolicy(c.Recurrence.Policy)
	return p
}

// Location returns the default timezone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads path (if non-empty), applies .env and environment overrides,
// normalises and validates the result. A missing file is an error only when
// path was given explicitly.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set.
// Missing files are skipped.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("HTTP_ADDR"); ok {
		c.HTTP.Listen = v
	}
	if v, ok := get("GRPC_ADDR"); ok {
		if v == "off" {
			v = ""
		}
		c.GRPC.Listen = v
	}
	if v, ok := get("PG_DSN"); ok {
		c.Postgres.DSN = v
	}
	if v, ok := get("AUTH_SECRET"); ok {
		c.Auth.Secret = v
	}
	if v, ok := get("TIMEZONE"); ok {
		c.Timezone = v
	}
	if v, ok := get("RECURRING_POLICY"); ok {
		c.Recurrence.Policy = v
	}
	if v, ok := get("DIRECTORY_REFRESH"); ok {
		c.Directory.RefreshCron = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = splitList(v)
	}
	if v, ok := get("TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTOKEN_TTL: %w", envPrefix, err)
		}
		c.Auth.TokenTTL = d
	}
	if v, ok := get("AUTH_ISSUE_TOKENS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sAUTH_ISSUE_TOKENS: %w", envPrefix, err)
		}
		c.Auth.IssueTokens = b
	}
	if v, ok := get("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", envPrefix, err)
		}
		c.RateLimit.PerSecond = f
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"RATE_LIMIT_BURST", &c.RateLimit.Burst},
		{"RECURRING_MAX", &c.Recurrence.MaxInstances},
		{"PG_MAX_OPEN_CONNS", &c.Postgres.MaxOpenConns},
	}
	for _, it := range ints {
		if v, ok := get(it.name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, it.name, err)
			}
			*it.dst = n
		}
	}
	if v, ok := get("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_BODY_BYTES: %w", envPrefix, err)
		}
		c.HTTP.MaxBodyBytes = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
