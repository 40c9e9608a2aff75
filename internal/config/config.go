package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/adserving/internal/eligibility"
	"github.com/ignite/adserving/internal/serving"
	"github.com/ignite/adserving/internal/storage"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Serving       ServingConfig       `yaml:"serving"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	AntiTargeting AntiTargetingConfig `yaml:"anti_targeting"`
	Events        EventsConfig        `yaml:"events"`
	State         StateConfig         `yaml:"state"`
	Redis         RedisConfig         `yaml:"redis"`
	Database      DatabaseConfig      `yaml:"database"`
	AWS           AWSConfig           `yaml:"aws"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Profile       ProfileConfig       `yaml:"profile"`
	Preferences   PreferencesConfig   `yaml:"preferences"`
	Auth          AuthConfig          `yaml:"auth"`
	Log           LogConfig           `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ServingConfig holds cadence, caps and retry behaviour.
type ServingConfig struct {
	AdType                   string `yaml:"ad_type"`
	AdsPerHour               int    `yaml:"ads_per_hour"`
	AdsPerDay                int    `yaml:"ads_per_day"`
	MaxSegmentsPerCategory   int    `yaml:"max_segments_per_category"`
	ColdStartDelaySeconds    int    `yaml:"cold_start_delay_seconds"`
	ShortRetryDelaySeconds   int    `yaml:"short_retry_delay_seconds"`
	FailureRetryDelaySeconds int    `yaml:"failure_retry_delay_seconds"`
	CycleTimeoutSeconds      int    `yaml:"cycle_timeout_seconds"`
	// RetryFailedCycles defaults to true when omitted.
	RetryFailedCycles *bool `yaml:"retry_failed_cycles"`
	RetryWhenNoAds    bool  `yaml:"retry_when_no_ads"`
	// RoundRobin enables the seen creative/advertiser preference; defaults to true.
	RoundRobin *bool      `yaml:"round_robin"`
	Timezone   string     `yaml:"timezone"`
	AutoStart  bool       `yaml:"auto_start"`
	Lock       LockConfig `yaml:"lock"`
}

// LockConfig enables the cross-replica cycle lock.
type LockConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Key        string `yaml:"key"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the lock TTL as a duration.
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Scheduler converts the serving section into the scheduler's cadence config.
func (c ServingConfig) Scheduler() serving.Config {
	retryFailed := true
	if c.RetryFailedCycles != nil {
		retryFailed = *c.RetryFailedCycles
	}
	return serving.Config{
		AdsPerHour:        c.AdsPerHour,
		ColdStartDelay:    time.Duration(c.ColdStartDelaySeconds) * time.Second,
		ShortRetryDelay:   time.Duration(c.ShortRetryDelaySeconds) * time.Second,
		FailureRetryDelay: time.Duration(c.FailureRetryDelaySeconds) * time.Second,
		RetryFailedCycles: retryFailed,
		RetryWhenNoAds:    c.RetryWhenNoAds,
		CycleTimeout:      time.Duration(c.CycleTimeoutSeconds) * time.Second,
	}
}

// Caps returns the global per-type caps.
func (c ServingConfig) Caps() eligibility.Caps {
	return eligibility.Caps{AdsPerHour: c.AdsPerHour, AdsPerDay: c.AdsPerDay}
}

// RoundRobinEnabled reports the round_robin flag with its default.
func (c ServingConfig) RoundRobinEnabled() bool {
	return c.RoundRobin == nil || *c.RoundRobin
}

// Location resolves the timezone used for dayparts and daily caps.
func (c ServingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// CatalogConfig selects where creatives come from.
type CatalogConfig struct {
	// Backend is "postgres" or "document".
	Backend string `yaml:"backend"`
	// Location is a file path or s3://bucket/key for the document backend.
	Location              string `yaml:"location"`
	ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
}

// ReloadInterval returns the document reload interval; zero disables reloading.
func (c CatalogConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalSeconds) * time.Second
}

// AntiTargetingConfig points at the anti-targeting document. Empty disables it.
type AntiTargetingConfig struct {
	Location string `yaml:"location"`
}

// EventsConfig selects the ad event log.
type EventsConfig struct {
	// Backend is "postgres" or "file".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// RetentionDays enables purging of older PostgreSQL events; zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// Retention returns the retention window as a duration.
func (c EventsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// StateConfig selects the serving state store.
type StateConfig struct {
	// Backend is "file", "redis", "dynamodb", "postgres" or "memory".
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// RedisConfig holds the Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// DatabaseConfig holds the PostgreSQL connection.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// AWSConfig holds shared AWS settings for S3 and DynamoDB.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// Options converts to storage.AWSOptions.
func (c AWSConfig) Options() storage.AWSOptions {
	return storage.AWSOptions{
		Region:          c.Region,
		Profile:         c.GetProfile(),
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Endpoint:        c.Endpoint,
	}
}

// DeliveryConfig selects how notifications are shown.
type DeliveryConfig struct {
	// Mode is "log" or "webhook".
	Mode           string `yaml:"mode"`
	WebhookURL     string `yaml:"webhook_url"`
	WebhookToken   string `yaml:"webhook_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	TitleTemplate  string `yaml:"title_template"`
	BodyTemplate   string `yaml:"body_template"`
}

// Timeout returns the configured timeout as a duration
func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProfileConfig names the user profile served by this process.
type ProfileConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// PreferencesConfig selects where opt-outs and flagged creative sets are kept.
type PreferencesConfig struct {
	// Backend is "file", "redis" or "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig holds admin API authentication settings
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"` // seconds
	// BaseURL is the public origin used for the OAuth redirect; defaults to http://host:port.
	BaseURL string `yaml:"base_url"`
	// APIToken is accepted as a bearer token for machine clients.
	APIToken string `yaml:"api_token"`
}

// GoogleEnabled reports whether the Google login flow is configured.
func (c AuthConfig) GoogleEnabled() bool {
	return c.Enabled && c.GoogleClientID != ""
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// Redact defaults to true.
	Redact *bool `yaml:"redact"`
}

// RedactEnabled reports the redact flag with its default.
func (c LogConfig) RedactEnabled() bool {
	return c.Redact == nil || *c.Redact
}

// Load reads and parses the configuration file. An empty path yields defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}

	s := &cfg.Serving
	if s.AdType == "" {
		s.AdType = "ad_notification"
	}
	if s.AdsPerHour == 0 {
		s.AdsPerHour = 10
	}
	if s.AdsPerDay == 0 {
		s.AdsPerDay = 20
	}
	if s.MaxSegmentsPerCategory == 0 {
		s.MaxSegmentsPerCategory = 3
	}
	if s.ColdStartDelaySeconds == 0 {
		s.ColdStartDelaySeconds = int(serving.DefaultColdStartDelay / time.Second)
	}
	if s.ShortRetryDelaySeconds == 0 {
		s.ShortRetryDelaySeconds = int(serving.DefaultShortRetryDelay / time.Second)
	}
	if s.FailureRetryDelaySeconds == 0 {
		s.FailureRetryDelaySeconds = int(serving.DefaultFailureRetryDelay / time.Second)
	}
	if s.CycleTimeoutSeconds == 0 {
		s.CycleTimeoutSeconds = int(serving.DefaultCycleTimeout / time.Second)
	}
	if s.Lock.Key == "" {
		s.Lock.Key = "adserving:cycle"
	}
	if s.Lock.TTLSeconds == 0 {
		s.Lock.TTLSeconds = 60
	}

	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = "document"
	}
	if cfg.Catalog.Location == "" && cfg.Catalog.Backend == "document" {
		cfg.Catalog.Location = "./data/catalog.json"
	}
	if cfg.Events.Backend == "" {
		cfg.Events.Backend = "file"
	}
	if cfg.Events.Path == "" {
		cfg.Events.Path = "./data/events.jsonl"
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = "file"
	}
	if cfg.State.Path == "" {
		cfg.State.Path = "./data/state.json"
	}
	if cfg.State.DynamoDBTable == "" {
		cfg.State.DynamoDBTable = "adserving-state"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Delivery.Mode == "" {
		cfg.Delivery.Mode = "log"
	}
	if cfg.Delivery.TimeoutSeconds == 0 {
		cfg.Delivery.TimeoutSeconds = 10
	}
	if cfg.Delivery.MaxRetries == 0 {
		cfg.Delivery.MaxRetries = 2
	}
	if cfg.Profile.ID == "" {
		cfg.Profile.ID = "default"
	}
	if cfg.Profile.Path == "" {
		cfg.Profile.Path = "./data/profile.yaml"
	}
	if cfg.Preferences.Backend == "" {
		cfg.Preferences.Backend = "file"
	}
	if cfg.Preferences.Path == "" {
		cfg.Preferences.Path = "./data/preferences.json"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "adserving_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400 // 24 hours
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SERVER_PORT: %v", ErrInvalidConfig, err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("ADS_PER_HOUR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ADS_PER_HOUR: %v", ErrInvalidConfig, err)
		}
		cfg.Serving.AdsPerHour = n
	}
	if v := os.Getenv("ADS_PER_DAY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ADS_PER_DAY: %v", ErrInvalidConfig, err)
		}
		cfg.Serving.AdsPerDay = n
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretAccessKey = v
	}
	if v := os.Getenv("AWS_ENDPOINT_URL"); v != "" {
		cfg.AWS.Endpoint = v
	}
	if v := os.Getenv("CATALOG_LOCATION"); v != "" {
		cfg.Catalog.Location = v
	}
	if v := os.Getenv("DELIVERY_WEBHOOK_URL"); v != "" {
		cfg.Delivery.WebhookURL = v
	}
	if v := os.Getenv("DELIVERY_WEBHOOK_TOKEN"); v != "" {
		cfg.Delivery.WebhookToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Auth secrets are never kept in config.yaml
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: AUTH_ENABLED: %v", ErrInvalidConfig, err)
		}
		cfg.Auth.Enabled = b
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}
	if v := os.Getenv("AUTH_BASE_URL"); v != "" {
		cfg.Auth.BaseURL = v
	}
	if v := os.Getenv("ADMIN_API_TOKEN"); v != "" {
		cfg.Auth.APIToken = v
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (cfg *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		bad("server.port %d out of range", cfg.Server.Port)
	}
	s := cfg.Serving
	if s.AdsPerHour < 0 {
		bad("serving.ads_per_hour must be >= 0")
	}
	if s.AdsPerDay < 0 {
		bad("serving.ads_per_day must be >= 0")
	}
	if cfg.Events.RetentionDays < 0 {
		bad("events.retention_days must be >= 0")
	}
	if s.MaxSegmentsPerCategory < 1 {
		bad("serving.max_segments_per_category must be >= 1")
	}
	if s.ColdStartDelaySeconds < 0 || s.ShortRetryDelaySeconds < 0 || s.FailureRetryDelaySeconds < 0 {
		bad("serving delays must be >= 0")
	}
	if _, err := s.Location(); err != nil {
		bad("serving.timezone: %v", err)
	}

	switch cfg.Catalog.Backend {
	case "postgres":
		if cfg.Database.URL == "" {
			bad("catalog.backend postgres needs database.url")
		}
	case "document":
		if cfg.Catalog.Location == "" {
			bad("catalog.location is required for the document backend")
		}
	default:
		bad("catalog.backend %q unknown", cfg.Catalog.Backend)
	}

	switch cfg.Events.Backend {
	case "postgres":
		if cfg.Database.URL == "" {
			bad("events.backend postgres needs database.url")
		}
	case "file":
	default:
		bad("events.backend %q unknown", cfg.Events.Backend)
	}

	switch cfg.State.Backend {
	case "file", "memory", "dynamodb":
	case "redis":
		if !cfg.Redis.Enabled() {
			bad("state.backend redis needs redis.addr")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			bad("state.backend postgres needs database.url")
		}
	default:
		bad("state.backend %q unknown", cfg.State.Backend)
	}

	switch cfg.Preferences.Backend {
	case "file", "memory":
	case "redis":
		if !cfg.Redis.Enabled() {
			bad("preferences.backend redis needs redis.addr")
		}
	default:
		bad("preferences.backend %q unknown", cfg.Preferences.Backend)
	}

	if a := cfg.Auth; a.Enabled {
		if a.GoogleClientID == "" && a.APIToken == "" {
			bad("auth.enabled needs auth.google_client_id or auth.api_token")
		}
		if a.GoogleClientID != "" && (a.GoogleClientSecret == "" || a.AllowedDomain == "") {
			bad("auth.google_client_id needs google_client_secret and allowed_domain")
		}
		if a.CookieMaxAge < 0 {
			bad("auth.cookie_max_age must be >= 0")
		}
	}

	switch cfg.Delivery.Mode {
	case "log":
	case "webhook":
		if cfg.Delivery.WebhookURL == "" {
			bad("delivery.webhook_url is required for webhook mode")
		}
	default:
		bad("delivery.mode %q unknown", cfg.Delivery.Mode)
	}

	return errors.Join(errs...)
}
