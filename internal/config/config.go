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
)

// Modes selecting which adapter serves a workflow collaborator.
const (
	ModeBackend  = "backend"
	ModeDirect   = "direct"
	ModePostgres = "postgres"
	ModeDynamoDB = "dynamodb"
	ModeSES      = "ses"

	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Backend     BackendConfig     `yaml:"backend"`
	Share       ShareConfig       `yaml:"share"`
	Generation  GenerationConfig  `yaml:"generation"`
	Reference   ReferenceConfig   `yaml:"reference"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	SES         SESConfig         `yaml:"ses"`
	AWS         AWSConfig         `yaml:"aws"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Recipients  RecipientsConfig  `yaml:"recipients"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                  int      `yaml:"port"`
	Host                  string   `yaml:"host"`
	CORSOrigins           []string `yaml:"cors_origins"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// RequestTimeout bounds a single API request, including upstream calls.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether email addresses are masked in logs (default true).
func (c LogConfig) Redact() bool { return c.RedactPII == nil || *c.RedactPII }

// BackendConfig holds the newsletter base API settings. The API key is sent
// as X-API-KEY on every request.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     *int   `yaml:"max_retries"`
}

// Timeout returns the timeout as a time.Duration
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScrapeRetries returns how many times a failed /scrapeRef call is retried.
// Unset means 2; an explicit 0 disables retries. Writes are never retried.
func (c BackendConfig) ScrapeRetries() int {
	if c.MaxRetries == nil {
		return 2
	}
	if *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

// ShareConfig holds the base URL shareable newsletter links are built on.
type ShareConfig struct {
	BaseURL string `yaml:"base_url"`
}

// GenerationConfig selects and tunes the text-generation provider.
type GenerationConfig struct {
	Provider        string  `yaml:"provider"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Region          string  `yaml:"region"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

// Timeout returns the timeout as a time.Duration
func (c GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ModelID returns the configured model or the provider's default. Provider
// defaults are resolved late because GENERATION_PROVIDER may change the
// provider after the file is loaded.
func (c GenerationConfig) ModelID() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderAnthropic {
		return "claude-3-5-haiku-latest"
	}
	return "anthropic.claude-3-haiku-20240307-v1:0"
}

// Endpoint returns the Messages API base URL for the anthropic provider.
func (c GenerationConfig) Endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.anthropic.com"
}

// ReferenceConfig controls how reference text is obtained.
// Mode "backend" calls the base API's scrape endpoint; "direct" fetches the
// page from this process.
type ReferenceConfig struct {
	Mode            string `yaml:"mode"`
	UserAgent       string `yaml:"user_agent"`
	MaxChars        int    `yaml:"max_chars"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`

	// AllowPrivateTargets lets direct mode fetch loopback, private and
	// link-local addresses. Off by default.
	AllowPrivateTargets bool `yaml:"allow_private_targets"`
}

// Timeout returns the timeout as a time.Duration
func (c ReferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long fetched references stay in Redis.
func (c ReferenceConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// PersistenceConfig selects where saved newsletters go.
type PersistenceConfig struct {
	Mode        string `yaml:"mode"`
	DynamoTable string `yaml:"dynamo_table"`
}

// DispatchConfig selects how newsletter emails are sent.
type DispatchConfig struct {
	Mode        string `yaml:"mode"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

// SESConfig holds AWS SES credentials for direct dispatch
type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// AWSConfig holds the region and optional shared profile for AWS clients
// other than SES.
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis settings; an empty address disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RecipientsConfig holds recipient file limits and the S3 bucket that
// stored lists are read from.
type RecipientsConfig struct {
	MaxFileBytes int64  `yaml:"max_file_bytes"`
	S3Bucket     string `yaml:"s3_bucket"`
}

// WorkflowConfig holds editor session settings.
type WorkflowConfig struct {
	SingleFlight      *bool        `yaml:"single_flight"`
	LockTTLSeconds    int          `yaml:"lock_ttl_seconds"`
	SessionTTLMinutes int          `yaml:"session_ttl_minutes"`
	Revert            RevertConfig `yaml:"revert"`
}

// SingleFlightEnabled reports whether overlapping workflow steps are
// rejected (default true).
func (c WorkflowConfig) SingleFlightEnabled() bool {
	return c.SingleFlight == nil || *c.SingleFlight
}

// LockTTL bounds how long a step may hold its session lock.
func (c WorkflowConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SessionTTL is how long an idle session is kept.
func (c WorkflowConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// RevertConfig holds the delays after which success labels return to rest.
type RevertConfig struct {
	GenerateMillis int `yaml:"generate_ms"`
	SaveMillis     int `yaml:"save_ms"`
	CopyMillis     int `yaml:"copy_ms"`
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c RevertConfig) Generate() time.Duration { return millis(c.GenerateMillis) }
func (c RevertConfig) Save() time.Duration     { return millis(c.SaveMillis) }
func (c RevertConfig) Copy() time.Duration     { return millis(c.CopyMillis) }

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
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
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
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 30
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = ProviderBedrock
	}
	if cfg.Generation.MaxOutputTokens == 0 {
		cfg.Generation.MaxOutputTokens = 1000
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.1
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 60
	}
	if cfg.Reference.Mode == "" {
		cfg.Reference.Mode = ModeBackend
	}
	if cfg.Reference.UserAgent == "" {
		cfg.Reference.UserAgent = "newsletter-ai/1.0"
	}
	if cfg.Reference.MaxChars == 0 {
		cfg.Reference.MaxChars = 20000
	}
	if cfg.Reference.TimeoutSeconds == 0 {
		cfg.Reference.TimeoutSeconds = 20
	}
	if cfg.Reference.CacheTTLMinutes == 0 {
		cfg.Reference.CacheTTLMinutes = 60
	}
	if cfg.Persistence.Mode == "" {
		cfg.Persistence.Mode = ModeBackend
	}
	if cfg.Persistence.DynamoTable == "" {
		cfg.Persistence.DynamoTable = "newsletters"
	}
	if cfg.Dispatch.Mode == "" {
		cfg.Dispatch.Mode = ModeBackend
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Recipients.MaxFileBytes == 0 {
		cfg.Recipients.MaxFileBytes = 5 << 20
	}
	if cfg.Workflow.LockTTLSeconds == 0 {
		cfg.Workflow.LockTTLSeconds = 180
	}
	if cfg.Workflow.SessionTTLMinutes == 0 {
		cfg.Workflow.SessionTTLMinutes = 24 * 60
	}
	if cfg.Workflow.Revert.GenerateMillis == 0 {
		cfg.Workflow.Revert.GenerateMillis = 4000
	}
	if cfg.Workflow.Revert.SaveMillis == 0 {
		cfg.Workflow.Revert.SaveMillis = 3000
	}
	if cfg.Workflow.Revert.CopyMillis == 0 {
		cfg.Workflow.Revert.CopyMillis = 2000
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars when deployed. An empty path
// skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := os.Getenv("NEWSLETTER_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("NEWSLETTER_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("SHARE_LINK_BASE_URL"); v != "" {
		cfg.Share.BaseURL = v
	}
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		cfg.Generation.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate reports settings that make the selected adapters unusable.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Share.BaseURL == "" {
		errs = append(errs, errors.New("share.base_url is required"))
	}
	needsBackend := cfg.Reference.Mode == ModeBackend ||
		cfg.Persistence.Mode == ModeBackend ||
		cfg.Dispatch.Mode == ModeBackend
	if needsBackend && cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required when any mode is \"backend\""))
	}
	switch cfg.Generation.Provider {
	case ProviderBedrock:
	case ProviderAnthropic:
		if cfg.Generation.APIKey == "" {
			errs = append(errs, errors.New("generation.api_key is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generation.provider %q", cfg.Generation.Provider))
	}
	switch cfg.Reference.Mode {
	case ModeBackend, ModeDirect:
	default:
		errs = append(errs, fmt.Errorf("unknown reference.mode %q", cfg.Reference.Mode))
	}
	switch cfg.Persistence.Mode {
	case ModeBackend, ModeDynamoDB:
	case ModePostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres persistence"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown persistence.mode %q", cfg.Persistence.Mode))
	}
	switch cfg.Dispatch.Mode {
	case ModeBackend:
	case ModeSES:
		if cfg.Dispatch.FromAddress == "" {
			errs = append(errs, errors.New("dispatch.from_address is required for ses dispatch"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dispatch.mode %q", cfg.Dispatch.Mode))
	}
	return errors.Join(errs...)
}
