package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/optimistic"
	"github.com/mohallaa/mohallaa/pkg/upload"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "mohallaa.yaml"

	// EnvPrefix prefixes environment overrides, e.g. MOHALLAA_SERVER_ADDR.
	EnvPrefix = "MOHALLAA"

	// DefaultAddr is the default API listen address.
	DefaultAddr = "localhost:8080"

	// DefaultDatabase is the default SQLite database path.
	DefaultDatabase = "mohallaa.db"

	// DefaultIssuer is the default JWT issuer.
	DefaultIssuer = "mohallaa"
)

// Config is the complete mohallaa.yaml configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Upload     UploadConfig     `mapstructure:"upload" yaml:"upload"`
	Optimistic OptimisticConfig `mapstructure:"optimistic" yaml:"optimistic"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains API server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig contains database settings.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`
}

// AuthConfig contains token settings.
type AuthConfig struct {
	// Secret signs access tokens. Required to serve.
	Secret string `mapstructure:"secret" yaml:"secret"`

	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// UploadConfig contains media upload settings.
type UploadConfig struct {
	// Backend is disk or s3.
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	Dir          string        `mapstructure:"dir" yaml:"dir"`
	MaxFileSize  int64         `mapstructure:"max_file_size" yaml:"max_file_size"`
	AllowedTypes []string      `mapstructure:"allowed_types" yaml:"allowed_types"`
	TempExpiry   time.Duration `mapstructure:"temp_expiry" yaml:"temp_expiry"`
	S3           S3Config      `mapstructure:"s3" yaml:"s3"`
}

// S3Config points uploads at an S3-compatible bucket.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style,omitempty"`
}

// OptimisticConfig tunes the optimistic coordinators.
type OptimisticConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Policy is drop, supersede or queue.
	Policy   string `mapstructure:"policy" yaml:"policy"`
	QueueMax int    `mapstructure:"queue_max" yaml:"queue_max"`

	// RateLimit is actions per second; zero disables the budget.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// SearchConfig tunes search.
type SearchConfig struct {
	Debounce      time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Limit         int           `mapstructure:"limit" yaml:"limit"`
	SourceTimeout time.Duration `mapstructure:"source_timeout" yaml:"source_timeout"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path: DefaultDatabase,
		},
		Auth: AuthConfig{
			Issuer:   DefaultIssuer,
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Upload: UploadConfig{
			Backend:      "disk",
			Dir:          "uploads",
			MaxFileSize:  10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			TempExpiry:   time.Hour,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Optimistic: OptimisticConfig{
			Timeout:  30 * time.Second,
			Policy:   "drop",
			QueueMax: 10,
		},
		Search: SearchConfig{
			Debounce:      300 * time.Millisecond,
			Limit:         5,
			SourceTimeout: 5 * time.Second,
		},
	}
}

// newViper returns a viper instance carrying every default, so each key can
// be overridden from the environment even when the file omits it.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := New()
	defaults := map[string]any{
		"server.addr":                 d.Server.Addr,
		"server.shutdown_timeout":     d.Server.ShutdownTimeout,
		"store.path":                  d.Store.Path,
		"auth.secret":                 d.Auth.Secret,
		"auth.issuer":                 d.Auth.Issuer,
		"auth.token_ttl":              d.Auth.TokenTTL,
		"log.level":                   d.Log.Level,
		"log.format":                  d.Log.Format,
		"upload.backend":              d.Upload.Backend,
		"upload.dir":                  d.Upload.Dir,
		"upload.max_file_size":        d.Upload.MaxFileSize,
		"upload.allowed_types":        d.Upload.AllowedTypes,
		"upload.temp_expiry":          d.Upload.TempExpiry,
		"upload.s3.bucket":            d.Upload.S3.Bucket,
		"upload.s3.prefix":            d.Upload.S3.Prefix,
		"upload.s3.region":            d.Upload.S3.Region,
		"upload.s3.endpoint":          d.Upload.S3.Endpoint,
		"upload.s3.access_key_id":     d.Upload.S3.AccessKeyID,
		"upload.s3.secret_access_key": d.Upload.S3.SecretAccessKey,
		"upload.s3.use_path_style":    d.Upload.S3.UsePathStyle,
		"optimistic.timeout":          d.Optimistic.Timeout,
		"optimistic.policy":           d.Optimistic.Policy,
		"optimistic.queue_max":        d.Optimistic.QueueMax,
		"optimistic.rate_limit":       d.Optimistic.RateLimit,
		"optimistic.rate_burst":       d.Optimistic.RateBurst,
		"search.debounce":             d.Search.Debounce,
		"search.limit":                d.Search.Limit,
		"search.source_timeout":       d.Search.SourceTimeout,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Load reads configuration from the specified directory.
// It looks for mohallaa.yaml in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from path, applying environment overrides.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.New(apperrors.CodeInvalidConfig).
				WithDetail("No " + ConfigFileName + " found at " + path).
				Wrap(err)
		}
		return nil, apperrors.New(apperrors.CodeInvalidConfig).Wrap(err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfig).
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			Wrap(err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.configPath = path
	return cfg, nil
}

// LoadEnv builds configuration from defaults and environment overrides only.
func LoadEnv() (*Config, error) {
	return decode(newViper())
}

// LoadOrEnv loads path when it exists and falls back to LoadEnv otherwise.
func LoadOrEnv(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return LoadEnv()
	}
	return LoadFile(path)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfig).
			WithDetail("Failed to decode configuration: " + err.Error()).
			Wrap(err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return apperrors.Newf(apperrors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return apperrors.New(apperrors.CodeInvalidConfig).Wrap(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return apperrors.New(apperrors.CodeInvalidConfig).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = d.Auth.Issuer
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = d.Auth.TokenTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	// Upload
	if c.Upload.Backend == "" {
		c.Upload.Backend = d.Upload.Backend
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = d.Upload.Dir
	}
	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = d.Upload.MaxFileSize
	}
	if c.Upload.TempExpiry <= 0 {
		c.Upload.TempExpiry = d.Upload.TempExpiry
	}
	if c.Upload.S3.Region == "" {
		c.Upload.S3.Region = d.Upload.S3.Region
	}

	// Optimistic; a zero timeout is meaningful (disabled) and kept.
	if c.Optimistic.Policy == "" {
		c.Optimistic.Policy = d.Optimistic.Policy
	}
	if c.Optimistic.QueueMax <= 0 {
		c.Optimistic.QueueMax = d.Optimistic.QueueMax
	}
	if c.Optimistic.RateLimit > 0 && c.Optimistic.RateBurst <= 0 {
		c.Optimistic.RateBurst = 1
	}

	// Search
	if c.Search.Debounce <= 0 {
		c.Search.Debounce = d.Search.Debounce
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = d.Search.Limit
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.New(apperrors.CodeInvalidConfig).WithDetail(fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, ok := optimistic.ParsePolicy(c.Optimistic.Policy); !ok {
		return invalid("optimistic.policy must be drop, supersede or queue, got %q", c.Optimistic.Policy)
	}
	if c.Optimistic.Timeout < 0 {
		return invalid("optimistic.timeout cannot be negative")
	}
	switch c.Upload.Backend {
	case "disk":
	case "s3":
		if c.Upload.S3.Bucket == "" {
			return invalid("upload.s3.bucket is required for the s3 backend")
		}
	default:
		return invalid("upload.backend must be disk or s3, got %q", c.Upload.Backend)
	}
	return nil
}

// ValidateServe additionally checks what serving the API needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Auth.Secret) < 16 {
		return apperrors.New(apperrors.CodeInvalidConfig).
			WithDetail("auth.secret must be at least 16 characters (set MOHALLAA_AUTH_SECRET)")
	}
	return nil
}

// Policy returns the configured same-target policy.
func (c *Config) Policy() optimistic.Policy {
	p, _ := optimistic.ParsePolicy(c.Optimistic.Policy)
	return p
}

// OptimisticOptions converts the optimistic section into coordinator options.
func (c *Config) OptimisticOptions() []optimistic.Option {
	opts := []optimistic.Option{
		optimistic.WithPolicy(c.Policy(), c.Optimistic.QueueMax),
		optimistic.WithTimeout(c.Optimistic.Timeout),
	}
	if c.Optimistic.RateLimit > 0 {
		opts = append(opts, optimistic.WithRateLimit(c.Optimistic.RateLimit, c.Optimistic.RateBurst))
	}
	return opts
}

// UploadLimits returns the upload validation limits.
func (c *Config) UploadLimits() *upload.Config {
	return &upload.Config{
		MaxFileSize:  c.Upload.MaxFileSize,
		AllowedTypes: c.Upload.AllowedTypes,
		TempExpiry:   c.Upload.TempExpiry,
	}
}

// S3Options returns the client options for the s3 upload backend.
func (c *Config) S3Options() upload.S3Options {
	s := c.Upload.S3
	return upload.S3Options{
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		UsePathStyle:    s.UsePathStyle,
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
