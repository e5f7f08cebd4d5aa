package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// AuthConfig contains the operator account and session settings.
// PasswordHash and Salt are base64 PBKDF2 values produced by the
// -hash-password flag.
type AuthConfig struct {
	Username          string `mapstructure:"username"`
	PasswordHash      string `mapstructure:"password_hash"`
	Salt              string `mapstructure:"salt"`
	Iterations        int    `mapstructure:"iterations"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
}

// PathsConfig contains filesystem layout settings
type PathsConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	DataDir string `mapstructure:"data_dir"`
}

// FetchConfig contains remote download settings
type FetchConfig struct {
	ProbeTimeout       string `mapstructure:"probe_timeout"`
	TransferTimeout    string `mapstructure:"transfer_timeout"`
	MaxWorkers         int    `mapstructure:"max_workers"`
	MinSplitSizeMB     int    `mapstructure:"min_split_size_mb"`
	BandwidthLimitMBps int    `mapstructure:"bandwidth_limit_mbps"`
}

// RateLimitConfig contains login throttling settings
type RateLimitConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	Window      string `mapstructure:"window"`
	Lockout     string `mapstructure:"lockout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains transfer-history database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("server.bind_addr", "127.0.0.1:23000")
	viper.SetDefault("server.read_timeout", "30s")
	// Long enough for a share stream or remote fetch response.
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("auth.username", "admin")
	viper.SetDefault("auth.iterations", 200000)
	viper.SetDefault("auth.session_ttl_minutes", 60)
	viper.SetDefault("paths.base_dir", ".")
	viper.SetDefault("paths.data_dir", "")
	viper.SetDefault("fetch.probe_timeout", "30s")
	viper.SetDefault("fetch.transfer_timeout", "60s")
	viper.SetDefault("fetch.max_workers", 4)
	viper.SetDefault("fetch.min_split_size_mb", 1)
	viper.SetDefault("fetch.bandwidth_limit_mbps", 0)
	viper.SetDefault("ratelimit.max_attempts", 5)
	viper.SetDefault("ratelimit.window", "5m")
	viper.SetDefault("ratelimit.lockout", "5m")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("database.path", "")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if c.Auth.PasswordHash == "" || c.Auth.Salt == "" {
		return fmt.Errorf("auth.password_hash and auth.salt are required (generate with -hash-password)")
	}
	if c.Auth.Iterations <= 0 {
		return fmt.Errorf("auth.iterations must be positive")
	}
	if c.Auth.SessionTTLMinutes <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}

	if c.Fetch.MaxWorkers < 1 || c.Fetch.MaxWorkers > 4 {
		return fmt.Errorf("fetch.max_workers must be between 1 and 4")
	}
	if c.Fetch.MinSplitSizeMB < 1 {
		return fmt.Errorf("fetch.min_split_size_mb must be positive")
	}

	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("ratelimit.max_attempts must be positive")
	}
	if _, err := time.ParseDuration(c.RateLimit.Window); err != nil {
		return fmt.Errorf("invalid ratelimit.window: %w", err)
	}
	if _, err := time.ParseDuration(c.RateLimit.Lockout); err != nil {
		return fmt.Errorf("invalid ratelimit.lockout: %w", err)
	}
	if _, err := time.ParseDuration(c.Fetch.ProbeTimeout); err != nil {
		return fmt.Errorf("invalid fetch.probe_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Fetch.TransferTimeout); err != nil {
		return fmt.Errorf("invalid fetch.transfer_timeout: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetDataDir returns the data directory, defaulting to {base_dir}/data
func (c *PathsConfig) GetDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.BaseDir, "data")
}

// GetDownloadsDir returns the downloads root under the data directory
func (c *PathsConfig) GetDownloadsDir() string {
	return filepath.Join(c.GetDataDir(), "downloads")
}

// GetArchiveDir returns the archive output directory
func (c *PathsConfig) GetArchiveDir() string {
	return filepath.Join(c.GetDataDir(), "archives")
}

// GetSharesFile returns the share ledger document path
func (c *PathsConfig) GetSharesFile() string {
	return filepath.Join(c.GetDataDir(), "shares.json")
}

// GetBookmarksFile returns the bookmark document path
func (c *PathsConfig) GetBookmarksFile() string {
	return filepath.Join(c.GetDataDir(), "bookmarks.json")
}

// GetHistoryPath returns the history database path, defaulting to
// {data_dir}/history.db
func (c *Config) GetHistoryPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Paths.GetDataDir(), "history.db")
}

// GetSessionTTL returns the session lifetime as time.Duration
func (c *AuthConfig) GetSessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// GetWindow returns the failure counting window as time.Duration
func (c *RateLimitConfig) GetWindow() time.Duration {
	d, _ := time.ParseDuration(c.Window)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetLockout returns the lockout duration as time.Duration
func (c *RateLimitConfig) GetLockout() time.Duration {
	d, _ := time.ParseDuration(c.Lockout)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetProbeTimeout returns the metadata probe timeout as time.Duration
func (c *FetchConfig) GetProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ProbeTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetTransferTimeout returns the per-worker transfer timeout as time.Duration
func (c *FetchConfig) GetTransferTimeout() time.Duration {
	d, _ := time.ParseDuration(c.TransferTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetMinSplitSize returns the multi-worker threshold in bytes
func (c *FetchConfig) GetMinSplitSize() int64 {
	return int64(c.MinSplitSizeMB) * 1024 * 1024
}

// GetBandwidthLimit returns the transfer throttle in bytes per second,
// or 0 for unlimited
func (c *FetchConfig) GetBandwidthLimit() int64 {
	return int64(c.BandwidthLimitMBps) * 1024 * 1024
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 120 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *ServerConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
