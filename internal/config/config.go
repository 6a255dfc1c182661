package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is read when CONFIG_FILE is not set
const DefaultConfigFile = "configs/config.yaml"

// EnvPrefix namespaces environment overrides, e.g. P2PDESK_DATABASE_PASSWORD
const EnvPrefix = "P2PDESK"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig           `mapstructure:"database"`
	Cache      CacheConfig              `mapstructure:"cache"`
	Server     ServerConfig             `mapstructure:"server"`
	Log        LogConfig                `mapstructure:"log"`
	Monitor    MonitorConfig            `mapstructure:"monitor"`
	Settlement SettlementConfig         `mapstructure:"settlement"`
	Browser    BrowserConfig            `mapstructure:"browser"`
	Metrics    MetricsConfig            `mapstructure:"metrics"`
	Profiles   map[string]ProfileConfig `mapstructure:"profiles"`
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// CacheConfig represents Redis configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	Database int           `mapstructure:"database"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig selects the log level (debug, info, warn, error)
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MonitorConfig tunes the price monitor
type MonitorConfig struct {
	// Mode is live (browser venue) or test (simulated quotes)
	Mode         string        `mapstructure:"mode"`
	Profile      string        `mapstructure:"profile"`
	TopN         int           `mapstructure:"top_n"`
	IdleWait     time.Duration `mapstructure:"idle_wait"`
	MarketDelay  time.Duration `mapstructure:"market_delay"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
}

// SettlementConfig tunes single-order settlement runs
type SettlementConfig struct {
	Profile        string        `mapstructure:"profile"`
	ReleaseTimeout time.Duration `mapstructure:"release_timeout"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
	ActivityURL    string        `mapstructure:"activity_url"`
	VenueBaseURL   string        `mapstructure:"venue_base_url"`
	PageSettle     time.Duration `mapstructure:"page_settle"`
}

// BrowserConfig configures browser launches and profile locks
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	InstallDrivers    bool          `mapstructure:"install_drivers"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// MetricsConfig configures metric delivery for one-shot commands.
// An empty PushgatewayURL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ProfileConfig locates one persistent browser profile
type ProfileConfig struct {
	Path     string `mapstructure:"path"`
	LockFile string `mapstructure:"lock_file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "p2pdesk",
			Database: "p2pdesk",
			SSLMode:  "disable",
		},
		Cache: CacheConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
			TTL:     30 * time.Minute,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			Mode:         "live",
			Profile:      "exchange",
			TopN:         10,
			IdleWait:     60 * time.Second,
			MarketDelay:  5 * time.Second,
			ErrorBackoff: 30 * time.Second,
		},
		Settlement: SettlementConfig{
			Profile:        "exchange",
			ReleaseTimeout: 60 * time.Second,
			GracePeriod:    5 * time.Minute,
			PageSettle:     3 * time.Second,
		},
		Browser: BrowserConfig{
			ViewportWidth:     1280,
			ViewportHeight:    800,
			StaleAfter:        5 * time.Minute,
			HeartbeatInterval: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Job: "p2pdesk_settle",
		},
		Profiles: map[string]ProfileConfig{},
	}
}

// Load loads configuration from the file named by CONFIG_FILE, falling back
// to configs/config.yaml. A missing default file yields the defaults.
func Load() (*Config, error) {
	path := DefaultConfigFile
	explicit := false
	if envFile := os.Getenv("CONFIG_FILE"); envFile != "" {
		path = envFile
		explicit = true
	}
	return LoadFile(path, explicit)
}

// LoadFile reads path over the defaults and applies P2PDESK_ environment
// overrides. When required is false a missing file is not an error.
func LoadFile(path string, required bool) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if required || !(errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AutomaticEnv only resolves keys viper already knows, so secrets that
// usually live outside the file are bound explicitly
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.host", "database.port", "database.user", "database.password", "database.database",
		"cache.host", "cache.port", "cache.password",
		"server.port", "log.level", "monitor.mode", "browser.headless",
		"metrics.pushgateway_url",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Monitor.Mode {
	case "live", "test":
	default:
		return fmt.Errorf("invalid monitor.mode %q: want live or test", c.Monitor.Mode)
	}
	if c.Browser.HeartbeatInterval >= c.Browser.StaleAfter {
		return fmt.Errorf("browser.heartbeat_interval (%s) must be shorter than browser.stale_after (%s)",
			c.Browser.HeartbeatInterval, c.Browser.StaleAfter)
	}
	for name, p := range c.Profiles {
		if p.Path == "" {
			return fmt.Errorf("profile %q has no path", name)
		}
	}
	return nil
}

// Profile returns the named profile
func (c *Config) Profile(name string) (ProfileConfig, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return ProfileConfig{}, fmt.Errorf("unknown browser profile %q", name)
	}
	return p, nil
}

// ProfileNames lists configured profiles in a stable order
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
