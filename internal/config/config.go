package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Clans          ClanConfig           `yaml:"clans"`
	Shop           ShopConfig           `yaml:"shop"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	// AdminRole gates admin-only commands such as /auction-start.
	AdminRole string `yaml:"admin_role"`
	// AnnounceChannel receives milestone announcements.
	AnnounceChannel string `yaml:"announce_channel"`
}

// DatabaseConfig holds store settings. Driver selects the backing store:
// "memory" keeps all engine state in process, "postgres" persists it.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// CatalogConfig points at the static item/mission/milestone definitions.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ClanConfig holds clan registry settings.
type ClanConfig struct {
	// NameBlocklist rejects clan names containing any of these words.
	NameBlocklist []string `yaml:"name_blocklist"`
}

// ShopConfig holds shop rotation settings.
type ShopConfig struct {
	// WindowLength is how long a rotation window stays valid per locale.
	WindowLength time.Duration `yaml:"window_length"`
	// Slots is the maximum number of items per window.
	Slots int `yaml:"slots"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "memory",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Catalog: CatalogConfig{
			Path: "catalog.yaml",
		},
		Shop: ShopConfig{
			WindowLength: 3 * time.Hour,
			Slots:        5,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "guildbot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "guildbot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "memory", "postgres":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"memory\" or \"postgres\"", c.Database.Driver)
	}
	if c.Shop.Slots < 1 {
		return fmt.Errorf("shop.slots must be at least 1, got %d", c.Shop.Slots)
	}
	if c.Shop.WindowLength <= 0 {
		return fmt.Errorf("shop.window_length must be positive, got %s", c.Shop.WindowLength)
	}
	return nil
}
