// config.go defines the configuration for the LostLine service and its
// loading chain: YAML file, .env file, environment variables, OS keyring.
package bot

import (
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	// Company describes the business whose lost-and-found desk this bot runs.
	Company CompanyConfig `yaml:"company"`

	// API configures the language-model endpoint. An empty key means the
	// capability is unavailable and every caller uses its deterministic path.
	API APIConfig `yaml:"api"`

	// Storage configures the SQLite database.
	Storage StorageConfig `yaml:"storage"`

	// Gateway configures the HTTP server (webhook + admin + health).
	Gateway GatewayConfig `yaml:"gateway"`

	// WhatsApp configures the optional direct WhatsApp channel.
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`

	// Notify configures staff notifications for filed reports.
	Notify NotifyConfig `yaml:"notify"`

	// Vision marks whether the external image-analysis service is configured.
	// The pipeline itself is an external collaborator; only the capability
	// flag is surfaced here (and on /health).
	Vision VisionConfig `yaml:"vision"`

	// Maintenance configures the background report/session maintenance job.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Logging configures log level and format.
	Logging LoggingConfig `yaml:"logging"`
}

// CompanyConfig is the static product/company text embedded in prompts and
// fallback templates.
type CompanyConfig struct {
	// Name is the brand name (e.g. "Northgate Mall").
	Name string `yaml:"name"`

	// Product is the service/product name users may ask about.
	Product string `yaml:"product"`

	// Description is the short company blurb used in prompts and the
	// company-info template.
	Description string `yaml:"description"`
}

// Keywords returns the brand terms the classifier matches for
// learn_about_company.
func (c CompanyConfig) Keywords() []string {
	return []string{c.Name, c.Product}
}

// APIConfig configures the LLM provider endpoint.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// Timeout bounds each model call so a slow provider degrades to the
	// deterministic fallback instead of hanging the webhook.
	Timeout time.Duration `yaml:"timeout"`
}

// Configured reports whether the language-model capability is usable.
func (a APIConfig) Configured() bool { return a.APIKey != "" }

// StorageConfig configures the SQLite database path.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig configures the HTTP server.
type GatewayConfig struct {
	Address string `yaml:"address"`

	// AdminTokenHash is the bcrypt hash of the bearer token required on
	// /admin/* endpoints. Empty disables auth (loopback-only deployments).
	AdminTokenHash string `yaml:"admin_token_hash"`

	// Twilio holds the webhook channel credentials. Only the auth token is
	// needed server-side (request signature validation).
	Twilio TwilioConfig `yaml:"twilio"`
}

// TwilioConfig configures the Twilio messaging webhook channel.
type TwilioConfig struct {
	AuthToken string `yaml:"auth_token"`

	// ValidateSignature enables X-Twilio-Signature verification on inbound
	// webhooks.
	ValidateSignature bool `yaml:"validate_signature"`
}

// Configured reports whether the messaging channel credentials are present.
func (t TwilioConfig) Configured() bool { return t.AuthToken != "" }

// WhatsAppConfig configures the optional direct WhatsApp channel.
type WhatsAppConfig struct {
	Enabled bool `yaml:"enabled"`

	// DatabasePath is the SQLite file for the WhatsApp device session.
	// Defaults to the main storage path when empty.
	DatabasePath string `yaml:"database_path"`

	RespondToGroups bool `yaml:"respond_to_groups"`
}

// NotifyConfig configures staff notification sinks.
type NotifyConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig configures the ops Discord alert channel.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Configured reports whether Discord notifications are usable.
func (d DiscordConfig) Configured() bool { return d.Token != "" && d.ChannelID != "" }

// VisionConfig marks the external vision service capability.
type VisionConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether the vision capability is set up.
func (v VisionConfig) Configured() bool { return v.APIKey != "" }

// MaintenanceConfig configures the background maintenance job.
type MaintenanceConfig struct {
	// Schedule is a cron expression or shorthand (default "@daily").
	Schedule string `yaml:"schedule"`

	// UnclaimedAfterDays is how long a PENDING report stays open before it
	// is marked UNCLAIMED (default 30).
	UnclaimedAfterDays int `yaml:"unclaimed_after_days"`

	// SessionTTLDays is how long an idle session is kept (default 90).
	SessionTTLDays int `yaml:"session_ttl_days"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Company: CompanyConfig{
			Name:        "LostLine",
			Product:     "LostLine",
			Description: "We reunite people with their lost belongings.",
		},
		API: APIConfig{
			Model:   "gpt-4o-mini",
			Timeout: 20 * time.Second,
		},
		Storage: StorageConfig{Path: "./data/lostline.db"},
		Gateway: GatewayConfig{Address: ":8086"},
		Maintenance: MaintenanceConfig{
			Schedule:           "@daily",
			UnclaimedAfterDays: 30,
			SessionTTLDays:     90,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig reads the YAML config file, layering it over defaults. A
// missing file is not an error; defaults plus environment apply. A .env
// file in the working directory is loaded first; existing environment
// variables are never overwritten by it.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Run on defaults; secrets still come from the environment.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overlays secrets from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("LOSTLINE_API_KEY"); v != "" {
		c.API.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.API.APIKey == "" {
		c.API.APIKey = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.Gateway.Twilio.AuthToken = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Notify.Discord.Token = v
	}
	if v := os.Getenv("VISION_API_KEY"); v != "" {
		c.Vision.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.API.Timeout <= 0 {
		c.API.Timeout = 20 * time.Second
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/lostline.db"
	}
	if c.Gateway.Address == "" {
		c.Gateway.Address = ":8086"
	}
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = "@daily"
	}
	if c.Maintenance.UnclaimedAfterDays <= 0 {
		c.Maintenance.UnclaimedAfterDays = 30
	}
	if c.Maintenance.SessionTTLDays <= 0 {
		c.Maintenance.SessionTTLDays = 90
	}
}

// LogLevel maps the configured level string to slog.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
