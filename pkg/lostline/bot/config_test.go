package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Gateway.Address != ":8086" {
		t.Errorf("Gateway.Address = %q", cfg.Gateway.Address)
	}
	if cfg.API.Timeout != 20*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Maintenance.Schedule != "@daily" {
		t.Errorf("Maintenance.Schedule = %q", cfg.Maintenance.Schedule)
	}
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
company:
  name: FindersKeep
  description: We reunite people with their lost belongings.
gateway:
  address: ":9090"
  twilio:
    auth_token: tok123
    validate_signature: true
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Company.Name != "FindersKeep" {
		t.Errorf("Company.Name = %q", cfg.Company.Name)
	}
	if cfg.Gateway.Address != ":9090" {
		t.Errorf("Gateway.Address = %q", cfg.Gateway.Address)
	}
	if !cfg.Gateway.Twilio.Configured() || !cfg.Gateway.Twilio.ValidateSignature {
		t.Error("twilio settings not applied")
	}
	// Unset sections keep their defaults.
	if cfg.Storage.Path != "./data/lostline.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.LogLevel().String() != "DEBUG" {
		t.Errorf("LogLevel = %v", cfg.LogLevel())
	}
}

func TestLoadConfig_EnvSecrets(t *testing.T) {
	t.Setenv("LOSTLINE_API_KEY", "sk-test")
	t.Setenv("TWILIO_AUTH_TOKEN", "twtok")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.API.Configured() || cfg.API.APIKey != "sk-test" {
		t.Errorf("API.APIKey = %q", cfg.API.APIKey)
	}
	if cfg.Gateway.Twilio.AuthToken != "twtok" {
		t.Errorf("Twilio.AuthToken = %q", cfg.Gateway.Twilio.AuthToken)
	}
}

func TestCompanyKeywords(t *testing.T) {
	t.Parallel()

	c := CompanyConfig{Name: "FindersKeep", Product: "FindersKeep Lost & Found"}
	kws := c.Keywords()
	if len(kws) != 2 || kws[0] != "FindersKeep" {
		t.Errorf("Keywords() = %v", kws)
	}
}
