// keyring.go provides credential storage in the operating system's native
// keyring (Linux: Secret Service, macOS: Keychain, Windows: Credential
// Manager).
//
// Priority for resolving the LLM API key:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (LOSTLINE_API_KEY, OPENAI_API_KEY)
//  3. .env file (loaded by godotenv)
//  4. config.yaml value (least secure, plaintext on disk)
package bot

import (
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "lostline"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__lostline_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey fills cfg.API.APIKey from the keyring when the config and
// environment did not provide one. Logged once at startup; a key that stays
// empty just means the language-model capability is off.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if cfg.API.APIKey != "" {
		return
	}
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}
	logger.Warn("no LLM API key configured, classifier and responder will use deterministic fallbacks")
}
