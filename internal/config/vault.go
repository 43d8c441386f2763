package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"atsboost/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	Secrets VaultSecrets `mapstructure:"secrets"`

	// Watch polls the payments secret and rotates the webhook secret
	Watch VaultWatchConfig `mapstructure:"watch"`
}

// VaultWatchConfig controls polling of rotated secrets
type VaultWatchConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

// VaultSecrets holds KVv2 paths. Empty paths are skipped.
type VaultSecrets struct {
	APIKeys   string `mapstructure:"apiKeys"`   // "keys": comma-separated list
	GeminiKey string `mapstructure:"geminiKey"` // "api_key"
	Payments  string `mapstructure:"payments"`  // "webhook_secret"
	Datastore string `mapstructure:"datastore"` // "url" and "service_key"
}

// Keys read from the secrets above
const (
	VaultKeyAPIKeys       = "keys"
	VaultKeyGeminiKey     = "api_key"
	VaultKeyWebhookSecret = "webhook_secret"
	VaultKeyDatastoreURL  = "url"
	VaultKeyServiceKey    = "service_key"
)

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// VaultSecret represents a secret read from Vault's KVv2 engine.
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// String returns the trimmed string stored under key, or ""
func (s *VaultSecret) String(key string) string {
	if s == nil {
		return ""
	}
	v, _ := s.Data[key].(string)
	return strings.TrimSpace(v)
}

// NewVaultClient connects to Vault. It returns nil, nil when Vault is
// disabled.
func NewVaultClient(config VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	if !config.Enabled {
		logger.Debug("Vault integration disabled")
		return nil, nil
	}

	apiCfg := api.DefaultConfig()
	if config.Address != "" {
		apiCfg.Address = config.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	token, err := resolveVaultToken(config, logger)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		logger.LogError(err, "Failed to connect to Vault", "address", apiCfg.Address)
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	logger.Info("Connected to Vault",
		"address", apiCfg.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken prefers the inline token over the token file
func resolveVaultToken(config VaultConfig, logger *errors.Logger) (string, error) {
	token := config.Token
	if token == "" && config.TokenFile != "" {
		raw, err := os.ReadFile(config.TokenFile)
		if err != nil {
			logger.LogError(err, "Failed to read Vault token file", "file", config.TokenFile)
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// GetSecretV2 retrieves a secret from a Vault KVv2 store.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}
	vc.logger.Debug("Reading secret from Vault", "path", path)

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}

	data, err := vc.extractSecretData(secret, path)
	if err != nil {
		return nil, err
	}

	metadata, ok := secret.Data["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	version, err := parseVersionValue(metadata["version"], path)
	if err != nil {
		return nil, err
	}

	return &VaultSecret{Data: data, Version: version}, nil
}

func (vc *VaultClient) extractSecretData(secret *api.Secret, path string) (map[string]any, error) {
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	return data, nil
}

// parseVersionValue accepts the numeric encodings the Vault API returns
func parseVersionValue(versionRaw any, path string) (int64, error) {
	switch v := versionRaw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	case nil:
		return 0, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	default:
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, versionRaw)
	}
}

// vaultSecretSource binds one configured path to the config fields it fills
type vaultSecretSource struct {
	name  string
	path  string
	apply func(*Config, *VaultSecret) int
}

func vaultSources(config *Config) []vaultSecretSource {
	s := config.Vault.Secrets
	return []vaultSecretSource{
		{"api_keys", s.APIKeys, applyAPIKeysSecret},
		{"gemini_key", s.GeminiKey, applyGeminiSecret},
		{"payments", s.Payments, func(c *Config, v *VaultSecret) int {
			if applyPaymentSecret(c, v) {
				return 1
			}
			return 0
		}},
		{"datastore", s.Datastore, applyDatastoreSecret},
	}
}

// ApplyVaultSecrets overlays secrets read from Vault onto config. A
// configured path that cannot be read is an error.
func ApplyVaultSecrets(config *Config, logger *errors.Logger) error {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	if !config.Vault.Enabled {
		logger.Debug("Vault integration disabled, skipping secret loading")
		return nil
	}

	client, err := NewVaultClient(config.Vault, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vault client: %w", err)
	}

	for _, src := range vaultSources(config) {
		if src.path == "" {
			continue
		}
		secret, err := client.GetSecretV2(src.path)
		if err != nil {
			logger.LogError(err, "Failed to load secret from Vault", "secret", src.name, "path", src.path)
			return fmt.Errorf("failed to load %s from vault: %w", src.name, err)
		}
		if n := src.apply(config, secret); n > 0 {
			logger.Info("Secret loaded from Vault", "secret", src.name, "fields", n, "version", secret.Version)
		} else {
			logger.Warn("Vault secret had no usable fields", "secret", src.name, "path", src.path)
		}
	}
	return nil
}

func applyAPIKeysSecret(config *Config, secret *VaultSecret) int {
	raw := secret.String(VaultKeyAPIKeys)
	if raw == "" {
		return 0
	}
	var keys []string
	for part := range strings.SplitSeq(raw, ",") {
		if k := strings.TrimSpace(part); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0
	}
	config.Server.APIKeys = keys
	return 1
}

func applyGeminiSecret(config *Config, secret *VaultSecret) int {
	key := secret.String(VaultKeyGeminiKey)
	if key == "" {
		return 0
	}
	config.AI.APIKey = key
	return 1
}

// applyPaymentSecret copies the webhook secret out of a payments secret
// and reports whether one was present.
func applyPaymentSecret(config *Config, secret *VaultSecret) bool {
	value := WebhookSecretFrom(secret)
	if value == "" {
		return false
	}
	config.Payments.WebhookSecret = value
	return true
}

// WebhookSecretFrom extracts the webhook secret from a payments secret
func WebhookSecretFrom(secret *VaultSecret) string {
	return secret.String(VaultKeyWebhookSecret)
}

// applyDatastoreSecret copies url and service key into the datastore
// config and returns how many fields were applied.
func applyDatastoreSecret(config *Config, secret *VaultSecret) int {
	count := 0
	if v := secret.String(VaultKeyDatastoreURL); v != "" {
		config.Datastore.URL = v
		count++
	}
	if v := secret.String(VaultKeyServiceKey); v != "" {
		config.Datastore.ServiceKey = v
		count++
	}
	return count
}
