package server

import (
	"fmt"
	"sync"
	"time"

	"atsboost/internal/config"
	"atsboost/internal/errors"
	"atsboost/internal/webhook"
)

// SecretReader reads a versioned KVv2 secret
type SecretReader interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// SecretWatcher polls the Vault payments secret and rotates the webhook
// signing secret when a newer version appears.
type SecretWatcher struct {
	mu sync.RWMutex

	client       SecretReader
	secretPath   string
	pollInterval time.Duration
	target       *webhook.RotatingSecret
	logger       *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	rotations   int
	lastError   string
	lastChecked time.Time
}

// NewSecretWatcher creates a watcher that updates target. The replaced
// secret keeps verifying for one poll interval after a rotation.
func NewSecretWatcher(client SecretReader, secretPath string, pollInterval time.Duration, target *webhook.RotatingSecret, logger *errors.Logger) *SecretWatcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	target.SetGrace(pollInterval)
	return &SecretWatcher{
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		target:       target,
		logger:       logger,
	}
}

// Start records the current version and begins polling
func (sw *SecretWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return fmt.Errorf("secret watcher is already running")
	}

	// Secrets were already applied at load time; only newer versions rotate
	if secret, err := sw.client.GetSecretV2(sw.secretPath); err == nil && secret != nil {
		sw.lastVersion = secret.Version
	}

	sw.stopChan = make(chan struct{})
	sw.running = true
	go sw.pollLoop(sw.stopChan)
	sw.logger.Info("Webhook secret watcher started",
		"secret_path", sw.secretPath,
		"poll_interval", sw.pollInterval,
		"version", sw.lastVersion)
	return nil
}

// Stop stops polling
func (sw *SecretWatcher) Stop() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return nil
	}
	close(sw.stopChan)
	sw.running = false
	sw.logger.Info("Webhook secret watcher stopped")
	return nil
}

func (sw *SecretWatcher) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(sw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := sw.checkForUpdates(); err != nil {
				sw.logger.LogError(err, "Failed to check Vault for webhook secret updates",
					"secret_path", sw.secretPath)
			}
		case <-stop:
			return
		}
	}
}

// checkForUpdates applies the secret if its version moved forward and
// reports whether the active secret changed.
func (sw *SecretWatcher) checkForUpdates() (bool, error) {
	secret, err := sw.client.GetSecretV2(sw.secretPath)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.lastChecked = time.Now()

	if err != nil {
		sw.lastError = err.Error()
		return false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Version <= sw.lastVersion {
		sw.lastError = ""
		return false, nil
	}

	value := config.WebhookSecretFrom(secret)
	if value == "" {
		sw.lastError = fmt.Sprintf("version %d has no %s", secret.Version, config.VaultKeyWebhookSecret)
		return false, fmt.Errorf("secret %s: %s", sw.secretPath, sw.lastError)
	}

	sw.lastVersion = secret.Version
	sw.lastError = ""
	if !sw.target.Set(value) {
		return false, nil
	}
	sw.rotations++
	sw.logger.Info("Webhook secret rotated from Vault", "version", secret.Version)
	return true, nil
}

// Status returns the current status for the stats endpoint
func (sw *SecretWatcher) Status() map[string]any {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	status := map[string]any{
		"running":       sw.running,
		"poll_interval": sw.pollInterval.String(),
		"secret_path":   sw.secretPath,
		"last_version":  sw.lastVersion,
		"rotations":     sw.rotations,
	}
	if !sw.lastChecked.IsZero() {
		status["last_checked"] = sw.lastChecked.UTC().Format(time.RFC3339)
	}
	if sw.lastError != "" {
		status["last_error"] = sw.lastError
	}
	return status
}
