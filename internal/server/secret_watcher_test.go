package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"atsboost/internal/config"
	"atsboost/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentsPath = "secret/data/atsboost/payments"

// mockSecretReader serves versioned secrets from memory
type mockSecretReader struct {
	mu      sync.Mutex
	secrets map[string]*config.VaultSecret
	err     error
}

func (m *mockSecretReader) GetSecretV2(path string) (*config.VaultSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.secrets[path], nil
}

func (m *mockSecretReader) put(version int64, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[paymentsPath] = &config.VaultSecret{Data: data, Version: version}
}

func newMockReader(version int64, secret string) *mockSecretReader {
	m := &mockSecretReader{secrets: map[string]*config.VaultSecret{}}
	m.put(version, map[string]any{config.VaultKeyWebhookSecret: secret})
	return m
}

func TestSecretWatcherRotatesOnNewVersion(t *testing.T) {
	reader := newMockReader(1, "whsec_v1")
	target := webhook.NewRotatingSecret("whsec_v1")
	sw := NewSecretWatcher(reader, paymentsPath, time.Hour, target, nil)

	require.NoError(t, sw.Start())
	t.Cleanup(func() { _ = sw.Stop() })

	changed, err := sw.checkForUpdates()
	require.NoError(t, err)
	assert.False(t, changed, "same version must not rotate")

	reader.put(2, map[string]any{config.VaultKeyWebhookSecret: "whsec_v2"})
	changed, err = sw.checkForUpdates()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "whsec_v2", target.Secret())

	status := sw.Status()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, int64(2), status["last_version"])
	assert.Equal(t, 1, status["rotations"])
}

func TestSecretWatcherSameValueNewVersion(t *testing.T) {
	reader := newMockReader(1, "whsec_v1")
	target := webhook.NewRotatingSecret("whsec_v1")
	sw := NewSecretWatcher(reader, paymentsPath, time.Hour, target, nil)

	reader.put(3, map[string]any{config.VaultKeyWebhookSecret: "whsec_v1"})
	changed, err := sw.checkForUpdates()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(3), sw.Status()["last_version"])
}

func TestSecretWatcherMissingKey(t *testing.T) {
	reader := newMockReader(1, "whsec_v1")
	target := webhook.NewRotatingSecret("whsec_v1")
	sw := NewSecretWatcher(reader, paymentsPath, time.Hour, target, nil)
	require.NoError(t, sw.Start())
	t.Cleanup(func() { _ = sw.Stop() })

	reader.put(2, map[string]any{"other": "value"})
	changed, err := sw.checkForUpdates()
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, "whsec_v1", target.Secret())
	assert.Contains(t, sw.Status()["last_error"], config.VaultKeyWebhookSecret)
}

func TestSecretWatcherReadError(t *testing.T) {
	reader := newMockReader(1, "whsec_v1")
	reader.err = errors.New("permission denied")
	sw := NewSecretWatcher(reader, paymentsPath, time.Hour, webhook.NewRotatingSecret("whsec_v1"), nil)

	_, err := sw.checkForUpdates()
	require.Error(t, err)
	assert.Equal(t, "permission denied", sw.Status()["last_error"])
}

func TestSecretWatcherStartStop(t *testing.T) {
	sw := NewSecretWatcher(newMockReader(1, "s"), paymentsPath, 0, webhook.NewRotatingSecret("s"), nil)
	assert.Equal(t, "5m0s", sw.Status()["poll_interval"])

	require.NoError(t, sw.Start())
	assert.Error(t, sw.Start())
	require.NoError(t, sw.Stop())
	require.NoError(t, sw.Stop())
	assert.Equal(t, false, sw.Status()["running"])
}

func TestSecretWatcherKeepsPreviousSecretForOneInterval(t *testing.T) {
	reader := newMockReader(1, "whsec_v1")
	target := webhook.NewRotatingSecret("whsec_v1")
	sw := NewSecretWatcher(reader, paymentsPath, time.Hour, target, nil)

	reader.put(2, map[string]any{config.VaultKeyWebhookSecret: "whsec_v2"})
	changed, err := sw.checkForUpdates()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, []string{"whsec_v2", "whsec_v1"}, target.Secrets())
}

func TestSecretWatcherPollsAfterRestart(t *testing.T) {
	reader := newMockReader(1, "whsec_v1")
	target := webhook.NewRotatingSecret("whsec_v1")
	sw := NewSecretWatcher(reader, paymentsPath, 10*time.Millisecond, target, nil)

	require.NoError(t, sw.Start())
	require.NoError(t, sw.Stop())
	require.NoError(t, sw.Start())
	t.Cleanup(func() { _ = sw.Stop() })

	reader.put(2, map[string]any{config.VaultKeyWebhookSecret: "whsec_v2"})
	require.Eventually(t, func() bool {
		return target.Secret() == "whsec_v2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, true, sw.Status()["running"])
}
