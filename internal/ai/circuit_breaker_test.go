package ai

import (
	"errors"
	"testing"
	"time"

	"atsboost/internal/config"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      3,
		FailureThreshold: 0.6,
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Enabled = false

	cb := NewAICircuitBreaker("gemini", cfg, nil)
	assert.Nil(t, cb)
	assert.True(t, cb.IsHealthy())
	assert.Equal(t, map[string]any{"enabled": false}, cb.GetStats())

	calls := 0
	_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) {
		calls++
		return &genai.GenerateContentResponse{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerInitialState(t *testing.T) {
	cb := NewAICircuitBreaker("gemini", testBreakerConfig(), nil)
	require.NotNil(t, cb)

	stats := cb.GetStats()
	assert.Equal(t, "AI-gemini", stats["name"])
	assert.Equal(t, "closed", stats["state"])
	assert.Equal(t, true, stats["enabled"])
	assert.True(t, cb.IsHealthy())
}

func TestCircuitBreakerTripsAfterFailures(t *testing.T) {
	cb := NewAICircuitBreaker("gemini", testBreakerConfig(), nil)
	boom := errors.New("upstream 503")

	for range 3 {
		_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.False(t, cb.IsHealthy())
	assert.Equal(t, "open", cb.GetStats()["state"])

	called := false
	_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestCircuitBreakerStaysClosedBelowMinRequests(t *testing.T) {
	cb := NewAICircuitBreaker("gemini", testBreakerConfig(), nil)

	for range 2 {
		_, _ = cb.Execute(func() (*genai.GenerateContentResponse, error) { return nil, errors.New("fail") })
	}
	assert.True(t, cb.IsHealthy())
}
