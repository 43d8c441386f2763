package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"atsboost/internal/ai"
	"atsboost/internal/cache"
	"atsboost/internal/config"
	"atsboost/internal/observability"
	"atsboost/internal/scoring"
	"atsboost/internal/types"
	"atsboost/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey        = "test-api-key-123456"
	testWebhookSecret = "whsec_server_test"
)

const sampleCV = `Jane Doe
jane@example.com | +27 82 555 0101 | Cape Town

Professional Summary
Software engineer with 6 years of experience building Go services.

Experience
- Led migration to Kubernetes, reducing deploy time by 40%
- Built payment integrations processing R2m monthly

Education
BSc Computer Science, University of Cape Town

Skills
Go, PostgreSQL, Redis, Docker, AWS
`

type subscriptionStore struct {
	mu      sync.Mutex
	records map[string]*types.SubscriptionRecord
	logs    []types.PaymentLog
}

func (s *subscriptionStore) FindByCheckoutID(_ context.Context, id string) (*types.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *subscriptionStore) UpdateByCheckoutID(_ context.Context, id string, upd types.SubscriptionUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return 0, nil
	}
	if upd.Type != nil {
		rec.Type = *upd.Type
	}
	if upd.ClearCheckoutID {
		rec.CheckoutID = nil
	}
	return 1, nil
}

func (s *subscriptionStore) InsertPaymentLog(_ context.Context, entry types.PaymentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testAppConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{Provider: config.ProviderHeuristic},
		Payments: config.PaymentsConfig{
			SignatureHeader: "webhook-signature",
			TimestampHeader: "webhook-timestamp",
			PaymentMethod:   "yoco",
			Path:            "/webhooks/payment",
		},
	}
}

func disabledObservability(t *testing.T) *observability.ObservabilityManager {
	t.Helper()
	om, err := observability.NewObservabilityManager(observability.ObservabilityConfig{Enabled: false}, nil)
	require.NoError(t, err)
	return om
}

func newTestServer(t *testing.T, sc ServerConfig, deps Dependencies) (*Server, http.Handler) {
	t.Helper()
	if deps.Analysis == nil {
		deps.Analysis = ai.NewServiceWith(nil, nil, ai.NewHeuristicAnalyzer(scoring.NewSeededSource(42)))
	}
	srv := NewServer(testAppConfig(), sc, deps, nil)
	t.Cleanup(func() {
		if srv.RateLimiter != nil {
			srv.RateLimiter.Close()
		}
	})
	return srv, srv.setupRoutes(disabledObservability(t))
}

func scoreRequest(t *testing.T, body any, apiKey string) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req
}

func TestScoreEndpoint(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{APIKeys: []string{testAPIKey}}, Dependencies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, scoreRequest(t, ScoreRequest{CVText: sampleCV, JobDescription: "Go engineer with Kubernetes"}, testAPIKey))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got types.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, types.SourceHeuristic, got.Source)
	assert.False(t, got.Cached)
	assert.GreaterOrEqual(t, got.Scores.Overall, 0)
	assert.LessOrEqual(t, got.Scores.Overall, 100)
	assert.NotEmpty(t, got.Strengths)
}

func TestScoreEndpointAuth(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{APIKeys: []string{testAPIKey}}, Dependencies{})

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, scoreRequest(t, ScoreRequest{CVText: sampleCV}, ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, scoreRequest(t, ScoreRequest{CVText: sampleCV}, "wrong"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := scoreRequest(t, ScoreRequest{CVText: sampleCV}, "")
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestScoreEndpointValidation(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{}, Dependencies{})

	t.Run("empty cv", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, scoreRequest(t, ScoreRequest{CVText: "   "}, ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Missing CV text", resp.Error)
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := scoreRequest(t, ScoreRequest{CVText: sampleCV}, "")
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/score", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/score", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestScoreEndpointRequestSizeLimit(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{MaxRequestSize: 64}, Dependencies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, scoreRequest(t, ScoreRequest{CVText: sampleCV}, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestScoreEndpointRateLimit(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{
		RateLimit: &config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 1,
			BurstCapacity:  1,
			ByIP:           true,
			Window:         time.Minute,
		},
	}, Dependencies{})

	first := httptest.NewRecorder()
	h.ServeHTTP(first, scoreRequest(t, ScoreRequest{CVText: sampleCV}, ""))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, scoreRequest(t, ScoreRequest{CVText: sampleCV}, ""))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}

func TestScoreEndpointUsesCache(t *testing.T) {
	svc := ai.NewServiceWith(cache.NewMemoryCache(time.Minute, 10), nil,
		ai.NewHeuristicAnalyzer(scoring.NewSeededSource(3)))
	_, h := newTestServer(t, ServerConfig{}, Dependencies{Analysis: svc})

	var results [2]types.Analysis
	for i := range results {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, scoreRequest(t, ScoreRequest{CVText: sampleCV}, ""))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results[i]))
	}
	assert.False(t, results[0].Cached)
	assert.True(t, results[1].Cached)
	assert.Equal(t, results[0].Scores, results[1].Scores)

	cleared := httptest.NewRecorder()
	h.ServeHTTP(cleared, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))
	require.Equal(t, http.StatusOK, cleared.Code)
	assert.Contains(t, cleared.Body.String(), `"status":"cleared"`)
	assert.Equal(t, 0, svc.Cache().Stats().Entries)
}

func TestClearCacheWithoutCache(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{}, Dependencies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		_, h := newTestServer(t, ServerConfig{Version: "1.2.3"}, Dependencies{Datastore: fakePinger{}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
	})

	t.Run("datastore down", func(t *testing.T) {
		_, h := newTestServer(t, ServerConfig{}, Dependencies{Datastore: fakePinger{err: errors.New("connection refused")}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"unhealthy"`)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestStatsEndpoint(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{MaxRequestSize: 1024}, Dependencies{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"enabled": false}, body["rate_limiting"])
	assert.Equal(t, map[string]any{"enabled": false}, body["cache"])
	webhookStats, ok := body["webhook"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, webhookStats["enabled"])
	assert.Equal(t, "/webhooks/payment", webhookStats["path"])
}

func TestWebhookRoute(t *testing.T) {
	checkout := "ch_123"
	store := &subscriptionStore{records: map[string]*types.SubscriptionRecord{
		checkout: {UserID: "user-1", Type: types.SubscriptionFree, CheckoutID: &checkout},
	}}
	deps := Dependencies{
		Processor:     webhook.NewProcessor(store, nil, "yoco", nil),
		WebhookSecret: webhook.StaticSecret(testWebhookSecret),
	}
	_, h := newTestServer(t, ServerConfig{APIKeys: []string{testAPIKey}}, deps)

	body := []byte(`{"event":"payment.succeeded","data":{"id":"ch_123","amount":15000,"status":"succeeded"}}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("valid signature needs no api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("webhook-timestamp", ts)
		req.Header.Set("webhook-signature", webhook.Sign(testWebhookSecret, ts, body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
		assert.Equal(t, types.SubscriptionPremium, store.records[checkout].Type)
		assert.Len(t, store.logs, 1)
	})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("webhook-timestamp", ts)
		req.Header.Set("webhook-signature", webhook.Sign("other", ts, body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestWebhookRouteDisabled(t *testing.T) {
	_, h := newTestServer(t, ServerConfig{}, Dependencies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"

	assert.Equal(t, "ip:10.0.0.7", getRateLimitKey(req, true, true))
	assert.Equal(t, "", getRateLimitKey(req, true, false))

	req.Header.Set("X-API-Key", testAPIKey)
	key := getRateLimitKey(req, true, true)
	assert.Equal(t, "api:"+fingerprint(testAPIKey), key)
	assert.NotContains(t, key, testAPIKey)

	req.Header.Set("X-Forwarded-For", "bogus, 203.0.113.9")
	assert.Equal(t, "ip:203.0.113.9", getRateLimitKey(req, false, true))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "test-api****", maskAPIKey(testAPIKey))
}
