package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apperrors "atsboost/internal/errors"
	"atsboost/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome labels reported to the Recorder
const (
	OutcomeUnauthorized = "unauthorized"
	OutcomeRejected     = "rejected"
	OutcomeMalformed    = "malformed"
	OutcomeDuplicate    = "duplicate"
	OutcomeFailed       = "failed"
	OutcomeApplied      = "applied"
	OutcomeAcknowledged = "acknowledged"
)

const maxBodyBytes = 1 << 20

// Recorder receives per-request metrics
type Recorder interface {
	RecordWebhook(ctx context.Context, event, outcome string)
	RecordTierChange(ctx context.Context, from, to types.SubscriptionType)
}

type nopRecorder struct{}

func (nopRecorder) RecordWebhook(context.Context, string, string) {}
func (nopRecorder) RecordTierChange(context.Context, types.SubscriptionType, types.SubscriptionType) {}

// HandlerConfig names the provider specific headers
type HandlerConfig struct {
	SignatureHeader string
	TimestampHeader string
}

// Handler is the HTTP entry point for payment webhooks
type Handler struct {
	cfg       HandlerConfig
	secret    SecretSource
	processor *Processor
	dedupe    Deduplicator
	recorder  Recorder
	logger    *apperrors.Logger
}

// Option configures optional collaborators
type Option func(*Handler)

// WithDeduplicator enables redelivery suppression
func WithDeduplicator(d Deduplicator) Option {
	return func(h *Handler) { h.dedupe = d }
}

// WithRecorder reports outcomes to r
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewHandler builds the webhook handler
func NewHandler(cfg HandlerConfig, secret SecretSource, processor *Processor, logger *apperrors.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = apperrors.NewNopLogger()
	}
	h := &Handler{
		cfg:       cfg,
		secret:    secret,
		processor: processor,
		recorder:  nopRecorder{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	allowed := []string{"authorization", "x-client-info", "apikey", "content-type"}
	for _, name := range []string{h.cfg.SignatureHeader, h.cfg.TimestampHeader} {
		if name != "" {
			allowed = append(allowed, strings.ToLower(name))
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowed, ", "))
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ctx, span := otel.Tracer("atsboost.webhook").Start(r.Context(), "webhook.payment")
	defer span.End()

	signature := r.Header.Get(h.cfg.SignatureHeader)
	timestamp := r.Header.Get(h.cfg.TimestampHeader)
	if signature == "" || timestamp == "" {
		h.recorder.RecordWebhook(ctx, "", OutcomeUnauthorized)
		span.SetStatus(codes.Error, "missing signature headers")
		h.logger.Warn("Webhook rejected: missing signature or timestamp", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing signature or timestamp"})
		return
	}

	// Nothing is trusted before the signature checks out, so read failures
	// are client errors rather than a retryable 500.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.recorder.RecordWebhook(ctx, "", OutcomeRejected)
		span.SetStatus(codes.Error, "unreadable body")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Webhook rejected: body too large", "remote", r.RemoteAddr, "limit", tooLarge.Limit)
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		h.logger.Warn("Webhook rejected: unreadable body", "remote", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
		return
	}

	if !VerifyAny(h.secret.Secrets(), timestamp, body, signature) {
		h.recorder.RecordWebhook(ctx, "", OutcomeUnauthorized)
		span.SetStatus(codes.Error, "invalid signature")
		h.logger.Warn("Webhook rejected: invalid signature", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	var event types.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.recorder.RecordWebhook(ctx, "", OutcomeMalformed)
		h.fail(ctx, w, "", apperrors.NewValidationError(apperrors.ErrCodeMalformedPayload, "malformed webhook payload", err))
		return
	}

	span.SetAttributes(
		attribute.String("webhook.event", event.Event),
		attribute.String("webhook.checkout_id", event.Data.ID),
		attribute.Int64("webhook.amount", event.Data.Amount),
	)

	key := DeliveryKey(event)
	if h.dedupe != nil {
		first, err := h.dedupe.Claim(ctx, key)
		if err != nil {
			h.logger.LogError(err, "Webhook dedupe claim failed, processing anyway", "key", key)
		} else if !first {
			if err := h.processor.Acknowledge(ctx, event); err != nil {
				h.recorder.RecordWebhook(ctx, event.Event, OutcomeFailed)
				h.fail(ctx, w, event.Event, err)
				return
			}
			h.recorder.RecordWebhook(ctx, event.Event, OutcomeDuplicate)
			h.logger.Info("Duplicate webhook delivery acknowledged", "key", key)
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
			return
		}
	}

	out, err := h.processor.Process(ctx, event)
	if err != nil {
		if h.dedupe != nil {
			if relErr := h.dedupe.Release(ctx, key); relErr != nil {
				h.logger.LogError(relErr, "Webhook dedupe release failed", "key", key)
			}
		}
		h.recorder.RecordWebhook(ctx, event.Event, OutcomeFailed)
		h.fail(ctx, w, event.Event, err)
		return
	}

	outcome := OutcomeAcknowledged
	if !out.Update.Empty() {
		outcome = OutcomeApplied
	}
	if out.TierChanged() {
		h.recorder.RecordTierChange(ctx, out.PreviousTier, out.NewTier)
	}
	h.recorder.RecordWebhook(ctx, event.Event, outcome)
	h.logger.Info("Webhook processed",
		"event", event.Event,
		"checkout_id", event.Data.ID,
		"matched", out.Matched,
		"outcome", outcome,
	)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, event string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.logger.LogError(err, "Webhook processing failed", "event", event)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
