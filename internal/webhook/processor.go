// Package webhook authenticates payment provider callbacks and applies the
// resulting subscription state changes.
package webhook

import (
	"context"
	"time"

	apperrors "atsboost/internal/errors"
	"atsboost/internal/notify"
	"atsboost/internal/types"

	"github.com/google/uuid"
)

const (
	// PremiumThresholdCents is the smallest successful payment that buys the
	// premium tier. Anything below buys a one-off deep analysis.
	PremiumThresholdCents = 10000
	// PremiumPeriod is how far endDate and nextPaymentDue are pushed out.
	PremiumPeriod = 30 * 24 * time.Hour

	statusSucceeded = "succeeded"
)

// Store is the datastore surface the processor needs
type Store interface {
	// FindByCheckoutID returns nil, nil when no record matches.
	FindByCheckoutID(ctx context.Context, checkoutID string) (*types.SubscriptionRecord, error)
	UpdateByCheckoutID(ctx context.Context, checkoutID string, upd types.SubscriptionUpdate) (int64, error)
	InsertPaymentLog(ctx context.Context, entry types.PaymentLog) error
}

// Outcome describes what one processed event did
type Outcome struct {
	Matched      bool
	Update       types.SubscriptionUpdate
	PreviousTier types.SubscriptionType
	NewTier      types.SubscriptionType
}

// TierChanged reports whether the subscription type moved
func (o Outcome) TierChanged() bool {
	return o.Matched && o.Update.Type != nil && o.PreviousTier != o.NewTier
}

// Processor applies authenticated webhook events to the store
type Processor struct {
	store         Store
	notifier      notify.Notifier
	paymentMethod string
	logger        *apperrors.Logger
	now           func() time.Time
}

// NewProcessor creates a processor. A nil notifier disables notifications.
func NewProcessor(store Store, notifier notify.Notifier, paymentMethod string, logger *apperrors.Logger) *Processor {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if logger == nil {
		logger = apperrors.NewNopLogger()
	}
	return &Processor{
		store:         store,
		notifier:      notifier,
		paymentMethod: paymentMethod,
		logger:        logger,
		now:           time.Now,
	}
}

// Process looks up the subscription, writes the audit row and applies the
// state transition. Lookup and update failures are returned; audit and
// notification failures are logged only.
func (p *Processor) Process(ctx context.Context, event types.WebhookEvent) (Outcome, error) {
	checkoutID := event.Data.ID

	rec, err := p.lookup(ctx, checkoutID)
	if err != nil {
		return Outcome{}, err
	}

	p.audit(ctx, event, rec)

	now := p.now().UTC()
	upd := Transition(event, rec, now)
	out := Outcome{Matched: rec != nil, Update: upd}
	if rec != nil {
		out.PreviousTier = rec.Type
		out.NewTier = rec.Type
		if upd.Type != nil {
			out.NewTier = *upd.Type
		}
	}

	if upd.Empty() {
		return out, nil
	}

	if _, err := p.store.UpdateByCheckoutID(ctx, checkoutID, upd); err != nil {
		return out, apperrors.NewStorageError(apperrors.ErrCodeStorageFailed, "subscription update failed", err).
			WithContext("checkout_id", checkoutID)
	}

	if out.TierChanged() {
		change := types.TierChange{
			ID:           uuid.NewString(),
			UserID:       rec.UserID,
			CheckoutID:   checkoutID,
			EventType:    event.Event,
			PreviousTier: out.PreviousTier,
			NewTier:      out.NewTier,
			OccurredAt:   now,
		}
		if err := p.notifier.TierChanged(ctx, change); err != nil {
			p.logger.LogError(err, "Tier change notification failed", "checkout_id", checkoutID)
		}
	}

	return out, nil
}

// Acknowledge writes the audit row for a redelivered event without
// touching the subscription.
func (p *Processor) Acknowledge(ctx context.Context, event types.WebhookEvent) error {
	rec, err := p.lookup(ctx, event.Data.ID)
	if err != nil {
		return err
	}
	p.audit(ctx, event, rec)
	return nil
}

// lookup returns nil without querying when checkoutID is empty
func (p *Processor) lookup(ctx context.Context, checkoutID string) (*types.SubscriptionRecord, error) {
	if checkoutID == "" {
		return nil, nil
	}
	rec, err := p.store.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, apperrors.NewStorageError(apperrors.ErrCodeStorageFailed, "subscription lookup failed", err).
			WithContext("checkout_id", checkoutID)
	}
	return rec, nil
}

func (p *Processor) audit(ctx context.Context, event types.WebhookEvent, rec *types.SubscriptionRecord) {
	entry := types.PaymentLog{
		Amount:        float64(event.Data.Amount) / 100,
		Status:        event.Data.Status,
		PaymentMethod: p.paymentMethod,
	}
	if rec != nil {
		userID := rec.UserID
		entry.UserID = &userID
	}
	if err := p.store.InsertPaymentLog(ctx, entry); err != nil {
		p.logger.LogError(err, "Payment audit log insert failed",
			"event", event.Event, "checkout_id", event.Data.ID)
	}
}

// Transition computes the update an event implies for rec. It returns an
// empty update when rec is nil or the event has no effect.
func Transition(event types.WebhookEvent, rec *types.SubscriptionRecord, now time.Time) types.SubscriptionUpdate {
	var upd types.SubscriptionUpdate
	if rec == nil {
		return upd
	}

	switch event.Event {
	case types.EventPaymentSucceeded:
		if event.Data.Status != statusSucceeded {
			return upd
		}
		tier := types.SubscriptionDeepAnalysis
		if event.Data.Amount >= PremiumThresholdCents {
			tier = types.SubscriptionPremium
			due := now.Add(PremiumPeriod)
			upd.EndDate = &due
			upd.NextPaymentDue = &due
		}
		upd.Type = &tier

	case types.EventPaymentFailed, types.EventPaymentCancelled:
		if rec.Type == types.SubscriptionPremium {
			free := types.SubscriptionFree
			upd.Type = &free
		}
		upd.ClearCheckoutID = true
	}

	return upd
}
