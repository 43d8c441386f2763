package types

import "time"

// ATSScore is the bounded score set produced for one CV analysis.
// All fields are integers in [0, 100].
type ATSScore struct {
	Overall          int `json:"overall"`
	KeywordMatch     int `json:"keywordMatch"`
	Formatting       int `json:"formatting"`
	SectionPresence  int `json:"sectionPresence"`
	Readability      int `json:"readability"`
	Length           int `json:"length"`
	ContentRelevance int `json:"contentRelevance"`
	SAQualifications int `json:"saQualifications"`
	BBBEECompliance  int `json:"bbbeeCompliance"`
}

// AnalysisRequest is the input to every analyzer
type AnalysisRequest struct {
	CVText         string `json:"cvText"`
	JobDescription string `json:"jobDescription,omitempty"`
}

// Analysis source identifiers
const (
	SourceHeuristic = "heuristic"
	SourceGemini    = "gemini"
)

// Analysis is the structured result returned by an analyzer
type Analysis struct {
	Scores       ATSScore `json:"scores"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Summary      string   `json:"summary,omitempty"`
	Source       string   `json:"source"`
	Cached       bool     `json:"cached"`

	// Usage is set by remote analyzers and never serialized
	Usage *TokenUsage `json:"-"`
}

// TokenUsage is the token accounting reported by a remote model
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// SubscriptionType is the tier stored on a subscription record
type SubscriptionType string

const (
	SubscriptionFree         SubscriptionType = "free"
	SubscriptionPremium      SubscriptionType = "premium"
	SubscriptionDeepAnalysis SubscriptionType = "deep_analysis"
)

// Valid reports whether t is a known tier
func (t SubscriptionType) Valid() bool {
	switch t {
	case SubscriptionFree, SubscriptionPremium, SubscriptionDeepAnalysis:
		return true
	}
	return false
}

// SubscriptionRecord mirrors one row of the subscriptions table
type SubscriptionRecord struct {
	UserID         string           `json:"userId"`
	Type           SubscriptionType `json:"type"`
	CheckoutID     *string          `json:"checkoutId,omitempty"`
	EndDate        *time.Time       `json:"endDate,omitempty"`
	NextPaymentDue *time.Time       `json:"nextPaymentDue,omitempty"`
}

// SubscriptionUpdate describes a partial update of a subscription record.
// Nil fields are left untouched.
type SubscriptionUpdate struct {
	Type            *SubscriptionType
	EndDate         *time.Time
	NextPaymentDue  *time.Time
	ClearCheckoutID bool
}

// Empty reports whether the update would change nothing
func (u SubscriptionUpdate) Empty() bool {
	return u.Type == nil && u.EndDate == nil && u.NextPaymentDue == nil && !u.ClearCheckoutID
}

// Payment event types sent by the provider
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
)

// WebhookEvent is the decoded payment provider webhook body
type WebhookEvent struct {
	Event string           `json:"event"`
	Data  WebhookEventData `json:"data"`
}

// WebhookEventData carries the checkout session fields read by the handler
type WebhookEventData struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// PaymentLog is one append-only audit row
type PaymentLog struct {
	ID            string    `json:"id"`
	UserID        *string   `json:"userId"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TierChange is emitted after a webhook changed a subscription tier
type TierChange struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	CheckoutID   string           `json:"checkoutId"`
	EventType    string           `json:"eventType"`
	PreviousTier SubscriptionType `json:"previousTier"`
	NewTier      SubscriptionType `json:"newTier"`
	OccurredAt   time.Time        `json:"occurredAt"`
}
