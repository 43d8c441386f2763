// Package notify publishes subscription tier changes to downstream
// consumers.
package notify

import (
	"context"
	"encoding/json"

	apperrors "atsboost/internal/errors"
	"atsboost/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Notifier receives tier changes after they are committed
type Notifier interface {
	TierChanged(ctx context.Context, change types.TierChange) error
}

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes tier changes as JSON messages to one topic
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

// NewSNSNotifier loads the default AWS credential chain for region
func NewSNSNotifier(ctx context.Context, region, topicARN string) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig, "failed to load AWS configuration", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(cfg), topicARN), nil
}

// NewSNSNotifierWithClient wraps an existing client
func NewSNSNotifierWithClient(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

// TierChanged publishes change. The event type and new tier are carried as
// message attributes so subscribers can filter.
func (n *SNSNotifier) TierChanged(ctx context.Context, change types.TierChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return apperrors.NewInternalError(apperrors.ErrCodeNotifyFailed, "failed to encode tier change", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("subscription tier changed"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {DataType: aws.String("String"), StringValue: aws.String(change.EventType)},
			"newTier":   {DataType: aws.String("String"), StringValue: aws.String(string(change.NewTier))},
		},
	})
	if err != nil {
		return apperrors.NewNetworkError(apperrors.ErrCodeNotifyFailed, "failed to publish tier change", err).
			WithContext("topic", n.topicARN)
	}
	return nil
}

// NopNotifier drops every change
type NopNotifier struct{}

func (NopNotifier) TierChanged(context.Context, types.TierChange) error { return nil }
