// internal/common/aws/sns.go
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// AlertTopic is the SNS topic administrators subscribe to for notifications
// that exhausted their retries.
type AlertTopic struct {
	client   *sns.Client
	topicARN string
}

func NewAlertTopic(ctx context.Context, region, topicARN string) (*AlertTopic, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("alert topic: topic arn is not configured")
	}
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("alert topic: %w", err)
	}
	return &AlertTopic{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// Publish defaults the topic to the configured alert topic.
func (t *AlertTopic) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	if input.TopicArn == nil {
		input.TopicArn = aws.String(t.topicARN)
	}
	out, err := t.client.Publish(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("publish vetting alert to %s: %w", aws.ToString(input.TopicArn), err)
	}
	return out, nil
}
