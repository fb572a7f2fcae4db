// internal/common/aws/ses.go
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

var errNoRegion = errors.New("aws region is not configured")

// NotificationSender is the SES account that mails applicants and their
// references. The notification transport renders and decrypts; this only
// hands the finished message to SES.
type NotificationSender struct {
	client *ses.Client
	region string
}

func NewNotificationSender(ctx context.Context, region string) (*NotificationSender, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("notification sender: %w", err)
	}
	return &NotificationSender{client: ses.NewFromConfig(cfg), region: region}, nil
}

func (s *NotificationSender) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("send vetting notification via ses (%s): %w", s.region, err)
	}
	return out, nil
}

func loadConfig(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		return aws.Config{}, errNoRegion
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config for %s: %w", region, err)
	}
	return cfg, nil
}
