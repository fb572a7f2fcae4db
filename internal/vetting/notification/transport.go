// internal/vetting/notification/transport.go
package notification

import (
	"context"
	"fmt"

	apperrors "vetting-engine/internal/common/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Message is one rendered email. Recipient and RecipientName are the
// encrypted blobs stored on the notification.
type Message struct {
	Recipient     []byte
	RecipientName []byte
	Subject       string
	Body          string
}

// MailTransport delivers a rendered message. Errors are treated as transient.
type MailTransport interface {
	Send(ctx context.Context, msg Message) error
}

// Alerter surfaces permanently failed notifications to administrators.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

type Decryptor interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SESSender is satisfied by aws.NotificationSender.
type SESSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SESTransport decrypts the recipient and sends through Amazon SES.
type SESTransport struct {
	sender    SESSender
	decryptor Decryptor
	from      string
}

func NewSESTransport(sender SESSender, decryptor Decryptor, from string) *SESTransport {
	return &SESTransport{sender: sender, decryptor: decryptor, from: from}
}

func (t *SESTransport) Send(ctx context.Context, msg Message) error {
	to, err := t.decryptor.Decrypt(msg.Recipient)
	if err != nil {
		return fmt.Errorf("decrypt recipient: %w", err)
	}
	if len(to) == 0 {
		return apperrors.NewValidationError("notification has no recipient")
	}
	name, err := t.decryptor.Decrypt(msg.RecipientName)
	if err != nil {
		return fmt.Errorf("decrypt recipient name: %w", err)
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(t.from),
		Destination: &sestypes.Destination{ToAddresses: []string{string(to)}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(FillRecipientName(msg.Subject, string(name))), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(FillRecipientName(msg.Body, string(name))), Charset: aws.String("UTF-8")},
			},
		},
	}
	if _, err := t.sender.SendEmail(ctx, input); err != nil {
		return apperrors.NewExternalServiceError("ses", err)
	}
	return nil
}

// SNSPublisher is satisfied by aws.AlertTopic.
type SNSPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSAlerter publishes administrator alerts to a topic.
type SNSAlerter struct {
	publisher SNSPublisher
	topicARN  string
}

func NewSNSAlerter(publisher SNSPublisher, topicARN string) *SNSAlerter {
	return &SNSAlerter{publisher: publisher, topicARN: topicARN}
}

func (a *SNSAlerter) Alert(ctx context.Context, subject, message string) error {
	_, err := a.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return apperrors.NewExternalServiceError("sns", err)
	}
	return nil
}
