// internal/vetting/notification/dispatcher_test.go
package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/store"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, subject, message string) error {
	return m.Called(ctx, subject, message).Error(0)
}

type MockSESSender struct {
	mock.Mock
}

func (m *MockSESSender) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

type MockSNSPublisher struct {
	mock.Mock
}

func (m *MockSNSPublisher) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	args := m.Called(ctx, input)
	return &sns.PublishOutput{}, args.Error(0)
}

// plainDecryptor treats blobs as plaintext.
type plainDecryptor struct{}

func (plainDecryptor) Decrypt(b []byte) ([]byte, error) { return b, nil }

func newDispatcher(t *testing.T, transport MailTransport, alerter Alerter) (*Dispatcher, *store.MemoryStore, *clock.ManualClock) {
	t.Helper()
	mem := store.NewMemoryStore()
	clk := clock.NewManualClock(start)
	cfg := DefaultConfig()
	cfg.ContactEmail = "vetting@example.org"
	return NewDispatcher(mem, transport, alerter, nil, clk, cfg, logger.NewTestLogger(t)), mem, clk
}

// ==========================
// Rendering
// ==========================

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		text string
		vars map[string]string
		want string
	}{
		{"substitutes", "App {{application_number}}", map[string]string{"application_number": "VET-1"}, "App VET-1"},
		{"tolerates spaces", "App {{ application_number }}", map[string]string{"application_number": "VET-1"}, "App VET-1"},
		{"strips unknown", "Hi {{nickname}}!", nil, "Hi !"},
		{"keeps recipient name", "Hi {{recipient_name}}", nil, "Hi {{recipient_name}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(tt.text, tt.vars))
		})
	}
	assert.Equal(t, "Hi Sam", FillRecipientName("Hi {{recipient_name}}", "Sam"))
	assert.Equal(t, "Hi there", FillRecipientName("Hi {{recipient_name}}", ""))
}

func TestBackoff(t *testing.T) {
	base, max := 5*time.Minute, 24*time.Hour
	assert.Equal(t, 5*time.Minute, Backoff(1, base, max))
	assert.Equal(t, 10*time.Minute, Backoff(2, base, max))
	assert.Equal(t, 40*time.Minute, Backoff(4, base, max))
	assert.Equal(t, 24*time.Hour, Backoff(20, base, max))
}

// ==========================
// Dispatch
// ==========================

func TestDispatchDue_SendsAndMarksSent(t *testing.T) {
	transport := new(MockTransport)
	transport.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Subject == "Application VET-20260210-0001 received" &&
			assert.ObjectsAreEqual([]byte("a@example.org"), m.Recipient)
	})).Return(nil).Once()

	d, mem, clk := newDispatcher(t, transport, nil)
	ctx := context.Background()
	_, err := d.Enqueue(ctx, EnqueueRequest{
		Template:   models.TemplateApplicationReceived,
		Recipient:  []byte("a@example.org"),
		TargetType: models.TargetApplication,
		TargetID:   "app-1",
		Context:    map[string]string{"application_number": "VET-20260210-0001"},
	})
	require.NoError(t, err)

	sent, err := d.DispatchDue(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	ns := mem.ListNotifications("app-1")
	require.Len(t, ns, 1)
	assert.Equal(t, models.NotificationSent, ns[0].Status)
	assert.NotNil(t, ns[0].SentAt)
	assert.Equal(t, "vetting@example.org", ns[0].Context["contact_email"])
	transport.AssertExpectations(t)
}

func TestDispatchDue_StoredTemplateOverridesDefault(t *testing.T) {
	transport := new(MockTransport)
	transport.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Subject == "Custom VET-9" && m.Body == "Body for {{recipient_name}}"
	})).Return(nil).Once()

	d, mem, clk := newDispatcher(t, transport, nil)
	ctx := context.Background()
	require.NoError(t, mem.SaveTemplate(ctx, &models.EmailTemplate{
		ID: "t1", TemplateType: models.TemplateApplicationApproved,
		Subject: "Custom {{application_number}}", Body: "Body for {{recipient_name}}", IsActive: true,
	}))
	_, err := d.Enqueue(ctx, EnqueueRequest{
		Template: models.TemplateApplicationApproved, TargetType: models.TargetApplication, TargetID: "app-9",
		Context: map[string]string{"application_number": "VET-9"},
	})
	require.NoError(t, err)

	_, err = d.DispatchDue(ctx, clk.Now())
	require.NoError(t, err)
	transport.AssertExpectations(t)
}

func TestDispatchDue_RetryWithBackoffThenExhaust(t *testing.T) {
	transport := new(MockTransport)
	transport.On("Send", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	alerter := new(MockAlerter)
	alerter.On("Alert", mock.Anything, "Vetting notification permanently failed", mock.AnythingOfType("string")).Return(nil).Once()

	d, mem, clk := newDispatcher(t, transport, alerter)
	ctx := context.Background()
	_, err := d.Enqueue(ctx, EnqueueRequest{Template: models.TemplateReferenceRequest, TargetType: models.TargetReference, TargetID: "ref-1"})
	require.NoError(t, err)

	_, err = d.DispatchDue(ctx, clk.Now())
	require.NoError(t, err)
	n := mem.ListNotifications("ref-1")[0]
	assert.Equal(t, models.NotificationFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, clk.Now().Add(5*time.Minute), *n.NextRetryAt)
	assert.Equal(t, "throttled", n.LastError)

	// not due yet
	sent, err := d.DispatchDue(ctx, clk.Advance(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, mem.ListNotifications("ref-1")[0].RetryCount)

	for i := 2; i <= 5; i++ {
		clk.Advance(24 * time.Hour)
		_, err := d.DispatchDue(ctx, clk.Now())
		require.NoError(t, err)
		assert.Equal(t, i, mem.ListNotifications("ref-1")[0].RetryCount)
	}

	n = mem.ListNotifications("ref-1")[0]
	assert.Equal(t, models.NotificationFailed, n.Status)
	assert.Nil(t, n.NextRetryAt)

	// exhausted notifications are no longer picked up
	clk.Advance(48 * time.Hour)
	_, err = d.DispatchDue(ctx, clk.Now())
	require.NoError(t, err)
	transport.AssertNumberOfCalls(t, "Send", 5)
	alerter.AssertExpectations(t)
}

func TestEnqueue_UnknownTemplate(t *testing.T) {
	d, _, _ := newDispatcher(t, new(MockTransport), nil)
	_, err := d.Enqueue(context.Background(), EnqueueRequest{Template: "birthday", TargetID: "x"})
	assert.Error(t, err)
}

// ==========================
// AWS adapters
// ==========================

func TestSESTransport_Send(t *testing.T) {
	sender := new(MockSESSender)
	sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return *in.Source == "vetting@example.org" &&
			in.Destination.ToAddresses[0] == "ref@example.org" &&
			*in.Message.Body.Text.Data == "Hello Robin"
	})).Return(&ses.SendEmailOutput{}, nil).Once()

	tr := NewSESTransport(sender, plainDecryptor{}, "vetting@example.org")
	err := tr.Send(context.Background(), Message{
		Recipient: []byte("ref@example.org"), RecipientName: []byte("Robin"),
		Subject: "Reference", Body: "Hello {{recipient_name}}",
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestSESTransport_ErrorIsRetryable(t *testing.T) {
	sender := new(MockSESSender)
	sender.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	tr := NewSESTransport(sender, plainDecryptor{}, "vetting@example.org")
	err := tr.Send(context.Background(), Message{Recipient: []byte("x@example.org")})
	require.Error(t, err)
}

func TestSNSAlerter(t *testing.T) {
	pub := new(MockSNSPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return *in.TopicArn == "arn:aws:sns:us-east-1:1:vetting" && *in.Subject == "s"
	})).Return(nil).Once()

	require.NoError(t, NewSNSAlerter(pub, "arn:aws:sns:us-east-1:1:vetting").Alert(context.Background(), "s", "m"))
	pub.AssertExpectations(t)
}
