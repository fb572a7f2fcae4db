// internal/common/aws/aws_test.go
package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotificationSender(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	_, err := NewNotificationSender(context.Background(), "")
	assert.ErrorIs(t, err, errNoRegion)

	s, err := NewNotificationSender(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", s.region)
}

func TestNewAlertTopic(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	tests := []struct {
		name    string
		region  string
		arn     string
		wantErr bool
	}{
		{"configured", "eu-west-1", "arn:aws:sns:eu-west-1:1:vetting-alerts", false},
		{"no topic", "eu-west-1", "", true},
		{"no region", "", "arn:aws:sns:eu-west-1:1:vetting-alerts", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, err := NewAlertTopic(context.Background(), tt.region, tt.arn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.arn, topic.topicARN)
		})
	}
}
