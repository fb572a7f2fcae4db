// pkg/registry/registry_test.go
package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_BuiltinContracts(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	for _, taskType := range []string{
		"vetting-submit-application",
		"vetting-assign-reviewer",
		"vetting-record-decision",
		"vetting-run-bulk-operation",
		"vetting-record-reference-response",
		"vetting-mark-manual-contact",
		"vetting-cancel-bulk-operation",
		"vetting-get-bulk-operation",
		"vetting-register-reviewer",
		"vetting-set-reviewer-availability",
		"vetting-archive-application",
	} {
		t.Run(taskType, func(t *testing.T) {
			a, ok := reg.Find(taskType)
			require.True(t, ok)
			assert.NotEmpty(t, a.ErrorCodes)

			schema, err := reg.InputSchema(taskType)
			require.NoError(t, err)
			require.NotNil(t, schema)
		})
	}
}

func TestInputSchema_Unknown(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	_, ok := reg.Find("crm.user.create")
	assert.False(t, ok)
	_, err = reg.InputSchema("crm.user.create")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", `{"version":"1","activities":[{"id":"a","taskType":"t-a"}]}`, false},
		{"missing task type", `{"activities":[{"id":"a"}]}`, true},
		{"duplicate task type", `{"activities":[{"id":"a","taskType":"t"},{"id":"b","taskType":"t"}]}`, true},
		{"not json", `activities:`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
