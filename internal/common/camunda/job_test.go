// internal/common/camunda/job_test.go
package camunda

import (
	"testing"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobWith(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 42, Type: "test", Variables: variables}}
}

func TestDecodeVariables(t *testing.T) {
	schema, err := validation.CompileSchema(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"applicationId"},
		"properties": map[string]interface{}{
			"applicationId": map[string]interface{}{"type": "string", "minLength": 1},
		},
	})
	require.NoError(t, err)

	type target struct {
		ApplicationID string `json:"applicationId"`
		Actor         string `json:"actor"`
	}

	tests := []struct {
		name      string
		variables string
		want      target
		wantErr   bool
	}{
		{"valid", `{"applicationId":"app-1","actor":"admin"}`, target{ApplicationID: "app-1", Actor: "admin"}, false},
		{"extra process variables ignored", `{"applicationId":"app-1","other":5}`, target{ApplicationID: "app-1"}, false},
		{"missing required", `{"actor":"admin"}`, target{}, true},
		{"wrong type", `{"applicationId":7}`, target{}, true},
		{"malformed", `{"applicationId":`, target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got target
			err := DecodeVariables(jobWith(tt.variables), schema, &got)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				assert.False(t, apperrors.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeVariables_NoSchema(t *testing.T) {
	var got map[string]interface{}
	require.NoError(t, DecodeVariables(jobWith(`{"a":"b"}`), nil, &got))
	assert.Equal(t, "b", got["a"])
}
