// internal/common/camunda/job.go
package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "vetting-engine/internal/common/errors"
	"vetting-engine/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// DecodeVariables checks the job variables against schema and decodes them
// into out. Schema violations are returned as validation errors so the
// error handler throws instead of retrying.
func DecodeVariables(job entities.Job, schema *validation.Schema, out interface{}) error {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("job variables: %v", err))
	}

	if schema != nil {
		result, err := schema.Validate(vars)
		if err != nil {
			return apperrors.NewValidationError(err.Error())
		}
		if !result.Valid {
			return apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
		}
	}

	if err := json.Unmarshal([]byte(job.GetVariables()), out); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("decode job variables: %v", err))
	}
	return nil
}

// CompleteJob completes job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("complete job %d: %w", job.GetKey(), err)
	}
	return nil
}
