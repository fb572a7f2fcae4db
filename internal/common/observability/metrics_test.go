// internal/common/observability/metrics_test.go
package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func TestStartSpan_EndsWithStatus(t *testing.T) {
	o := New("vetting-engine-test", zaptest.NewLogger(t))
	defer o.Shutdown()

	ctx, end := o.StartSpan(context.Background(), "application.submit")
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	end(nil)

	_, end = o.StartSpan(context.Background(), "application.submit")
	end(errors.New("boom"))
}

func TestZeroValueObservability(t *testing.T) {
	var o Observability
	_, end := o.StartSpan(context.Background(), "noop")
	end(nil)
	o.Shutdown()
}
