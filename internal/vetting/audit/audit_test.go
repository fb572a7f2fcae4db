// internal/vetting/audit/audit_test.go
package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/models"
	"vetting-engine/internal/vetting/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexDocument(ctx context.Context, index, id string, doc interface{}) error {
	args := m.Called(ctx, index, id, doc)
	return args.Error(0)
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	written []string
}

func (b *blockingSink) Name() string { return "blocking" }

func (b *blockingSink) Write(_ context.Context, e *models.AuditEntry) error {
	<-b.release
	b.mu.Lock()
	b.written = append(b.written, e.Action)
	b.mu.Unlock()
	return nil
}

func TestAuditor_WritesToAllSinks(t *testing.T) {
	mem := store.NewMemoryStore()
	indexer := new(MockIndexer)
	indexer.On("IndexDocument", mock.Anything, "vetting-audit", mock.AnythingOfType("string"), mock.Anything).Return(nil)

	a := NewAuditor(8, logger.NewTestLogger(t), NewStoreSink(mem), NewElasticsearchSink(indexer, "vetting-audit"))
	a.Record(context.Background(), Entry(models.EntityApplication, "app-1", models.ActionApplicationSubmitted, "", nil,
		map[string]interface{}{"status": "submitted"}, now))
	a.Close()

	entries, err := mem.ListAudit(context.Background(), models.EntityApplication, "app-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SystemActor, entries[0].ActorID)
	assert.NotEmpty(t, entries[0].ID)
	indexer.AssertExpectations(t)
}

func TestAuditor_SinkFailureDoesNotStopOtherSinks(t *testing.T) {
	mem := store.NewMemoryStore()
	indexer := new(MockIndexer)
	indexer.On("IndexDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("cluster red"))

	a := NewAuditor(8, logger.NewTestLogger(t), NewElasticsearchSink(indexer, "idx"), NewStoreSink(mem))
	a.Record(context.Background(), Entry(models.EntityReviewer, "rev-1", models.ActionReviewerRegistered, "admin", nil, nil, now))
	a.Close()

	entries, err := mem.ListAudit(context.Background(), models.EntityReviewer, "rev-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAuditor_RecordNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	a := NewAuditor(1, logger.NewNoOpLogger(), sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.Record(context.Background(), models.AuditEntry{Action: "a"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(sink.release)
	a.Close()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.LessOrEqual(t, len(sink.written), 2)
	assert.NotEmpty(t, sink.written)
}

func TestAuditor_RecordAfterCloseIsDropped(t *testing.T) {
	mem := store.NewMemoryStore()
	a := NewAuditor(4, logger.NewNoOpLogger(), NewStoreSink(mem))
	a.Close()
	a.Close()

	a.Record(context.Background(), Entry(models.EntityApplication, "app-9", "x", "", nil, nil, now))
	entries, _ := mem.ListAudit(context.Background(), models.EntityApplication, "app-9")
	assert.Empty(t, entries)
}
