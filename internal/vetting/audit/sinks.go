// internal/vetting/audit/sinks.go
package audit

import (
	"context"

	"vetting-engine/internal/models"
)

type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// StoreSink appends entries to the audit table.
type StoreSink struct {
	store AuditStore
}

func NewStoreSink(s AuditStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, entry *models.AuditEntry) error {
	return s.store.AppendAudit(ctx, entry)
}

// DocumentIndexer is satisfied by database.ElasticsearchClient.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

// ElasticsearchSink indexes entries for search by entity and actor.
type ElasticsearchSink struct {
	indexer DocumentIndexer
	index   string
}

func NewElasticsearchSink(indexer DocumentIndexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, entry *models.AuditEntry) error {
	return s.indexer.IndexDocument(ctx, s.index, entry.ID, entry)
}
