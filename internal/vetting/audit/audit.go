// internal/vetting/audit/audit.go
package audit

import (
	"context"
	"sync"
	"time"

	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/metrics"
	"vetting-engine/internal/models"

	"github.com/google/uuid"
)

// Recorder is the fire-and-forget audit surface used by the engine.
type Recorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Sink persists or indexes one audit entry.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *models.AuditEntry) error
}

// Auditor fans entries out to its sinks on a background goroutine. Record
// never blocks: when the buffer is full the entry is dropped with a warning.
type Auditor struct {
	sinks   []Sink
	logger  logger.Logger
	entries chan models.AuditEntry
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Recorder = (*Auditor)(nil)

func NewAuditor(bufferSize int, log logger.Logger, sinks ...Sink) *Auditor {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	a := &Auditor{
		sinks:   sinks,
		logger:  log.WithFields(map[string]interface{}{"component": "audit"}),
		entries: make(chan models.AuditEntry, bufferSize),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Auditor) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ActorID == "" {
		entry.ActorID = models.SystemActor
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(entry, "auditor closed")
		return
	}
	select {
	case a.entries <- entry:
	default:
		a.drop(entry, "audit buffer full")
	}
}

func (a *Auditor) drop(entry models.AuditEntry, reason string) {
	metrics.AuditDropped.Inc()
	a.logger.Warn("audit entry dropped", map[string]interface{}{
		"reason":     reason,
		"entityType": entry.EntityType,
		"entityId":   entry.EntityID,
		"action":     entry.Action,
	})
}

func (a *Auditor) run() {
	defer close(a.done)
	for entry := range a.entries {
		a.write(entry)
	}
}

func (a *Auditor) write(entry models.AuditEntry) {
	for _, sink := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := sink.Write(ctx, &entry)
		cancel()
		if err != nil {
			a.logger.Warn("audit sink failed", map[string]interface{}{
				"sink":     sink.Name(),
				"entityId": entry.EntityID,
				"action":   entry.Action,
				"error":    err.Error(),
			})
		}
	}
}

// Close stops accepting entries and waits for buffered ones to be written.
func (a *Auditor) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.entries)
	a.mu.Unlock()
	<-a.done
}

// Entry builds an audit entry stamped at now.
func Entry(entityType, entityID, action, actor string, oldValues, newValues map[string]interface{}, now time.Time) models.AuditEntry {
	return models.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		OldValues:  oldValues,
		NewValues:  newValues,
		ActorID:    actor,
		Timestamp:  now,
	}
}

// Discard drops everything. Useful where auditing is not wired.
type Discard struct{}

func (Discard) Record(context.Context, models.AuditEntry) {}
