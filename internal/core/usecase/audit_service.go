package usecase

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"github.com/atvirokodosprendimai/shopfloor/internal/observability"
)

// AuditService reads the change history. Entries are only ever written by
// RecordService, inside the mutation they describe.
type AuditService struct {
	store   ports.SnapshotStore
	timeout time.Duration
}

func NewAuditService(store ports.SnapshotStore, timeout time.Duration) *AuditService {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	return &AuditService{store: store, timeout: timeout}
}

// List returns matching entries newest-first. A positive Limit keeps that
// many; zero or negative returns the whole log.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.LogEntry, error) {
	start := time.Now()
	if err := filter.Validate(); err != nil {
		observability.ObserveStoreOp("list_logs", observability.ResultInvalid, start)
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := loadDocument(ctx, s.store, ports.LogsDocument)
	if err != nil {
		observability.ObserveStoreOp("list_logs", observability.ResultError, start)
		return nil, domain.NewStorageError("list_logs", err)
	}
	entries, err := decodeLogs(body)
	if err != nil {
		observability.ObserveStoreOp("list_logs", observability.ResultError, start)
		return nil, domain.NewStorageError("list_logs", err)
	}

	out := make([]domain.LogEntry, 0, len(entries))
	for _, e := range entries {
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	observability.ObserveStoreOp("list_logs", observability.ResultOK, start)
	return out, nil
}
