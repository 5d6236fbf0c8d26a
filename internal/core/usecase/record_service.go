package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"github.com/atvirokodosprendimai/shopfloor/internal/observability"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultIOTimeout = 5 * time.Second

// RecordService owns the record collection. Every mutation is one
// serialized read-modify-write of the whole collection; edits and deletes
// prepend their audit entry in the same commit.
type RecordService struct {
	store     ports.SnapshotStore
	publisher ports.ChangePublisher
	log       logrus.FieldLogger
	timeout   time.Duration
	now       func() time.Time
}

type RecordServiceOption func(*RecordService)

func WithPublisher(p ports.ChangePublisher) RecordServiceOption {
	return func(s *RecordService) { s.publisher = p }
}

func WithLogger(l logrus.FieldLogger) RecordServiceOption {
	return func(s *RecordService) { s.log = l }
}

// WithIOTimeout bounds each operation; zero or negative keeps the default.
func WithIOTimeout(d time.Duration) RecordServiceOption {
	return func(s *RecordService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) RecordServiceOption {
	return func(s *RecordService) { s.now = now }
}

func NewRecordService(store ports.SnapshotStore, opts ...RecordServiceOption) *RecordService {
	s := &RecordService{
		store:   store,
		log:     logrus.StandardLogger(),
		timeout: DefaultIOTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordService) Create(ctx context.Context, fields domain.Record, meta domain.MutationMetadata) (domain.Record, error) {
	created, err := s.create(ctx, "create", []domain.Record{fields}, meta)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateBatch stores rows in one commit, one record per row, in order.
func (s *RecordService) CreateBatch(ctx context.Context, rows []domain.Record, meta domain.MutationMetadata) ([]domain.Record, error) {
	if len(rows) == 0 {
		return []domain.Record{}, nil
	}
	return s.create(ctx, "create_batch", rows, meta)
}

func (s *RecordService) create(ctx context.Context, op string, rows []domain.Record, meta domain.MutationMetadata) ([]domain.Record, error) {
	start := time.Now()
	for _, row := range rows {
		if row == nil {
			observability.ObserveStoreOp(op, observability.ResultInvalid, start)
			return nil, domain.ErrInvalidRecord
		}
	}
	meta = meta.Normalize()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created := make([]domain.Record, 0, len(rows))
	err := s.store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		records, err := readRecordsTx(tx)
		if err != nil {
			return err
		}
		last := lastRecordID(records)
		for _, row := range rows {
			rec := row.Clone()
			rec[domain.FieldID] = domain.NextID(s.now(), last)
			last = rec.ID()
			records = append(records, rec)
			created = append(created, rec.Clone())
		}
		return writeRecordsTx(tx, records)
	})
	if err != nil {
		return nil, s.fail(ctx, op, start, err)
	}

	observability.ObserveStoreOp(op, observability.ResultOK, start)
	s.log.WithFields(logrus.Fields{
		"op":         op,
		"count":      len(created),
		"actor":      meta.Actor,
		"request_id": meta.RequestID,
	}).Debug("records created")
	return created, nil
}

// List returns every record in insertion order.
func (s *RecordService) List(ctx context.Context) ([]domain.Record, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := loadDocument(ctx, s.store, ports.RecordsDocument)
	if err != nil {
		return nil, s.fail(ctx, "list", start, err)
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, s.fail(ctx, "list", start, err)
	}
	observability.ObserveStoreOp("list", observability.ResultOK, start)
	return records, nil
}

func (s *RecordService) Get(ctx context.Context, id string) (domain.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOfRecord(records, id); id != "" && i >= 0 {
		return records[i], nil
	}
	return nil, domain.ErrNotFound
}

// Update replaces the stored record with the same id wholesale and returns
// the prior value. A missing id changes nothing and yields ErrNotFound.
func (s *RecordService) Update(ctx context.Context, rec domain.Record, meta domain.MutationMetadata) (domain.Record, error) {
	start := time.Now()
	if rec == nil {
		observability.ObserveStoreOp("update", observability.ResultInvalid, start)
		return nil, domain.ErrInvalidRecord
	}
	id := rec.ID()
	if id == "" {
		observability.ObserveStoreOp("update", observability.ResultNotFound, start)
		return nil, domain.ErrNotFound
	}
	meta = meta.Normalize()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var prior domain.Record
	var entry domain.LogEntry
	err := s.store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		records, err := readRecordsTx(tx)
		if err != nil {
			return err
		}
		i := indexOfRecord(records, id)
		if i < 0 {
			return domain.ErrNotFound
		}
		prior = records[i]
		next := rec.Clone()
		next[domain.FieldID] = id
		records[i] = next
		if err := writeRecordsTx(tx, records); err != nil {
			return err
		}
		entry = domain.NewEditEntry(prior, next, meta)
		return prependLogTx(tx, entry)
	})
	if err != nil {
		return nil, s.fail(ctx, "update", start, err)
	}

	observability.ObserveStoreOp("update", observability.ResultOK, start)
	observability.ObserveAuditEntry(domain.ActionEdit)
	s.publish(ctx, entry, meta)
	return prior, nil
}

// Delete removes the record and returns it. A missing id changes nothing
// and yields ErrNotFound.
func (s *RecordService) Delete(ctx context.Context, id string, meta domain.MutationMetadata) (domain.Record, error) {
	start := time.Now()
	if id == "" {
		observability.ObserveStoreOp("delete", observability.ResultNotFound, start)
		return nil, domain.ErrNotFound
	}
	meta = meta.Normalize()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var removed domain.Record
	var entry domain.LogEntry
	err := s.store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		records, err := readRecordsTx(tx)
		if err != nil {
			return err
		}
		i := indexOfRecord(records, id)
		if i < 0 {
			return domain.ErrNotFound
		}
		removed = records[i]
		records = append(records[:i], records[i+1:]...)
		if err := writeRecordsTx(tx, records); err != nil {
			return err
		}
		entry = domain.NewDeleteEntry(removed, meta)
		return prependLogTx(tx, entry)
	})
	if err != nil {
		return nil, s.fail(ctx, "delete", start, err)
	}

	observability.ObserveStoreOp("delete", observability.ResultOK, start)
	observability.ObserveAuditEntry(domain.ActionDelete)
	s.publish(ctx, entry, meta)
	return removed, nil
}

// fail records the outcome and converts anything that is not a domain
// error into a StorageError.
func (s *RecordService) fail(ctx context.Context, op string, start time.Time, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		observability.ObserveStoreOp(op, observability.ResultNotFound, start)
		s.log.WithField("op", op).Debug("target record not found, nothing changed")
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrInvalidRecord):
		observability.ObserveStoreOp(op, observability.ResultInvalid, start)
		return err
	}

	observability.ObserveStoreOp(op, observability.ResultError, start)
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(err, ctxErr)
	}
	s.log.WithError(err).WithField("op", op).Error("record store operation failed")
	return domain.NewStorageError(op, err)
}

func (s *RecordService) publish(ctx context.Context, entry domain.LogEntry, meta domain.MutationMetadata) {
	if s.publisher == nil {
		return
	}
	rec := entry.NewData
	if rec == nil {
		rec = entry.Data
	}
	event := domain.ChangeEvent{
		EventID:   uuid.NewString(),
		Action:    entry.Action,
		RecordID:  entry.RecordID(),
		EntryType: rec.EntryType(),
		Actor:     meta.Actor,
		Source:    meta.Source,
		RequestID: meta.RequestID,
		At:        meta.OccurredAt,
		Entry:     entry,
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.WithError(err).WithField("record_id", event.RecordID).Warn("publish change event")
	}
}
