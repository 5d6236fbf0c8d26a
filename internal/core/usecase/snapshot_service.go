package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
)

//go:embed schema/snapshot.schema.json
var snapshotSchemaJSON []byte

// Snapshot is the backup format holding both persisted documents.
type Snapshot struct {
	Records []domain.Record   `json:"records"`
	Logs    []domain.LogEntry `json:"logs"`
}

// SnapshotService exports and restores the record collection and the
// audit log together.
type SnapshotService struct {
	store   ports.SnapshotStore
	log     logrus.FieldLogger
	timeout time.Duration

	once      sync.Once
	schema    *santhosh.Schema
	schemaErr error
}

func NewSnapshotService(store ports.SnapshotStore, log logrus.FieldLogger, timeout time.Duration) *SnapshotService {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SnapshotService{store: store, log: log, timeout: timeout}
}

func (s *SnapshotService) Export(ctx context.Context, w io.Writer) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recordsBody, err := loadDocument(ctx, s.store, ports.RecordsDocument)
	if err != nil {
		return Snapshot{}, domain.NewStorageError("export", err)
	}
	logsBody, err := loadDocument(ctx, s.store, ports.LogsDocument)
	if err != nil {
		return Snapshot{}, domain.NewStorageError("export", err)
	}

	var snap Snapshot
	if snap.Records, err = decodeRecords(recordsBody); err != nil {
		return Snapshot{}, domain.NewStorageError("export", err)
	}
	if snap.Logs, err = decodeLogs(logsBody); err != nil {
		return Snapshot{}, domain.NewStorageError("export", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

// Import validates r against the snapshot schema and replaces both
// documents in one commit. Returns *domain.ErrSchemaViolation on bad input.
func (s *SnapshotService) Import(ctx context.Context, r io.Reader) (Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if err := s.validate(raw); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	if err := checkUniqueIDs(snap.Records); err != nil {
		return Snapshot{}, err
	}

	recordsBody, err := json.Marshal(snap.Records)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode records: %w", err)
	}
	logsBody, err := json.Marshal(snap.Logs)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode logs: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		if err := tx.Write(ports.RecordsDocument, recordsBody); err != nil {
			return err
		}
		return tx.Write(ports.LogsDocument, logsBody)
	})
	if err != nil {
		return Snapshot{}, domain.NewStorageError("import", err)
	}

	s.log.WithFields(logrus.Fields{"records": len(snap.Records), "logs": len(snap.Logs)}).Info("snapshot imported")
	return snap, nil
}

func (s *SnapshotService) validate(raw []byte) error {
	s.once.Do(func() {
		s.schema, s.schemaErr = compileSchema(snapshotSchemaJSON)
	})
	if s.schemaErr != nil {
		return fmt.Errorf("compile snapshot schema: %w", s.schemaErr)
	}
	return runValidation(s.schema, raw)
}

func checkUniqueIDs(records []domain.Record) error {
	seen := make(map[string]struct{}, len(records))
	var dupes []string
	for _, rec := range records {
		id := rec.ID()
		if _, ok := seen[id]; ok {
			dupes = append(dupes, fmt.Sprintf("duplicate record id %q", id))
			continue
		}
		seen[id] = struct{}{}
	}
	if len(dupes) > 0 {
		return &domain.ErrSchemaViolation{Errors: dupes}
	}
	return nil
}

// compileSchema builds a *santhosh.Schema from raw JSON.
func compileSchema(schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("snapshot.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("snapshot.schema.json")
}

// runValidation validates data against a pre-compiled schema.
func runValidation(sch *santhosh.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &domain.ErrSchemaViolation{Errors: []string{fmt.Sprintf("invalid json: %v", err)}}
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
