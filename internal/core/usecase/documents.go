package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
)

func decodeRecords(body json.RawMessage) ([]domain.Record, error) {
	if len(body) == 0 {
		return []domain.Record{}, nil
	}
	var records []domain.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode records document: %w", err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

func decodeLogs(body json.RawMessage) ([]domain.LogEntry, error) {
	if len(body) == 0 {
		return []domain.LogEntry{}, nil
	}
	var entries []domain.LogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode logs document: %w", err)
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return entries, nil
}

func readRecordsTx(tx ports.SnapshotTx) ([]domain.Record, error) {
	body, _, err := tx.Read(ports.RecordsDocument)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

func writeRecordsTx(tx ports.SnapshotTx, records []domain.Record) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records document: %w", err)
	}
	return tx.Write(ports.RecordsDocument, body)
}

func readLogsTx(tx ports.SnapshotTx) ([]domain.LogEntry, error) {
	body, _, err := tx.Read(ports.LogsDocument)
	if err != nil {
		return nil, err
	}
	return decodeLogs(body)
}

// prependLogTx adds entry at the head of the log. Existing entries are
// carried over untouched.
func prependLogTx(tx ports.SnapshotTx, entry domain.LogEntry) error {
	entries, err := readLogsTx(tx)
	if err != nil {
		return err
	}
	next := make([]domain.LogEntry, 0, len(entries)+1)
	next = append(next, entry)
	next = append(next, entries...)
	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode logs document: %w", err)
	}
	return tx.Write(ports.LogsDocument, body)
}

// loadDocument returns the committed body of name. A missing document is
// created empty so that first access never fails.
func loadDocument(ctx context.Context, store ports.SnapshotStore, name string) (json.RawMessage, error) {
	body, found, err := store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	if found {
		return body, nil
	}

	err = store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		existing, found, err := tx.Read(name)
		if err != nil {
			return err
		}
		if found {
			body = existing
			return nil
		}
		body = json.RawMessage(`[]`)
		return tx.Write(name, body)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func indexOfRecord(records []domain.Record, id string) int {
	for i, rec := range records {
		if rec.ID() == id {
			return i
		}
	}
	return -1
}

// lastRecordID returns the id with the latest timestamp. Ids are compared
// as instants since imported ids may omit the fractional seconds; equal
// instants fall back to string order. Ids that are not timestamps are
// ignored.
func lastRecordID(records []domain.Record) string {
	var (
		last   string
		lastAt time.Time
	)
	for _, rec := range records {
		id := rec.ID()
		at, ok := domain.IDTime(id)
		if !ok {
			continue
		}
		if last == "" || at.After(lastAt) || (at.Equal(lastAt) && id > last) {
			last, lastAt = id, at
		}
	}
	return last
}
