package ports

import (
	"context"
	"encoding/json"
)

// Document names of the two independently persisted structures.
const (
	RecordsDocument = "records"
	LogsDocument    = "logs"
)

// SnapshotTx is the view of the store inside one serialized
// read-modify-write cycle. Writes become visible only when the enclosing
// Mutate returns nil.
type SnapshotTx interface {
	Read(name string) (json.RawMessage, bool, error)
	Write(name string, body json.RawMessage) error
}

// SnapshotStore persists whole documents. Read returns the last committed
// body; Mutate runs fn with exclusive write access and commits atomically.
type SnapshotStore interface {
	Read(ctx context.Context, name string) (json.RawMessage, bool, error)
	Mutate(ctx context.Context, fn func(tx SnapshotTx) error) error
}
