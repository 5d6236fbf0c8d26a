package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"github.com/stretchr/testify/require"
)

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	src := newMemStore()
	seedAudit(t, src, 2)

	var buf bytes.Buffer
	exported, err := NewSnapshotService(src, quietLogger(), 0).Export(context.Background(), &buf)
	require.NoError(t, err)
	require.Len(t, exported.Records, 2)
	require.Len(t, exported.Logs, 2)

	dst := newMemStore()
	imported, err := NewSnapshotService(dst, quietLogger(), 0).Import(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, exported, imported)
	require.JSONEq(t, src.raw(ports.RecordsDocument), dst.raw(ports.RecordsDocument))
	require.JSONEq(t, src.raw(ports.LogsDocument), dst.raw(ports.LogsDocument))
	require.Equal(t, 1, dst.commits, "both documents land in one commit")
}

func TestSnapshotExportEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	snap, err := NewSnapshotService(newMemStore(), quietLogger(), 0).Export(context.Background(), &buf)
	require.NoError(t, err)
	require.Empty(t, snap.Records)
	require.JSONEq(t, `{"records":[],"logs":[]}`, buf.String())
}

func TestSnapshotImportRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{"records":`},
		{"missing logs", `{"records":[]}`},
		{"record without id", `{"records":[{"qty":1}],"logs":[]}`},
		{"empty id", `{"records":[{"id":""}],"logs":[]}`},
		{"unknown action", `{"records":[],"logs":[{"action":"CREATE","timestamp":"2024-01-01T00:00:00Z"}]}`},
		{"extra top level key", `{"records":[],"logs":[],"kv":{}}`},
		{"duplicate ids", `{"records":[{"id":"a"},{"id":"a"}],"logs":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			svc := NewSnapshotService(store, quietLogger(), 0)

			_, err := svc.Import(context.Background(), strings.NewReader(tc.body))
			var violation *domain.ErrSchemaViolation
			require.True(t, errors.As(err, &violation), "got %v", err)
			require.NotEmpty(t, violation.Errors)
			require.Zero(t, store.commits)
		})
	}
}

func TestSnapshotImportStorageFailure(t *testing.T) {
	store := newMemStore()
	store.commitErr = errors.New("read-only filesystem")

	_, err := NewSnapshotService(store, quietLogger(), 0).Import(context.Background(), strings.NewReader(`{"records":[],"logs":[]}`))
	require.True(t, domain.IsStorageError(err), "got %v", err)
}
