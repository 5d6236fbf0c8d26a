package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func seedAudit(t *testing.T, store *memStore, edits int) []domain.Record {
	t.Helper()
	svc := newTestRecordService(store)
	ctx := context.Background()

	var created []domain.Record
	for i := 0; i < edits; i++ {
		rec, err := svc.Create(ctx, domain.Record{"n": float64(i)}, domain.MutationMetadata{})
		require.NoError(t, err)
		_, err = svc.Update(ctx, domain.Record{"id": rec.ID(), "n": float64(i * 10)}, domain.MutationMetadata{Actor: fmt.Sprintf("op-%d", i)})
		require.NoError(t, err)
		created = append(created, rec)
	}
	return created
}

func TestAuditListFiltersByActionAndRecord(t *testing.T) {
	store := newMemStore()
	created := seedAudit(t, store, 3)
	svc := newTestRecordService(store)
	ctx := context.Background()

	_, err := svc.Delete(ctx, created[1].ID(), domain.MutationMetadata{})
	require.NoError(t, err)

	audit := NewAuditService(store, 0)

	deletes, err := audit.List(ctx, domain.AuditFilter{Action: domain.ActionDelete})
	require.NoError(t, err)
	require.Len(t, deletes, 1)
	require.Equal(t, created[1].ID(), deletes[0].RecordID())

	forRecord, err := audit.List(ctx, domain.AuditFilter{RecordID: created[1].ID()})
	require.NoError(t, err)
	require.Len(t, forRecord, 2)
	require.Equal(t, domain.ActionDelete, forRecord[0].Action)
	require.Equal(t, domain.ActionEdit, forRecord[1].Action)

	edits, err := audit.List(ctx, domain.AuditFilter{Action: domain.ActionEdit})
	require.NoError(t, err)
	require.Len(t, edits, 3)
	require.Equal(t, "op-2", edits[0].Actor, "newest first")
}

func TestAuditListLimit(t *testing.T) {
	store := newMemStore()
	seedAudit(t, store, 5)
	audit := NewAuditService(store, 0)
	ctx := context.Background()

	got, err := audit.List(ctx, domain.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = audit.List(ctx, domain.AuditFilter{Limit: -1})
	require.NoError(t, err)
	require.Len(t, got, 5)
}

func TestAuditListWithoutLimitReturnsWholeLog(t *testing.T) {
	store := newMemStore()
	seedAudit(t, store, 150)
	audit := NewAuditService(store, 0)

	got, err := audit.List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, got, 150)
	require.Equal(t, "op-149", got[0].Actor)
	require.Equal(t, "op-0", got[149].Actor)
}

func TestAuditListRejectsUnknownAction(t *testing.T) {
	audit := NewAuditService(newMemStore(), 0)
	_, err := audit.List(context.Background(), domain.AuditFilter{Action: "CREATE"})
	require.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestAuditListEmptyLog(t *testing.T) {
	store := newMemStore()
	audit := NewAuditService(store, 0)

	got, err := audit.List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Empty(t, got)
	require.JSONEq(t, `[]`, store.raw("logs"))
}
