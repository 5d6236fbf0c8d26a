package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreReadMissing(t *testing.T) {
	store := openStore(t, t.TempDir())

	_, found, err := store.Read(context.Background(), ports.RecordsDocument)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreMutateWritesOneSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	ctx := context.Background()

	err := store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		if err := tx.Write(ports.RecordsDocument, json.RawMessage(`[{"id":"a"}]`)); err != nil {
			return err
		}
		return tx.Write(ports.LogsDocument, json.RawMessage(`[]`))
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)
	require.JSONEq(t, `{"records":[{"id":"a"}],"logs":[]}`, string(raw))

	body, found, err := store.Read(ctx, ports.LogsDocument)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `[]`, string(body))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestStoreMutateKeepsUntouchedDocuments(t *testing.T) {
	store := openStore(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		require.NoError(t, tx.Write(ports.RecordsDocument, json.RawMessage(`[{"id":"a"}]`)))
		return tx.Write(ports.LogsDocument, json.RawMessage(`[{"action":"DELETE"}]`))
	}))
	require.NoError(t, store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		return tx.Write(ports.RecordsDocument, json.RawMessage(`[]`))
	}))

	body, found, err := store.Read(ctx, ports.LogsDocument)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `[{"action":"DELETE"}]`, string(body))
}

func TestStoreFailedMutationKeepsCommittedSnapshot(t *testing.T) {
	store := openStore(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		return tx.Write(ports.RecordsDocument, json.RawMessage(`[{"id":"keep"}]`))
	}))

	boom := errors.New("boom")
	err := store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		require.NoError(t, tx.Write(ports.RecordsDocument, json.RawMessage(`[]`)))
		body, _, err := tx.Read(ports.RecordsDocument)
		require.NoError(t, err)
		require.JSONEq(t, `[]`, string(body))
		return boom
	})
	require.ErrorIs(t, err, boom)

	body, _, err := store.Read(ctx, ports.RecordsDocument)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"keep"}]`, string(body))
}

func TestStoreCommitFailureLeavesEveryDocumentUnchanged(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	ctx := context.Background()

	require.NoError(t, store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		require.NoError(t, tx.Write(ports.RecordsDocument, json.RawMessage(`[{"id":"a"}]`)))
		return tx.Write(ports.LogsDocument, json.RawMessage(`[]`))
	}))

	diskFull := errors.New("no space left on device")
	rename = func(string, string) error { return diskFull }
	t.Cleanup(func() { rename = os.Rename })

	err := store.Mutate(ctx, func(tx ports.SnapshotTx) error {
		require.NoError(t, tx.Write(ports.RecordsDocument, json.RawMessage(`[]`)))
		return tx.Write(ports.LogsDocument, json.RawMessage(`[{"action":"DELETE","data":{"id":"a"}}]`))
	})
	require.ErrorIs(t, err, diskFull)

	records, _, err := store.Read(ctx, ports.RecordsDocument)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"a"}]`, string(records))
	logs, _, err := store.Read(ctx, ports.LogsDocument)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(logs))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestStoreMutateHonoursContextWhileWaiting(t *testing.T) {
	store := openStore(t, t.TempDir())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = store.Mutate(context.Background(), func(ports.SnapshotTx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.Mutate(ctx, func(ports.SnapshotTx) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoresSharingDirectoryExcludeEachOther(t *testing.T) {
	dir := t.TempDir()
	server := openStore(t, dir)
	importer := openStore(t, dir)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- server.Mutate(context.Background(), func(tx ports.SnapshotTx) error {
			close(started)
			<-release
			return tx.Write(ports.RecordsDocument, json.RawMessage(`[{"id":"server"}]`))
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := importer.Mutate(ctx, func(ports.SnapshotTx) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, importer.Mutate(context.Background(), func(tx ports.SnapshotTx) error {
		body, found, err := tx.Read(ports.RecordsDocument)
		require.NoError(t, err)
		require.True(t, found)
		require.JSONEq(t, `[{"id":"server"}]`, string(body))
		return tx.Write(ports.LogsDocument, json.RawMessage(`[]`))
	}))
}

func TestStoresSharingDirectoryDoNotLoseUpdates(t *testing.T) {
	dir := t.TempDir()
	stores := []*Store{openStore(t, dir), openStore(t, dir)}
	const writes = 40

	var g errgroup.Group
	for i := 0; i < writes; i++ {
		store := stores[i%len(stores)]
		g.Go(func() error {
			return store.Mutate(context.Background(), func(tx ports.SnapshotTx) error {
				var items []int
				body, found, err := tx.Read(ports.RecordsDocument)
				if err != nil {
					return err
				}
				if found {
					if err := json.Unmarshal(body, &items); err != nil {
						return err
					}
				}
				items = append(items, len(items))
				out, err := json.Marshal(items)
				if err != nil {
					return err
				}
				return tx.Write(ports.RecordsDocument, out)
			})
		})
	}
	require.NoError(t, g.Wait())

	body, _, err := stores[0].Read(context.Background(), ports.RecordsDocument)
	require.NoError(t, err)
	var items []int
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, writes)
}

func TestStoreRejectsInvalidJSON(t *testing.T) {
	store := openStore(t, t.TempDir())

	err := store.Mutate(context.Background(), func(tx ports.SnapshotTx) error {
		return tx.Write(ports.RecordsDocument, json.RawMessage(`nope`))
	})
	require.Error(t, err)
}
