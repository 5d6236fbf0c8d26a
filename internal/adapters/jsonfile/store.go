// Package jsonfile keeps every document in one JSON file inside a data
// directory. A commit replaces that file with a single rename, so readers
// see either the previous snapshot or the next one, never a mix.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
)

const (
	snapshotFile = "store.json"
	lockFileName = ".lock"
)

// rename is swapped in tests to simulate a failing commit.
var rename = os.Rename

type Store struct {
	dir string
	// sem serializes Mutate within the process; waiters give up when
	// their context ends.
	sem chan struct{}
	// lock serializes Mutate across processes sharing dir.
	lock *fileLock
}

var _ ports.SnapshotStore = (*Store)(nil)

func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lock, err := openLock(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, sem: make(chan struct{}, 1), lock: lock}, nil
}

func (s *Store) Close() error {
	return s.lock.close()
}

func (s *Store) Read(ctx context.Context, name string) (json.RawMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	docs, err := s.readSnapshot()
	if err != nil {
		return nil, false, err
	}
	body, ok := docs[name]
	return body, ok, nil
}

// Mutate runs fn with the directory lock held from the first read to the
// final rename. Staged writes are committed together or not at all.
func (s *Store) Mutate(ctx context.Context, fn func(tx ports.SnapshotTx) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	if err := s.lock.acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = s.lock.release() }()

	docs, err := s.readSnapshot()
	if err != nil {
		return err
	}
	tx := &fileTx{base: docs, staged: make(map[string]json.RawMessage)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.staged) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for name, body := range tx.staged {
		docs[name] = body
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeAtomic(s.path(), data); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, snapshotFile)
}

func (s *Store) readSnapshot() (map[string]json.RawMessage, error) {
	docs := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return docs, nil
}

type fileTx struct {
	base   map[string]json.RawMessage
	staged map[string]json.RawMessage
}

func (t *fileTx) Read(name string) (json.RawMessage, bool, error) {
	if body, ok := t.staged[name]; ok {
		return body, true, nil
	}
	body, ok := t.base[name]
	return body, ok, nil
}

func (t *fileTx) Write(name string, body json.RawMessage) error {
	if !json.Valid(body) {
		return fmt.Errorf("write document %s: body must be valid json", name)
	}
	t.staged[name] = append(json.RawMessage(nil), body...)
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
