package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
)

type memStore struct {
	mu        sync.Mutex
	docs      map[string]json.RawMessage
	commitErr error
	readErr   error
	commits   int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]json.RawMessage)}
}

func (m *memStore) Read(ctx context.Context, name string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	body, ok := m.docs[name]
	return body, ok, nil
}

func (m *memStore) Mutate(ctx context.Context, fn func(tx ports.SnapshotTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{base: m.docs, staged: make(map[string]json.RawMessage)}
	if err := fn(tx); err != nil {
		return err
	}
	if m.commitErr != nil {
		return m.commitErr
	}
	for name, body := range tx.staged {
		m.docs[name] = body
	}
	m.commits++
	return nil
}

func (m *memStore) raw(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.docs[name])
}

type memTx struct {
	base   map[string]json.RawMessage
	staged map[string]json.RawMessage
}

func (t *memTx) Read(name string) (json.RawMessage, bool, error) {
	if body, ok := t.staged[name]; ok {
		return body, true, nil
	}
	body, ok := t.base[name]
	return body, ok, nil
}

func (t *memTx) Write(name string, body json.RawMessage) error {
	t.staged[name] = append(json.RawMessage(nil), body...)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) snapshot() []domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ChangeEvent(nil), p.events...)
}
