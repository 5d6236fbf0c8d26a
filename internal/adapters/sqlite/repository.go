package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentModel struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Body      string    `gorm:"column:body;not null"`
	Revision  int64     `gorm:"column:revision;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (documentModel) TableName() string {
	return "documents"
}

// DocumentStore keeps each document as one row. A mutation rewrites the
// whole body inside a single write transaction.
type DocumentStore struct {
	db *gormsqlite.DB
}

var _ ports.SnapshotStore = (*DocumentStore)(nil)

func NewDocumentStore(db *gormsqlite.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Read(ctx context.Context, name string) (json.RawMessage, bool, error) {
	var model documentModel
	var found bool
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		var err error
		model, found, err = loadDocument(tx.DB, name)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return json.RawMessage(model.Body), true, nil
}

func (s *DocumentStore) Mutate(ctx context.Context, fn func(tx ports.SnapshotTx) error) error {
	return s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return fn(&documentTx{db: tx.DB})
	})
}

// Revision returns how many times a document has been written, 0 if it
// does not exist yet.
func (s *DocumentStore) Revision(ctx context.Context, name string) (int64, error) {
	var model documentModel
	var found bool
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		var err error
		model, found, err = loadDocument(tx.DB, name)
		return err
	})
	if err != nil || !found {
		return 0, err
	}
	return model.Revision, nil
}

type documentTx struct {
	db *gorm.DB
}

func (t *documentTx) Read(name string) (json.RawMessage, bool, error) {
	model, found, err := loadDocument(t.db, name)
	if err != nil || !found {
		return nil, found, err
	}
	return json.RawMessage(model.Body), true, nil
}

func (t *documentTx) Write(name string, body json.RawMessage) error {
	if !json.Valid(body) {
		return fmt.Errorf("write document %s: body must be valid json", name)
	}
	now := time.Now().UTC()
	model := documentModel{
		Name:      name,
		Body:      string(body),
		Revision:  1,
		UpdatedAt: now,
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"body":       model.Body,
			"updated_at": now,
			"revision":   gorm.Expr("documents.revision + 1"),
		}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}
	return nil
}

func loadDocument(db *gorm.DB, name string) (documentModel, bool, error) {
	var model documentModel
	err := db.Where("name = ?", name).First(&model).Error
	switch {
	case err == nil:
		return model, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return documentModel{}, false, nil
	default:
		return documentModel{}, false, fmt.Errorf("read document %s: %w", name, err)
	}
}
