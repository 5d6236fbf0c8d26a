package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/adapters/events"
	"github.com/atvirokodosprendimai/shopfloor/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/shopfloor/internal/adapters/jsonfile"
	sqliteadapter "github.com/atvirokodosprendimai/shopfloor/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/shopfloor/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/shopfloor/internal/config"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/ports"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/usecase"
	"github.com/atvirokodosprendimai/shopfloor/migrations"
	"github.com/sirupsen/logrus"
)

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Services is the application core assembled over one store.
type Services struct {
	Records   *usecase.RecordService
	Audit     *usecase.AuditService
	Reports   *usecase.ReportService
	Snapshots *usecase.SnapshotService
}

// OpenStore opens the configured backend. SQLite databases are migrated
// before use.
func OpenStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (ports.SnapshotStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFile:
		store, err := jsonfile.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open json store: %w", err)
		}
		log.WithField("data_dir", cfg.DataDir).Info("using json file store")
		return store, store, nil
	case config.BackendSQLite:
		db, err := gormsqlite.Open(cfg.DBPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		writeSQLDB, err := db.WriteSQLDB()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
		}

		migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := migrations.Up(migrateCtx, writeSQLDB, log.WithField("component", "goose")); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.WithField("db_path", cfg.DBPath).Info("using sqlite store")
		return sqliteadapter.NewDocumentStore(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewServices wires the use cases over store. publisher may be nil.
func NewServices(store ports.SnapshotStore, publisher ports.ChangePublisher, cfg config.Config, log logrus.FieldLogger) *Services {
	opts := []usecase.RecordServiceOption{
		usecase.WithLogger(log),
		usecase.WithIOTimeout(cfg.IOTimeout),
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	records := usecase.NewRecordService(store, opts...)
	return &Services{
		Records:   records,
		Audit:     usecase.NewAuditService(store, cfg.IOTimeout),
		Reports:   usecase.NewReportService(records, cfg.DateField),
		Snapshots: usecase.NewSnapshotService(store, log, cfg.IOTimeout),
	}
}

// Open builds the services for one-shot commands. No change events are
// published.
func Open(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Services, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	store, closer, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return NewServices(store, nil, cfg, log), closer, nil
}

func NewServer(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*http.Server, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	store, storeCloser, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	var sink ports.ChangePublisher = events.NewLogPublisher(log)
	if cfg.WebhookURL != "" {
		sink = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
		log.WithField("url", cfg.WebhookURL).Info("change events go to webhook")
	}
	dispatcher := usecase.NewChangeDispatcher(sink, log, cfg.QueueSize)
	dispatcher.Start(context.Background())

	svc := NewServices(store, dispatcher, cfg, log)
	handler := httpapi.NewHandler(svc.Records, svc.Audit, svc.Reports, log)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// dispatcher first so queued events drain before the store closes
	return server, resourceCloser{closers: []io.Closer{dispatcher, storeCloser}}, nil
}
