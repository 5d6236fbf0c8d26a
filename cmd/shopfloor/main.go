package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/app"
	"github.com/atvirokodosprendimai/shopfloor/internal/config"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/aggregate"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/query"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/usecase"
	"github.com/atvirokodosprendimai/shopfloor/internal/observability"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func main() {
	envFile := os.Getenv(config.Env("env-file"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		logrus.WithError(err).Fatal("load env file")
	}

	def := config.Default()
	cmd := &cli.Command{
		Name:  "shopfloor",
		Usage: "Schema-free shop-floor record store with audit log and KPI reports",
		Flags: []cli.Flag{
			stringFlag("backend", def.Backend, "Storage backend: sqlite or file"),
			stringFlag("db-path", def.DBPath, "SQLite file path"),
			stringFlag("data-dir", def.DataDir, "Directory for the file backend"),
			&cli.DurationFlag{
				Name:    "io-timeout",
				Value:   def.IOTimeout,
				Sources: cli.EnvVars(config.Env("io-timeout")),
				Usage:   "Upper bound for a single store operation",
			},
			stringFlag("date-field", def.DateField, "Record field holding the user-supplied date"),
			stringFlag("log-level", def.LogLevel, "Log level"),
			stringFlag("log-format", def.LogFormat, "Log format: json or text"),
		},
		Commands: []*cli.Command{
			serveCommand(def),
			exportCommand(),
			importCommand(),
			reportCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logrus.WithError(err).Fatal("shopfloor")
	}
}

func stringFlag(name, value, usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    name,
		Value:   value,
		Sources: cli.EnvVars(config.Env(name)),
		Usage:   usage,
	}
}

func configFrom(c *cli.Command) config.Config {
	cfg := config.Default()
	cfg.Backend = c.String("backend")
	cfg.DBPath = c.String("db-path")
	cfg.DataDir = c.String("data-dir")
	cfg.IOTimeout = c.Duration("io-timeout")
	cfg.DateField = c.String("date-field")
	cfg.LogLevel = c.String("log-level")
	cfg.LogFormat = c.String("log-format")
	return cfg
}

func loggerFor(cfg config.Config) *logrus.Logger {
	return observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

func serveCommand(def config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			stringFlag("addr", def.Addr, "HTTP listen address"),
			stringFlag("webhook-url", "", "Change event webhook target URL"),
			stringFlag("webhook-secret", "", "HMAC-SHA256 signing secret for webhook requests"),
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Value:   def.WebhookTimeout,
				Sources: cli.EnvVars(config.Env("webhook-timeout")),
				Usage:   "Timeout for one webhook request",
			},
			&cli.IntFlag{
				Name:    "queue-size",
				Value:   def.QueueSize,
				Sources: cli.EnvVars(config.Env("queue-size")),
				Usage:   "Pending change events kept in memory",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := configFrom(c)
			cfg.Addr = c.String("addr")
			cfg.WebhookURL = c.String("webhook-url")
			cfg.WebhookSecret = c.String("webhook-secret")
			cfg.WebhookTimeout = c.Duration("webhook-timeout")
			cfg.QueueSize = c.Int("queue-size")
			log := loggerFor(cfg)

			server, closer, err := app.NewServer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.WithError(closeErr).Error("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.Addr).Info("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				log.WithField("signal", sig.String()).Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write records and audit log as one JSON snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output file (default stdout)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := configFrom(c)
			log := loggerFor(cfg)
			svc, closer, err := app.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closer.Close()

			var w io.Writer = os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
				defer f.Close()
				w = f
			}

			snap, err := svc.Snapshots.Export(ctx, w)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"records": len(snap.Records), "logs": len(snap.Logs)}).Info("snapshot exported")
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Replace records and audit log from a JSON snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Snapshot file (default stdin)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := configFrom(c)
			log := loggerFor(cfg)
			svc, closer, err := app.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closer.Close()

			var r io.Reader = os.Stdin
			if path := c.String("in"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				defer f.Close()
				r = f
			}

			_, err = svc.Snapshots.Import(ctx, r)
			var violation *domain.ErrSchemaViolation
			if errors.As(err, &violation) {
				for _, msg := range violation.Errors {
					log.WithField("problem", msg).Error("snapshot rejected")
				}
			}
			return err
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print a KPI value, or a series with --period",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "field", Required: true, Usage: "Field to aggregate"},
			&cli.StringFlag{Name: "metric", Value: string(aggregate.MetricSum), Usage: "count, sum or average"},
			&cli.StringFlag{Name: "entry-type", Usage: "Only records of this entryType"},
			&cli.StringFlag{Name: "legacy-field", Usage: "Also admit untyped records carrying this field"},
			&cli.IntFlag{Name: "year", Usage: "Calendar year"},
			&cli.IntFlag{Name: "month", Usage: "Calendar month, 1-12"},
			&cli.IntFlag{Name: "day", Usage: "Day of month"},
			&cli.StringFlag{Name: "period", Usage: "Group by year, month or day"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := configFrom(c)
			log := loggerFor(cfg)
			svc, closer, err := app.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closer.Close()

			req := usecase.ReportRequest{
				EntryType:   c.String("entry-type"),
				LegacyField: c.String("legacy-field"),
				Filter:      domain.DateFilterFromCalendar(c.Int("year"), c.Int("month"), c.Int("day")),
				Field:       c.String("field"),
				Metric:      aggregate.Metric(c.String("metric")),
			}

			if c.String("period") == "" {
				rep, err := svc.Reports.Report(ctx, req)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t(%d records)\n", domain.FormatNumber(rep.Value), rep.Matched)
				return nil
			}

			points, err := svc.Reports.Series(ctx, usecase.SeriesRequest{
				ReportRequest: req,
				Period:        query.Period(c.String("period")),
			})
			if err != nil {
				return err
			}
			for _, p := range points {
				fmt.Printf("%s\t%s\t(%d records)\n", p.Period, domain.FormatNumber(p.Value), p.Matched)
			}
			return nil
		},
	}
}
