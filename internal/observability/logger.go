package observability

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger builds the process logger. Unknown levels fall back to info;
// any format other than "json" yields text output.
func NewLogger(cfg LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339Nano, FullTimestamp: true})
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)
	return logger
}
