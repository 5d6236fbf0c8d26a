package gormsqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestBuildDSNIncludesPerConnectionPragmas(t *testing.T) {
	reader := buildDSN("./db.sqlite", true)
	writer := buildDSN("./db.sqlite", false)

	checks := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=trusted_schema(OFF)",
	}
	for _, c := range checks {
		if !strings.Contains(reader, c) {
			t.Fatalf("reader dsn missing %q: %s", c, reader)
		}
		if !strings.Contains(writer, c) {
			t.Fatalf("writer dsn missing %q: %s", c, writer)
		}
	}

	if !strings.Contains(reader, "_pragma=query_only(1)") {
		t.Fatalf("reader dsn missing query_only(1): %s", reader)
	}
	if !strings.Contains(writer, "_pragma=query_only(0)") {
		t.Fatalf("writer dsn missing query_only(0): %s", writer)
	}
	if !strings.Contains(writer, "_txlock=immediate") {
		t.Fatalf("writer dsn missing _txlock=immediate: %s", writer)
	}
	if strings.Contains(reader, "_txlock") {
		t.Fatalf("reader dsn should not set _txlock: %s", reader)
	}
}

func TestReaderRejectsWrites(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "ro.sqlite"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("CREATE TABLE t (v INTEGER)").Error
	}))

	err = db.R.WithContext(ctx).Exec("INSERT INTO t (v) VALUES (1)").Error
	require.Error(t, err)
}
