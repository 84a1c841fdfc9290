package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
)

// openTestDB opens a WAL-mode database under t.TempDir and closes it on cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen_CreatesFileAndDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	db, err := Open(context.Background(), config.DatabaseConfig{Path: path, BusyTimeout: 1})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	assert.Equal(t, path, db.Path())
	require.NoError(t, db.HealthCheck(context.Background()))

	info, err := os.Stat(path)
	require.NoError(t, err, "database file not created")
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	assert.Error(t, err, "empty path")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Open(ctx, config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "h.db")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "rollback journal",
			cfg:  config.DatabaseConfig{Path: "/tmp/h.db", BusyTimeout: 3},
			want: "file:/tmp/h.db?_busy_timeout=3000&_foreign_keys=on",
		},
		{
			name: "wal",
			cfg:  config.DatabaseConfig{Path: "/tmp/h.db", WALMode: true},
			want: "file:/tmp/h.db?_busy_timeout=0&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dsn(tt.cfg))
		})
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()), "health check after Close")

	var nilDB *DB
	assert.NoError(t, nilDB.Close())
}

func TestExecContext_WrapsErrors(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ExecContext(context.Background(), "INSERT INTO missing_table VALUES (1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database: exec:")
}

func TestInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n))
		return n
	}

	boom := errors.New("boom")
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(), "failed transaction rolled back")

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t VALUES (1)")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(), "successful transaction committed")
}
