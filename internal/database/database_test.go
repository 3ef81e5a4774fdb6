package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/pkg/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "in-memory sqlite", opts: Options{Path: ":memory:"}},
		{name: "file sqlite", opts: Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "test.db")}},
		{name: "empty path is in-memory", opts: Options{}},
		{name: "postgres without dsn", opts: Options{Driver: "postgres"}, wantErr: true},
		{name: "unknown driver", opts: Options{Driver: "mysql"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := Initialize(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, conn.DB)
			assert.NoError(t, conn.HealthCheck(context.Background()))
			assert.NoError(t, conn.Close())
		})
	}
}

func TestHealthCheckAfterClose(t *testing.T) {
	conn, err := Initialize(Options{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Error(t, conn.HealthCheck(context.Background()))
}

func TestHealthCheckNil(t *testing.T) {
	var db *DB
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestAutoMigrate(t *testing.T) {
	conn, err := Initialize(Options{Path: ":memory:"})
	require.NoError(t, err)
	defer conn.Close()

	pending, err := conn.PendingTables()
	require.NoError(t, err)
	assert.Contains(t, pending, "episodes")

	require.NoError(t, conn.AutoMigrate())

	pending, err = conn.PendingTables()
	require.NoError(t, err)
	assert.Empty(t, pending)

	for _, table := range []string{"users", "learning_profiles", "episodes", "quizzes", "step_checkpoints", "jobs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DatabaseConfig{Driver: "postgres", DSN: "host=db", MaxConnections: 7})
	assert.Equal(t, "postgres", opts.Driver)
	assert.Equal(t, "host=db", opts.DSN)
	assert.Equal(t, 7, opts.MaxOpenConns)
}
