package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() []*Migration {
	return []*Migration{
		{
			Version: 1,
			Name:    "create_inventory",
			Up:      "CREATE TABLE inventory (id INTEGER PRIMARY KEY, sku VARCHAR(64) NOT NULL);",
			Down:    "DROP TABLE inventory;",
		},
		{
			Version: 2,
			Name:    "add_location",
			Up:      "ALTER TABLE inventory ADD COLUMN location VARCHAR(100);",
			Down:    "",
		},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1", name).Scan(&n))
	return n == 1
}

func TestRunner_Up(t *testing.T) {
	db := setupTestDB(t)
	core, logs := observer.New(zap.InfoLevel)
	runner := NewRunner(db, zap.New(core))
	ctx := context.Background()

	applied, err := runner.Up(ctx, testMigrations())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.True(t, tableExists(t, db, "inventory"))
	assert.Equal(t, 2, logs.FilterMessage("applied migration").Len())

	_, err = db.Exec("INSERT INTO inventory (sku, location) VALUES ($1, $2)", "F-100", "van 3")
	require.NoError(t, err)

	applied, err = runner.Up(ctx, testMigrations())
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestRunner_Up_FailureRollsBackThatMigration(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, nil)
	ctx := context.Background()

	migrations := append(testMigrations(), &Migration{
		Version: 3,
		Name:    "broken",
		Up:      "CREATE TABLE parts (id INTEGER PRIMARY KEY); INSERT INTO missing_table VALUES (1);",
	})

	applied, err := runner.Up(ctx, migrations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0003_broken")
	assert.Equal(t, 2, applied)
	assert.False(t, tableExists(t, db, "parts"))

	status, err := runner.Status(ctx, migrations)
	require.NoError(t, err)
	assert.Len(t, status.Applied, 2)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, int64(3), status.Pending[0].Version)
	assert.Equal(t, "Total: 3 migrations (2 applied, 1 pending)", status.Summary())
}

func TestRunner_Down(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, nil)
	ctx := context.Background()

	_, err := runner.Down(ctx)
	assert.ErrorIs(t, err, ErrNothingToRollback)

	_, err = runner.Up(ctx, testMigrations()[:1])
	require.NoError(t, err)

	rolled, err := runner.Down(ctx)
	require.NoError(t, err)
	assert.Equal(t, "create_inventory", rolled.Name)
	assert.False(t, tableExists(t, db, "inventory"))

	status, err := runner.Status(ctx, testMigrations())
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
}

func TestRunner_Down_WithoutDownSQL(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, nil)
	ctx := context.Background()

	_, err := runner.Up(ctx, testMigrations())
	require.NoError(t, err)

	_, err = runner.Down(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_add_location has no down migration")
}

func TestTracker_RecordsDownSQL(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, nil)
	ctx := context.Background()

	_, err := runner.Up(ctx, testMigrations()[:1])
	require.NoError(t, err)

	last, err := NewTracker(db).Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(1), last.Version)
	assert.Equal(t, "DROP TABLE inventory;", last.Down)
	assert.False(t, last.AppliedAt.IsZero())
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_seed.up.sql":     {Data: []byte("INSERT INTO roles VALUES (1);")},
		"migrations/0001_core.up.sql":     {Data: []byte("CREATE TABLE roles (id INTEGER);")},
		"migrations/0001_core.down.sql":   {Data: []byte("DROP TABLE roles;")},
		"migrations/README.md":            {Data: []byte("ignored")},
		"migrations/0003_draft.sql":       {Data: []byte("ignored too")},
		"migrations/nested/0009_x.up.sql": {Data: []byte("not read")},
	}

	migrations, err := Load(fsys, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, "core", migrations[0].Name)
	assert.Equal(t, "DROP TABLE roles;", migrations[0].Down)
	assert.Equal(t, int64(2), migrations[1].Version)
	assert.Empty(t, migrations[1].Down)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "down without up",
			fsys: fstest.MapFS{"m/0001_core.down.sql": {Data: []byte("DROP TABLE x;")}},
			want: "has no up file",
		},
		{
			name: "conflicting names",
			fsys: fstest.MapFS{
				"m/0001_core.up.sql":  {Data: []byte("SELECT 1;")},
				"m/0001_other.up.sql": {Data: []byte("SELECT 2;")},
			},
			want: "two names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.fsys, "m")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
