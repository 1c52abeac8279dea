package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *bun.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestBringUpToDate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	group, err := BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.NotZero(t, group.ID)

	for _, table := range []string{"categories", "titles", "pages", "thumbnails", "tags", "title_tags", "jobs", "job_logs"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	// A second run has nothing left to apply.
	group, err = BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, group.ID)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := BringUpToDate(ctx, db)
	require.NoError(t, err)

	group, err := Rollback(ctx, db)
	require.NoError(t, err)
	assert.NotZero(t, group.ID)

	assert.False(t, tableExists(t, db, "titles"))
	assert.False(t, tableExists(t, db, "jobs"))
	assert.False(t, tableExists(t, db, "job_logs"))
}
