// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/yomuyume/yomuyume/pkg/migrations"
)

// NewDB returns an in-memory catalog with every migration applied. The pool
// is pinned to one connection so that every query sees the same database.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// Same as database.New, so cascades behave as they do in production.
	_, err = db.Exec("PRAGMA foreign_keys=ON")
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// MutationCounter is a query hook counting INSERT, UPDATE and DELETE
// statements that changed at least one row.
type MutationCounter struct {
	count atomic.Int64
	log   atomic.Value
}

func NewMutationCounter(db *bun.DB) *MutationCounter {
	mc := &MutationCounter{}
	mc.log.Store([]string(nil))
	db.AddQueryHook(mc)
	return mc
}

func (*MutationCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (mc *MutationCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil || event.Result == nil {
		return
	}
	switch strings.ToUpper(strings.Fields(strings.TrimSpace(event.Query) + " x")[0]) {
	case "INSERT", "UPDATE", "DELETE":
	default:
		return
	}
	n, err := event.Result.RowsAffected()
	if err != nil || n == 0 {
		return
	}
	mc.count.Add(1)
	queries := mc.log.Load().([]string)
	mc.log.Store(append(queries, event.Query))
}

// Reset zeroes the counter.
func (mc *MutationCounter) Reset() {
	mc.count.Store(0)
	mc.log.Store([]string(nil))
}

func (mc *MutationCounter) Count() int {
	return int(mc.count.Load())
}

// Queries returns the statements counted since the last reset.
func (mc *MutationCounter) Queries() []string {
	return mc.log.Load().([]string)
}
