package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/pool"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		query   string
		args    []any
		want    string
		wantArg []any
	}{
		{
			name:    "postgres",
			dialect: dialect.Postgres,
			query:   "SELECT * FROM t WHERE a = @0 AND b = @1",
			args:    []any{1, 2},
			want:    "SELECT * FROM t WHERE a = $1 AND b = $2",
			wantArg: []any{1, 2},
		},
		{
			name:    "sqlite",
			dialect: dialect.SQLite,
			query:   "SELECT * FROM t WHERE a = @0 AND b = @1",
			args:    []any{1, 2},
			want:    "SELECT * FROM t WHERE a = ?1 AND b = ?2",
			wantArg: []any{1, 2},
		},
		{
			name:    "mysql repeated",
			dialect: dialect.MySQL,
			query:   "SELECT * FROM t WHERE a = @1 OR b = @0 OR c = @1",
			args:    []any{"x", "y"},
			want:    "SELECT * FROM t WHERE a = ? OR b = ? OR c = ?",
			wantArg: []any{"y", "x", "y"},
		},
		{
			name:    "quoted regions untouched",
			dialect: dialect.Postgres,
			query:   `SELECT '@0', "@1" FROM t WHERE a = @0`,
			args:    []any{1},
			want:    `SELECT '@0', "@1" FROM t WHERE a = $1`,
			wantArg: []any{1},
		},
		{
			name:    "two digit",
			dialect: dialect.Postgres,
			query:   "VALUES (@10)",
			args:    make([]any, 11),
			want:    "VALUES ($11)",
			wantArg: make([]any, 11),
		},
		{
			name:    "no placeholders",
			dialect: dialect.MySQL,
			query:   "SELECT 1",
			want:    "SELECT 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := Rebind(tt.dialect, tt.query, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantArg, args)
		})
	}

	_, _, err := Rebind(dialect.Postgres, "SELECT @2", []any{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"folder"`, Quote(dialect.Postgres, "folder"))
	assert.Equal(t, `"a""b"`, Quote(dialect.SQLite, `a"b`))
	assert.Equal(t, "`folder`", Quote(dialect.MySQL, "folder"))

	tn := Table("public", "itemTypeFolder")
	assert.Equal(t, `"public"."itemTypeFolder"`, tn.String())
	assert.Equal(t, "`public`.`itemTypeFolder`", tn.Quoted(dialect.MySQL))
	assert.Equal(t, `"children"`, Table("", "children").Quoted(dialect.SQLite))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "@0, @1, @2", Placeholders(0, 3))
	assert.Equal(t, "@4", Placeholders(4, 1))
	assert.Empty(t, Placeholders(0, 0))
}

func newMock(t *testing.T, name string, opts ...pool.Option) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return OpenDB(name, db, opts...), mock
}

func TestDriverExec(t *testing.T) {
	drv, mock := newMock(t, dialect.Postgres, pool.WithMaxSize(1))
	mock.ExpectExec(`DELETE FROM "items" WHERE "guid" = $1`).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var res Result
	err := drv.Exec(context.Background(), `DELETE FROM "items" WHERE "guid" = @0`, []any{"a"}, &res)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, drv.Pool().InUse(), "exec releases its connection")

	err = drv.Exec(context.Background(), "SELECT 1", 1, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverQueryHoldsConnection(t *testing.T) {
	drv, mock := newMock(t, dialect.SQLite, pool.WithMaxSize(1), pool.WithTimeout(50*time.Millisecond))
	mock.ExpectQuery("SELECT guid FROM items WHERE type = ?1").
		WithArgs("Folder").
		WillReturnRows(sqlmock.NewRows([]string{"guid"}).AddRow("a").AddRow("b"))

	rows := &Rows{}
	err := drv.Query(context.Background(), "SELECT guid FROM items WHERE type = @0", []any{"Folder"}, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, drv.Pool().InUse())

	// The only connection is held by the open rows.
	err = drv.Exec(context.Background(), "SELECT 1", []any{}, nil)
	require.Error(t, err)

	var guids []string
	for rows.Next() {
		var g string
		require.NoError(t, rows.Scan(&g))
		guids = append(guids, g)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close(), "rows should be closed to release the connection")
	assert.Equal(t, []string{"a", "b"}, guids)
	assert.Equal(t, 0, drv.Pool().InUse())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverQueryError(t *testing.T) {
	drv, mock := newMock(t, dialect.MySQL)
	mock.ExpectQuery("SELECT * FROM t WHERE a = ?").
		WithArgs(1).
		WillReturnError(errors.New("table missing"))

	err := drv.Query(context.Background(), "SELECT * FROM t WHERE a = @0", []any{1}, &Rows{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table missing")
	assert.Equal(t, 0, drv.Pool().InUse(), "failed query releases its connection")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverCloseDetectsLeak(t *testing.T) {
	drv, mock := newMock(t, dialect.Postgres)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT 1", []any{}, rows))

	err := drv.Close()
	require.ErrorIs(t, err, pool.ErrLeak)

	require.NoError(t, rows.Close())
	mock.ExpectClose()
	require.NoError(t, drv.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsDriver(t *testing.T) {
	drv, mock := newMock(t, dialect.Postgres)
	var slow []SlowStatement
	stats := NewStatsDriver(drv,
		WithSlowThreshold(0),
		WithSlowQueryHook(func(_ context.Context, s SlowStatement) {
			slow = append(slow, s)
		}),
	)
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("boom"))
	mock.ExpectExec("DELETE FROM u").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := WithOperation(context.Background(), "graph.delete")
	require.NoError(t, stats.Exec(ctx, "DELETE FROM t", []any{}, nil))
	require.Error(t, stats.Query(ctx, "SELECT 1", []any{}, &Rows{}))
	require.NoError(t, stats.Exec(context.Background(), "DELETE FROM u", []any{}, nil))

	s := stats.QueryStats().Stats()
	assert.Equal(t, int64(2), s.TotalExecs)
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(3), s.SlowQueries)
	require.Len(t, slow, 3)
	assert.Equal(t, "DELETE FROM t", slow[0].Query)
	assert.Equal(t, "graph.delete", slow[1].Operation)
	assert.Empty(t, slow[2].Operation)

	require.Len(t, s.Operations, 1, "unlabeled statements only count in the totals")
	op := s.Operations["graph.delete"]
	assert.Equal(t, int64(2), op.Statements)
	assert.Equal(t, int64(1), op.Errors)
	assert.Contains(t, s.String(), "queries=1 execs=2")
	assert.Contains(t, s.String(), "graph.delete=2")
	assert.Equal(t, dialect.Postgres, stats.Dialect())

	stats.SetSlowThreshold(time.Hour)
	assert.Equal(t, time.Hour, stats.SlowThreshold())
	stats.QueryStats().Reset()
	s = stats.QueryStats().Stats()
	assert.Zero(t, s.TotalExecs)
	assert.Nil(t, s.Operations)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebugDriver(t *testing.T) {
	drv, mock := newMock(t, dialect.Postgres)
	var logged []string
	debug := NewDebugDriver(drv, DebugWithLog(func(_ context.Context, v ...any) {
		logged = append(logged, v[0].(string))
	}))
	mock.ExpectExec("DELETE FROM t WHERE a = $1").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec("DELETE FROM t WHERE a = $1").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, debug.Exec(context.Background(), "DELETE FROM t WHERE a = @0", []any{1}, nil))
	require.NoError(t, debug.Exec(WithOperation(context.Background(), "graph.delete"), "DELETE FROM t WHERE a = @0", []any{2}, nil))
	require.Len(t, logged, 2)
	assert.Equal(t, "exec: DELETE FROM t WHERE a = @0 args: [1]", logged[0])
	assert.Equal(t, "exec [graph.delete]: DELETE FROM t WHERE a = @0 args: [2]", logged[1])
	require.NoError(t, mock.ExpectationsWereMet())
}
