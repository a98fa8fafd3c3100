package schema

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/dialect/sql"
	nodeschema "github.com/syssam/nodestore/schema"
	"github.com/syssam/nodestore/schema/field"
)

type item struct {
	Guid    uuid.UUID
	Name    string
	Value   *string
	Created time.Time
}

func (i *item) Fields() []field.Field {
	return []field.Field{
		field.UUID("guid", &i.Guid).PrimaryKey(),
		field.String("name", &i.Name).Nillable(),
		field.OptionalString("string_value", &i.Value).Indexed(),
		field.Time("created", &i.Created),
	}
}

type counter struct {
	ID    int64
	Label string
}

func (c *counter) Fields() []field.Field {
	return []field.Field{
		field.Int64("id", &c.ID).Increment(),
		field.String("label", &c.Label),
	}
}

func shapeOf(t *testing.T, e nodeschema.Entity) *nodeschema.Shape {
	t.Helper()
	s, err := nodeschema.NewRegistry().Describe(e)
	require.NoError(t, err)
	return s
}

func TestCreateStatements(t *testing.T) {
	s := shapeOf(t, &item{})
	tests := []struct {
		dialect string
		name    sql.TableName
		want    []string
	}{
		{
			dialect: dialect.Postgres,
			name:    sql.Table("public", "itemTypeFolder"),
			want: []string{
				`CREATE TABLE IF NOT EXISTS "public"."itemTypeFolder" ("guid" uuid NOT NULL, "name" text NULL, "string_value" text NULL, "created" char(33) NOT NULL, PRIMARY KEY("guid"))`,
				`CREATE INDEX IF NOT EXISTS "itemTypeFolder_string_value" ON "public"."itemTypeFolder" ("string_value")`,
			},
		},
		{
			dialect: dialect.SQLite,
			name:    sql.Table("main", "itemTypeFolder"),
			want: []string{
				`CREATE TABLE IF NOT EXISTS "main"."itemTypeFolder" ("guid" TEXT NOT NULL, "name" TEXT NULL, "string_value" TEXT NULL, "created" TEXT NOT NULL, PRIMARY KEY("guid"))`,
				`CREATE INDEX IF NOT EXISTS "main"."itemTypeFolder_string_value" ON "itemTypeFolder" ("string_value")`,
			},
		},
		{
			dialect: dialect.MySQL,
			name:    sql.Table("", "itemTypeFolder"),
			want: []string{
				"CREATE TABLE IF NOT EXISTS `itemTypeFolder` (`guid` char(36) NOT NULL, `name` varchar(255) NULL, `string_value` varchar(255) NULL, `created` char(33) NOT NULL, PRIMARY KEY(`guid`), INDEX `itemTypeFolder_string_value` (`string_value`))",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			table, err := NewTable(tt.dialect, tt.name, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, table.CreateStatements(tt.dialect))
		})
	}

	table, err := NewTable(dialect.Postgres, sql.Table("public", "counter"), shapeOf(t, &counter{}))
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "public"."counter" ("id" bigserial NOT NULL, "label" text NOT NULL, PRIMARY KEY("id"))`,
	}, table.CreateStatements(dialect.Postgres))
}

func mockDriver(t *testing.T, name string) (*sql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return sql.OpenDB(name, db), mock
}

func TestCatalogPostgres(t *testing.T) {
	ctx := context.Background()
	drv, mock := mockDriver(t, dialect.Postgres)

	mock.ExpectQuery("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2").
		WithArgs("public", "itemTypeFolder").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	ok, err := TableExists(ctx, drv, sql.Table("", "itemTypeFolder"))
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name").
		WithArgs("nodes").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("children").AddRow("relations"))
	names, err := ListTables(ctx, drv, "nodes")
	require.NoError(t, err)
	assert.Equal(t, []string{"children", "relations"}, names)

	mock.ExpectExec(`DROP TABLE IF EXISTS "nodes"."itemTypeFolder"`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, DropTable(ctx, drv, sql.Table("nodes", "itemTypeFolder")))

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "nodes"."counter" ("id" bigserial NOT NULL, "label" text NOT NULL, PRIMARY KEY("id"))`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, CreateTable(ctx, drv, sql.Table("nodes", "counter"), shapeOf(t, &counter{})))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogMySQL(t *testing.T) {
	ctx := context.Background()
	drv, mock := mockDriver(t, dialect.MySQL)

	mock.ExpectQuery("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?").
		WithArgs("itemTypeFolder").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	ok, err := TableExists(ctx, drv, sql.Table("", "itemTypeFolder"))
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
	names, err := ListTables(ctx, drv, "")
	require.NoError(t, err)
	assert.Empty(t, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *sql.Driver {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, "file:"+filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, drv.Close()) })
	return drv
}

func TestCatalogSQLite(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	name := sql.Table("main", "itemTypeFolder")
	s := shapeOf(t, &item{})

	ok, err := TableExists(ctx, drv, name)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, CreateTable(ctx, drv, name, s))
	require.NoError(t, CreateTable(ctx, drv, name, s), "creating twice is a no-op")
	ok, err = TableExists(ctx, drv, name)
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := ListTables(ctx, drv, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"itemTypeFolder"}, names)

	columns, err := InspectColumns(ctx, drv, name)
	require.NoError(t, err)
	require.Len(t, columns, 4)
	assert.Equal(t, "guid", columns[0].Name)
	assert.True(t, columns[0].PrimaryKey)
	assert.False(t, columns[0].Nullable)
	assert.True(t, columns[2].Nullable)

	result, err := Validate(ctx, drv, name, s)
	require.NoError(t, err)
	assert.False(t, result.HasErrors(), result.String())
	assert.Equal(t, "No issues found", result.String())

	require.NoError(t, drv.Exec(ctx, `ALTER TABLE "itemTypeFolder" ADD COLUMN "extra" TEXT NULL`, []any{}, nil))
	result, err = Validate(ctx, drv, name, s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "itemTypeFolder.extra: column is unknown to the shape", result.Errors[0].Error())
	assert.False(t, result.HasBreakingChanges())

	result, err = Validate(ctx, drv, name, s, AllowExtraColumns())
	require.NoError(t, err)
	assert.False(t, result.HasErrors())
	assert.True(t, result.HasWarnings())

	result, err = Validate(ctx, drv, sql.Table("main", "counter"), shapeOf(t, &counter{}))
	require.NoError(t, err)
	assert.True(t, result.HasBreakingChanges())
	assert.Contains(t, result.String(), "table does not exist")

	require.NoError(t, DropTable(ctx, drv, name))
	ok, err = TableExists(ctx, drv, name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultSchema(t *testing.T) {
	assert.Equal(t, "public", DefaultSchema(dialect.Postgres))
	assert.Equal(t, "main", DefaultSchema(dialect.SQLite))
	assert.Empty(t, DefaultSchema(dialect.MySQL))
}
