package sqlgraph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/dialect/sql"
	"github.com/syssam/nodestore/schema"
	"github.com/syssam/nodestore/schema/field"
)

type folder struct {
	Guid  uuid.UUID
	Name  string
	Size  *float64
	Count int64
}

func (f *folder) Fields() []field.Field {
	return []field.Field{
		field.UUID("guid", &f.Guid).PrimaryKey(),
		field.String("name", &f.Name).Nillable(),
		field.OptionalFloat64("size", &f.Size),
		field.Int64("count", &f.Count),
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

type event struct{ Msg string }

func (e *event) Fields() []field.Field {
	return []field.Field{field.Text("msg", &e.Msg)}
}

func mockMapper(t *testing.T, name string) (*Mapper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return NewMapper(sql.OpenDB(name, db)), mock
}

func TestInsertPostgres(t *testing.T) {
	ctx := context.Background()
	m, mock := mockMapper(t, dialect.Postgres)
	table := sql.Table("public", "folder")
	size := 1.5
	f := &folder{Guid: uuid.New(), Name: "docs", Size: &size, Count: 2}

	mock.ExpectExec(`INSERT INTO "public"."folder" ("guid", "name", "size", "count") VALUES ($1, $2, $3, $4) ON CONFLICT ("guid") DO UPDATE SET "name" = EXCLUDED."name", "size" = EXCLUDED."size", "count" = EXCLUDED."count"`).
		WithArgs(f.Guid.String(), "docs", 1.5, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	key, err := m.Insert(ctx, table, f, InsertPrimaryKey(), Upsert())
	require.NoError(t, err)
	assert.Equal(t, f.Guid, key)

	// Merge leaves out the zero nillable columns.
	g := &folder{Guid: f.Guid, Count: 3}
	mock.ExpectExec(`INSERT INTO "public"."folder" ("guid", "count") VALUES ($1, $2) ON CONFLICT ("guid") DO UPDATE SET "count" = EXCLUDED."count"`).
		WithArgs(f.Guid.String(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = m.Insert(ctx, table, g, InsertPrimaryKey(), Upsert(), Merge())
	require.NoError(t, err)

	// Without merge the zero nillable columns are written as NULL.
	mock.ExpectExec(`INSERT INTO "public"."folder" ("guid", "name", "size", "count") VALUES ($1, $2, $3, $4)`).
		WithArgs(f.Guid.String(), nil, nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = m.Insert(ctx, table, g, InsertPrimaryKey())
	require.NoError(t, err)

	c := &counter{Label: "a"}
	mock.ExpectQuery(`INSERT INTO "public"."counter" ("label") VALUES ($1) RETURNING "id"`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	key, err = m.Insert(ctx, sql.Table("public", "counter"), c)
	require.NoError(t, err)
	assert.Equal(t, int64(7), key)
	assert.Equal(t, int64(7), c.ID)

	mock.ExpectExec(`INSERT INTO "events" ("msg") VALUES ($1)`).
		WithArgs("hello").
		WillReturnResult(sqlmock.NewResult(0, 1))
	key, err = m.Insert(ctx, sql.Table("", "events"), &event{Msg: "hello"}, Upsert())
	require.NoError(t, err)
	assert.Nil(t, key, "append-only shapes have no key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMySQL(t *testing.T) {
	ctx := context.Background()
	m, mock := mockMapper(t, dialect.MySQL)
	f := &folder{Guid: uuid.New(), Name: "docs", Count: 1}

	mock.ExpectExec("INSERT INTO `folder` (`guid`, `name`, `size`, `count`) VALUES (?, ?, ?, ?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`), `size` = VALUES(`size`), `count` = VALUES(`count`)").
		WithArgs(f.Guid.String(), "docs", nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err := m.Insert(ctx, sql.Table("", "folder"), f, InsertPrimaryKey(), Upsert())
	require.NoError(t, err)

	c := &counter{Label: "a"}
	mock.ExpectExec("INSERT INTO `counter` (`label`) VALUES (?)").
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(11, 1))
	key, err := m.Insert(ctx, sql.Table("", "counter"), c)
	require.NoError(t, err)
	assert.Equal(t, int64(11), key)

	cs := []schema.Entity{&counter{Label: "x"}, &counter{Label: "y"}}
	mock.ExpectExec("INSERT INTO `counter` (`label`) VALUES (?), (?)").
		WithArgs("x", "y").
		WillReturnResult(sqlmock.NewResult(20, 2))
	keys, err := m.BulkInsert(ctx, sql.Table("", "counter"), cs, false)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(20), int64(21)}, keys)
	assert.Equal(t, int64(21), cs[1].(*counter).ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	m, mock := mockMapper(t, dialect.Postgres)
	f := &folder{Guid: uuid.New(), Name: "docs", Count: 4}

	mock.ExpectExec(`UPDATE "public"."folder" SET "name" = $1, "count" = $2 WHERE "guid" = $3`).
		WithArgs("docs", int64(4), f.Guid.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	n, err := m.Update(ctx, sql.Table("public", "folder"), f, true)
	require.NoError(t, err)
	assert.Zero(t, n, "zero affected rows is returned, not an error")

	mock.ExpectExec(`UPDATE "public"."folder" SET "name" = $1, "size" = $2, "count" = $3 WHERE "guid" = $4`).
		WithArgs("docs", nil, int64(4), f.Guid.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err = m.Update(ctx, sql.Table("public", "folder"), f, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.Update(ctx, sql.Table("", "events"), &event{}, false)
	assert.True(t, nodestore.IsSchemaError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsert(t *testing.T) {
	ctx := context.Background()
	m, mock := mockMapper(t, dialect.SQLite)

	cs := []schema.Entity{&counter{Label: "x"}, &counter{Label: "y"}, &counter{Label: "z"}}
	mock.ExpectQuery(`INSERT INTO "main"."counter" ("label") VALUES (?1), (?2), (?3) RETURNING "id"`).
		WithArgs("x", "y", "z").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))
	keys, err := m.BulkInsert(ctx, sql.Table("main", "counter"), cs, false)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, keys)

	mock.ExpectExec(`INSERT INTO "main"."counter" ("id", "label") VALUES (?1, ?2), (?3, ?4)`).
		WithArgs(int64(5), "a", int64(6), "b").
		WillReturnResult(sqlmock.NewResult(0, 2))
	keys, err = m.BulkInsert(ctx, sql.Table("main", "counter"), []schema.Entity{&counter{ID: 5, Label: "a"}, &counter{ID: 6, Label: "b"}}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(5), int64(6)}, keys)

	_, err = m.BulkInsert(ctx, sql.Table("main", "counter"), []schema.Entity{&counter{}, &event{}}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, nodestore.ErrSchema)

	keys, err = m.BulkInsert(ctx, sql.Table("main", "counter"), nil, false)
	require.NoError(t, err)
	assert.Nil(t, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryMissingProperty(t *testing.T) {
	ctx := context.Background()
	m, mock := mockMapper(t, dialect.Postgres)
	mock.ExpectQuery(`SELECT "guid", "name" AS "title" FROM "folder"`).
		WillReturnRows(sqlmock.NewRows([]string{"guid", "title"}).AddRow(uuid.NewString(), "docs"))

	got, err := Collect(Query[folder](ctx, m, `SELECT "guid", "name" AS "title" FROM "folder"`))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, nodestore.IsMissingProperty(err))
	var mp *nodestore.MissingPropertyError
	require.True(t, errors.As(err, &mp))
	assert.Equal(t, "title", mp.Column)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertError(t *testing.T) {
	ctx := context.Background()
	m, mock := mockMapper(t, dialect.Postgres)
	mock.ExpectExec(`INSERT INTO "events" ("msg") VALUES ($1)`).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "events_pkey"`))
	_, err := m.Insert(ctx, sql.Table("", "events"), &event{Msg: "x"})
	require.Error(t, err)
	assert.True(t, nodestore.IsMutationError(err))
	assert.True(t, nodestore.IsConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

// item covers every column kind for round trips against SQLite.
type item struct {
	Guid    uuid.UUID
	Name    string
	Number  *float64
	Note    *string
	Due     *time.Time
	Data    []byte
	Order   int32
	Debug   bool
	Created time.Time
}

func (i *item) Fields() []field.Field {
	return []field.Field{
		field.UUID("guid", &i.Guid).PrimaryKey(),
		field.String("name", &i.Name).Nillable(),
		field.OptionalFloat64("number_value", &i.Number),
		field.OptionalString("string_value", &i.Note).Indexed(),
		field.OptionalTime("date_value", &i.Due),
		field.Bytes("binary_value", &i.Data).Nillable(),
		field.Int32("sort_order", &i.Order),
		field.Bool("debug", &i.Debug),
		field.Time("created", &i.Created),
	}
}

func sqliteMapper(t *testing.T) *Mapper {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, "file:"+filepath.Join(t.TempDir(), "mapper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, drv.Close()) })
	return NewMapper(drv)
}

func getItem(t *testing.T, m *Mapper, table sql.TableName, guid uuid.UUID) *item {
	t.Helper()
	items, err := Collect(Query[item](context.Background(), m, "SELECT * FROM "+table.Quoted(m.Dialect())+` WHERE "guid" = @0`, guid.String()))
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func ptr[T any](v T) *T { return &v }

func TestUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := sqliteMapper(t)
	table := sql.Table("main", "itemTypeFolder")
	require.NoError(t, m.CreateTable(ctx, table, &item{}))

	zone := time.FixedZone("", -7*3600)
	e1 := &item{
		Guid:    uuid.New(),
		Name:    "first",
		Number:  ptr(1.25),
		Note:    ptr("note"),
		Due:     ptr(time.Date(2024, 5, 1, 8, 0, 0, 0, zone)),
		Data:    []byte{1, 2, 3},
		Order:   1,
		Debug:   true,
		Created: time.Date(2024, 1, 1, 0, 0, 0, 0, zone),
	}
	_, err := m.Insert(ctx, table, e1, InsertPrimaryKey(), Upsert())
	require.NoError(t, err)

	// Every field changes; nillable ones go back to their zero value.
	e2 := &item{
		Guid:    e1.Guid,
		Order:   2,
		Created: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	_, err = m.Insert(ctx, table, e2, InsertPrimaryKey(), Upsert())
	require.NoError(t, err)

	got := getItem(t, m, table, e1.Guid)
	assert.True(t, e2.Created.Equal(got.Created))
	got.Created = e2.Created
	assert.Equal(t, e2, got)

	// Offsets survive the round trip.
	_, err = m.Insert(ctx, table, e1, InsertPrimaryKey(), Upsert())
	require.NoError(t, err)
	got = getItem(t, m, table, e1.Guid)
	_, offset := got.Created.Zone()
	assert.Equal(t, -7*3600, offset)
	require.NotNil(t, got.Due)
	assert.True(t, e1.Due.Equal(*got.Due))
	assert.Equal(t, []byte{1, 2, 3}, got.Data)
}

func TestMergeOmission(t *testing.T) {
	ctx := context.Background()
	m := sqliteMapper(t)
	table := sql.Table("main", "itemTypeFolder")
	require.NoError(t, m.CreateTable(ctx, table, &item{}))

	e1 := &item{
		Guid:    uuid.New(),
		Name:    "first",
		Number:  ptr(1.0),
		Note:    ptr("keep me"),
		Data:    []byte("body"),
		Order:   1,
		Created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := m.Insert(ctx, table, e1, InsertPrimaryKey())
	require.NoError(t, err)

	e2 := &item{Guid: e1.Guid, Name: "renamed", Number: ptr(0.0), Order: 5, Created: e1.Created}
	_, err = m.Insert(ctx, table, e2, InsertPrimaryKey(), Upsert(), Merge())
	require.NoError(t, err)

	got := getItem(t, m, table, e1.Guid)
	assert.Equal(t, "renamed", got.Name)
	require.NotNil(t, got.Number)
	assert.Equal(t, 0.0, *got.Number, "an explicitly set zero is written")
	assert.Equal(t, int32(5), got.Order)
	require.NotNil(t, got.Note)
	assert.Equal(t, "keep me", *got.Note)
	assert.Equal(t, []byte("body"), got.Data)

	e3 := &item{Guid: e1.Guid, Order: 6, Created: e1.Created}
	n, err := m.Update(ctx, table, e3, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got = getItem(t, m, table, e1.Guid)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, int32(6), got.Order)

	n, err = m.Update(ctx, table, &item{Guid: uuid.New()}, false)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteQueries(t *testing.T) {
	ctx := context.Background()
	m := sqliteMapper(t)
	table := sql.Table("main", "itemTypeFolder")
	require.NoError(t, m.CreateTable(ctx, table, &item{}))

	var entities []schema.Entity
	for i := range 3 {
		entities = append(entities, &item{Guid: uuid.New(), Order: int32(i), Note: ptr("n"), Created: time.Now()})
	}
	_, err := m.BulkInsert(ctx, table, entities, true)
	require.NoError(t, err)

	_, err = m.Insert(ctx, table, entities[0], InsertPrimaryKey())
	require.Error(t, err)
	assert.True(t, nodestore.IsConstraintError(err), "duplicate key on plain insert")

	count, err := m.QueryScalar(ctx, `SELECT COUNT(*) FROM "itemTypeFolder" WHERE "string_value" = @0`, "n")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	none, err := m.QueryScalar(ctx, `SELECT "guid" FROM "itemTypeFolder" WHERE "sort_order" > @0`, 10)
	require.NoError(t, err)
	assert.Nil(t, none)

	var orders []int64
	for row, err := range m.QueryRows(ctx, `SELECT "sort_order" FROM "itemTypeFolder" ORDER BY "sort_order"`) {
		require.NoError(t, err)
		orders = append(orders, row[0].(int64))
	}
	assert.Equal(t, []int64{0, 1, 2}, orders)

	// Breaking out of a sequence releases its connection.
	for range Query[item](ctx, m, `SELECT * FROM "itemTypeFolder"`) {
		break
	}
	assert.Equal(t, 0, m.Driver().(*sql.Driver).Pool().InUse())

	n, err := m.Execute(ctx, `DELETE FROM "itemTypeFolder" WHERE "sort_order" >= @0`, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = Collect(Query[item](ctx, m, `SELECT "guid", "sort_order" AS "position" FROM "itemTypeFolder"`))
	assert.ErrorIs(t, err, nodestore.ErrMissingProperty)

	tables, err := m.ListTables(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"itemTypeFolder"}, tables)
	require.NoError(t, m.DropTable(ctx, table))
	ok, err := m.TableExists(ctx, table)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteGeneratedKeys(t *testing.T) {
	ctx := context.Background()
	m := sqliteMapper(t)
	table := sql.Table("main", "counter")
	require.NoError(t, m.CreateTable(ctx, table, &counter{}))

	c := &counter{Label: "one"}
	key, err := m.Insert(ctx, table, c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)

	keys, err := m.BulkInsert(ctx, table, []schema.Entity{&counter{Label: "two"}, &counter{Label: "three"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(3)}, keys)
}
