// Package sql runs statements against database/sql backends through a
// bounded connection pool.
//
// Statements are written once with positional placeholders (@0, @1, ...)
// and rebound to the target dialect right before execution:
//
//	Postgres  @0, @1  ->  $1, $2
//	SQLite    @0, @1  ->  ?1, ?2
//	MySQL     @0, @1  ->  ?, ?     (arguments expanded in placeholder order)
//
// Identifiers are quoted with Quote, and per-table names are rendered with
// TableName.Quoted:
//
//	sql.Table("public", "itemTypeFolder").Quoted(dialect.Postgres)
//	// "public"."itemTypeFolder"
//
// # Driver
//
// Every Exec checks a connection out of the pool for the duration of the
// statement. A Query keeps its connection until the returned Rows are
// closed, so callers must always close them:
//
//	rows := &sql.Rows{}
//	if err := drv.Query(ctx, "SELECT guid FROM items WHERE type = @0", []any{t}, rows); err != nil {
//	    return err
//	}
//	defer rows.Close()
//
// # Decorators
//
// StatsDriver counts statements and reports slow ones, DebugDriver logs
// every statement. Both wrap any dialect.Driver.
package sql
