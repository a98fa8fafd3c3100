package graph

import (
	"context"
	"sync"
	"time"

	"github.com/go-openapi/inflect"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/nodestore/dialect/sql"
	"github.com/syssam/nodestore/dialect/sql/sqlgraph"
	"github.com/syssam/nodestore/internal/observe"
	"github.com/syssam/nodestore/schema"
	"github.com/syssam/nodestore/tag"
)

// TableName returns the name of the table holding nodes of type t,
// e.g. "itemTypeFolder" for ItemType=Folder.
func TableName(t tag.Tag) string {
	return inflect.CamelizeDownFirst(t.Definition + "_" + t.Case)
}

// tableName returns the mapping edge table name of r.
func tableName(r Ref) string {
	if r.IsRoot() {
		return RootTable
	}
	return TableName(r.Type)
}

// tables remembers which tables are known to exist. The first reference
// to a table checks for it and creates it when missing; later references
// within the TTL skip the check. A table dropped behind the cache's back
// is only noticed after its entry expires or is invalidated.
type tables struct {
	mapper *sqlgraph.Mapper
	schema string
	ttl    time.Duration // zero keeps entries forever
	now    func() time.Time
	log    *observe.Logger

	mu      sync.RWMutex
	checked map[string]time.Time
	group   singleflight.Group
}

func newTables(m *sqlgraph.Mapper, schema string, ttl time.Duration, now func() time.Time, log *observe.Logger) *tables {
	return &tables{
		mapper:  m,
		schema:  schema,
		ttl:     ttl,
		now:     now,
		log:     log,
		checked: make(map[string]time.Time),
	}
}

// ensure returns the qualified name of table, creating it with the shape
// of e if it does not exist. Concurrent first references share one check.
func (c *tables) ensure(ctx context.Context, name string, e schema.Entity) (sql.TableName, error) {
	table := sql.Table(c.schema, name)
	if c.fresh(name) {
		return table, nil
	}
	_, err, shared := c.group.Do(name, func() (any, error) {
		if c.fresh(name) {
			return nil, nil
		}
		exists, err := c.mapper.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			c.log.Describe(ctx, "graph: creating table", "table", name)
			if err := c.mapper.CreateTable(ctx, table, e); err != nil {
				return nil, err
			}
		}
		c.mu.Lock()
		c.checked[name] = c.now()
		c.mu.Unlock()
		return nil, nil
	})
	if shared {
		c.log.Describe(ctx, "graph: shared table check", "table", name)
	}
	return table, err
}

func (c *tables) fresh(name string) bool {
	c.mu.RLock()
	at, ok := c.checked[name]
	c.mu.RUnlock()
	return ok && (c.ttl <= 0 || c.now().Sub(at) < c.ttl)
}

func (c *tables) invalidate(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(names) == 0 {
		clear(c.checked)
		return
	}
	for _, name := range names {
		delete(c.checked, name)
	}
}

func (c *tables) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.checked)
}
