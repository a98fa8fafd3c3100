package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/nodestore"
	"github.com/syssam/nodestore/contrib/dataloader"
	"github.com/syssam/nodestore/dialect/sql"
	sqlschema "github.com/syssam/nodestore/dialect/sql/schema"
	"github.com/syssam/nodestore/dialect/sql/sqlgraph"
	"github.com/syssam/nodestore/internal/observe"
	"github.com/syssam/nodestore/schema"
	"github.com/syssam/nodestore/tag"
)

// ErrNoType is returned for nodes without a type.
var ErrNoType = errors.New("graph: node has no type")

// Store persists nodes and their edges.
type Store struct {
	mapper *sqlgraph.Mapper
	types  *tag.Registry
	tables *tables
	log    *observe.Logger
	now    func() time.Time

	cache    nodestore.Cache
	cacheTTL time.Duration
}

type storeConfig struct {
	schema   string
	tableTTL time.Duration
	cache    nodestore.Cache
	cacheTTL time.Duration
	log      *observe.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*storeConfig)

// WithSchema sets the database schema of all tables. The dialect's
// default schema is used otherwise.
func WithSchema(name string) Option {
	return func(c *storeConfig) { c.schema = name }
}

// WithTableTTL sets how long a table is trusted to exist after it was
// checked. Zero trusts it until invalidated.
func WithTableTTL(d time.Duration) Option {
	return func(c *storeConfig) { c.tableTTL = d }
}

// WithCache caches node rows read by GetByReference.
func WithCache(cache nodestore.Cache, ttl time.Duration) Option {
	return func(c *storeConfig) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger of the store.
func WithLogger(l *observe.Logger) Option {
	return func(c *storeConfig) { c.log = l }
}

// WithClock sets the clock used to stamp saved nodes.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) { c.now = now }
}

// NewStore returns a Store writing through m. Node types must be
// registered in types.
func NewStore(m *sqlgraph.Mapper, types *tag.Registry, opts ...Option) *Store {
	cfg := &storeConfig{
		schema: sqlschema.DefaultSchema(m.Dialect()),
		log:    observe.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Store{
		mapper:   m,
		types:    types,
		tables:   newTables(m, cfg.schema, cfg.tableTTL, cfg.now, cfg.log),
		log:      cfg.log,
		now:      cfg.now,
		cache:    cfg.cache,
		cacheTTL: cfg.cacheTTL,
	}
}

// Mapper returns the entity mapper of the store.
func (s *Store) Mapper() *sqlgraph.Mapper { return s.mapper }

// Types returns the type registry of the store.
func (s *Store) Types() *tag.Registry { return s.types }

// Schema returns the database schema of the store's tables.
func (s *Store) Schema() string { return s.tables.schema }

// Table returns the qualified table of nodes of type t, creating the
// table on its first reference.
func (s *Store) Table(ctx context.Context, t tag.Tag) (sql.TableName, error) {
	c, err := s.types.Canonical(t)
	if err != nil {
		return sql.TableName{}, err
	}
	if c.IsZero() {
		return sql.TableName{}, ErrNoType
	}
	return s.tables.ensure(ctx, TableName(c), &Node{})
}

// tableNameOf returns the table name of t, using the registered spelling
// when t is registered.
func (s *Store) tableNameOf(t tag.Tag) string {
	if c, err := s.types.Canonical(t); err == nil {
		t = c
	}
	return TableName(t)
}

func (s *Store) mapping(ctx context.Context, name string) (sql.TableName, error) {
	return s.tables.ensure(ctx, name, &Edge{})
}

// InvalidateTable forgets that the table of type t exists, so the next
// reference checks it again.
func (s *Store) InvalidateTable(t tag.Tag) {
	s.tables.invalidate(s.tableNameOf(t))
}

// InvalidateTables forgets every known table.
func (s *Store) InvalidateTables() {
	s.tables.invalidate()
}

// Tables returns the tables of the store's schema.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.mapper.ListTables(ctx, s.tables.schema)
}

// ValidateTable compares the existing table of type t with the node
// column layout. A missing table is reported as a breaking error.
func (s *Store) ValidateTable(ctx context.Context, t tag.Tag) (*sqlschema.ValidationResult, error) {
	c, err := s.types.Canonical(t)
	if err != nil {
		return nil, err
	}
	if c.IsZero() {
		return nil, ErrNoType
	}
	shape, err := s.mapper.Describe(&Node{})
	if err != nil {
		return nil, err
	}
	return sqlschema.Validate(ctx, s.mapper.Driver(), sql.Table(s.tables.schema, TableName(c)), shape)
}

// DropTable drops the table of type t and every cached node of it.
// Edges pointing into the table are kept.
func (s *Store) DropTable(ctx context.Context, t tag.Tag) error {
	name := s.tableNameOf(t)
	if err := s.mapper.DropTable(ctx, sql.Table(s.tables.schema, name)); err != nil {
		return err
	}
	s.tables.invalidate(name)
	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, name+":"); err != nil {
			s.log.Exception(ctx, err, "graph: cache delete prefix", "table", name)
		}
	}
	return nil
}

type saveOp int

const (
	opSave saveOp = iota
	opSaveNew
	opSaveExisting
)

func (op saveOp) String() string {
	switch op {
	case opSaveNew:
		return "save new"
	case opSaveExisting:
		return "save existing"
	default:
		return "save"
	}
}

type saveConfig struct {
	merge bool
}

// SaveOption configures a save.
type SaveOption func(*saveConfig)

// Merge leaves the unset optional columns of the node out of the write,
// so their stored values are kept. An unset parent leaves the stored
// parent in place. Created, Modified and Revision are taken from the
// stored row, so a sparse node continues the stored revision.
func Merge() SaveOption {
	return func(c *saveConfig) { c.merge = true }
}

// Save inserts n, or overwrites the stored node with the same guid.
// The table of the node type is created on first use.
func (s *Store) Save(ctx context.Context, n *Node, opts ...SaveOption) (Ref, error) {
	return s.save(ctx, n, opSave, opts)
}

// SaveNew inserts n and records it as a child of its parent. It fails
// with a constraint error if a node with the same guid exists. If the
// child edge cannot be recorded, the inserted row is deleted again.
func (s *Store) SaveNew(ctx context.Context, n *Node, opts ...SaveOption) (Ref, error) {
	return s.save(ctx, n, opSaveNew, opts)
}

// SaveExisting updates the stored node with the guid of n. It fails with
// a NotFoundError if there is none.
func (s *Store) SaveExisting(ctx context.Context, n *Node, opts ...SaveOption) (Ref, error) {
	return s.save(ctx, n, opSaveExisting, opts)
}

func (s *Store) save(ctx context.Context, n *Node, op saveOp, opts []SaveOption) (_ Ref, err error) {
	cfg := &saveConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if n.Guid == uuid.Nil {
		if op == opSaveExisting {
			return Ref{}, nodestore.NewNotFoundErrorWithID("node", n.Guid)
		}
		n.Guid = uuid.New()
	}
	ctx, end := s.region(ctx, "graph.save", "op", op.String(), "guid", n.Guid.String())
	defer func() { end(err) }()

	if err := s.canonical(n); err != nil {
		return Ref{}, err
	}
	if err := n.checkValues(); err != nil {
		return Ref{}, err
	}
	table, err := s.Table(ctx, n.Type)
	if err != nil {
		return Ref{}, err
	}
	prev := stamped{created: n.Created, modified: n.Modified, revision: n.Revision}
	if cfg.merge && op != opSaveNew {
		if err := s.storedStamps(ctx, n); err != nil {
			return Ref{}, err
		}
	}
	s.stamp(n)
	switch op {
	case opSaveExisting:
		var affected int64
		affected, err = s.mapper.Update(ctx, table, n, cfg.merge)
		if err == nil && affected == 0 {
			err = nodestore.NewNotFoundErrorWithID(table.Name, n.Guid)
		}
	default:
		iopts := []sqlgraph.InsertOption{sqlgraph.InsertPrimaryKey()}
		if op == opSave {
			iopts = append(iopts, sqlgraph.Upsert())
		}
		if cfg.merge {
			iopts = append(iopts, sqlgraph.Merge())
		}
		_, err = s.mapper.Insert(ctx, table, n, iopts...)
	}
	if err != nil {
		prev.restore(n)
		return Ref{}, err
	}
	s.forget(ctx, table.Name, n.Guid)
	if op == opSaveNew {
		if err := s.AddChild(ctx, n.Parent, n.Ref()); err != nil {
			s.unsave(ctx, table, n.Guid)
			prev.restore(n)
			return Ref{}, err
		}
	}
	s.log.Describe(ctx, "graph: saved node", "table", table.Name, "revision", n.Revision)
	return n.Ref(), nil
}

// stamped holds the bookkeeping columns of a node before a save.
type stamped struct {
	created, modified time.Time
	revision          int64
}

func (p stamped) restore(n *Node) {
	n.Created, n.Modified, n.Revision = p.created, p.modified, p.revision
}

// stamp sets the timestamps and revision of n for a save. The first save
// sets Created and revision 0; later saves bump the revision and move
// Modified strictly forward.
func (s *Store) stamp(n *Node) {
	now := s.now().Truncate(time.Millisecond)
	if n.Created.IsZero() {
		n.Created, n.Modified, n.Revision = now, now, 0
		return
	}
	if !now.After(n.Modified) {
		now = n.Modified.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	n.Modified = now
	n.Revision++
}

// storedStamps copies the bookkeeping columns of the stored row of n into
// n. Without a stored row n is stamped as a new node. Concurrent merges
// of one node may read the same revision.
func (s *Store) storedStamps(ctx context.Context, n *Node) error {
	stored, err := s.get(ctx, n.Ref())
	switch {
	case nodestore.IsNotFound(err):
		n.Created, n.Modified, n.Revision = time.Time{}, time.Time{}, 0
		return nil
	case err != nil:
		return err
	}
	n.Created, n.Modified, n.Revision = stored.Created, stored.Modified, stored.Revision
	return nil
}

// unsave deletes the row inserted by a failed SaveNew.
func (s *Store) unsave(ctx context.Context, table sql.TableName, guid uuid.UUID) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = @0", table.Quoted(s.mapper.Dialect()), s.quote("guid"))
	if _, err := s.mapper.Execute(ctx, query, guid.String()); err != nil {
		s.log.Exception(ctx, err, "graph: delete after failed child edge", "table", table.Name, "guid", guid.String())
	}
	s.forget(ctx, table.Name, guid)
}

// canonical resolves the tags of n to their registered form.
func (s *Store) canonical(n *Node) error {
	if n.Type.IsZero() {
		return fmt.Errorf("%w (guid %s)", ErrNoType, n.Guid)
	}
	var err error
	if n.Type, err = s.types.Canonical(n.Type); err != nil {
		return err
	}
	if n.Parent.Type.IsZero() != (n.Parent.Guid == uuid.Nil) {
		return fmt.Errorf("graph: node %s has an incomplete parent reference %s", n.Guid, n.Parent)
	}
	if n.Parent.Type, err = s.types.Canonical(n.Parent.Type); err != nil {
		return err
	}
	if n.SubTypes.Len() > 0 {
		if n.SubTypes, err = s.types.CanonicalSet(n.SubTypes); err != nil {
			return err
		}
	}
	return nil
}

// Delete deletes the node row of ref. Edges of the node are kept.
func (s *Store) Delete(ctx context.Context, ref Ref) (err error) {
	ctx, end := s.region(ctx, "graph.delete", "ref", ref.String())
	defer func() { end(err) }()
	table, err := s.nodeTable(ctx, ref)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = @0", table.Quoted(s.mapper.Dialect()), s.quote("guid"))
	n, err := s.mapper.Execute(ctx, query, ref.Guid.String())
	if err != nil {
		return nodestore.NewMutationError(table.Name, "delete", err)
	}
	s.forget(ctx, table.Name, ref.Guid)
	if n == 0 {
		return nodestore.NewNotFoundErrorWithID(table.Name, ref.Guid)
	}
	return nil
}

// GetByReference returns the node of ref, with the neighborhood selected
// by r. It fails with a NotFoundError if the node does not exist.
func (s *Store) GetByReference(ctx context.Context, ref Ref, r *Resolving) (_ *Node, err error) {
	ctx, end := s.region(ctx, "graph.get", "ref", ref.String(), "resolving", r.String())
	defer func() { end(err) }()
	n, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if r.IsZero() {
		return n, nil
	}
	v := &visited{nodes: map[uuid.UUID]*Node{n.Guid: n}}
	if err := s.resolve(ctx, n, r, v); err != nil {
		return nil, err
	}
	return n, nil
}

// canonicalRef resolves the type of r to its registered form.
func (s *Store) canonicalRef(r Ref) (Ref, error) {
	if r.IsRoot() {
		return r, nil
	}
	if r.Type.IsZero() {
		return Ref{}, fmt.Errorf("%w (guid %s)", ErrNoType, r.Guid)
	}
	t, err := s.types.Canonical(r.Type)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Type: t, Guid: r.Guid}, nil
}

func (s *Store) canonicalRefs(refs []Ref) ([]Ref, error) {
	out := make([]Ref, len(refs))
	for i, r := range refs {
		c, err := s.canonicalRef(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (s *Store) nodeTable(ctx context.Context, ref Ref) (sql.TableName, error) {
	if ref.IsRoot() {
		return sql.TableName{}, fmt.Errorf("graph: root is not a stored node")
	}
	return s.Table(ctx, ref.Type)
}

func (s *Store) get(ctx context.Context, ref Ref) (*Node, error) {
	table, err := s.nodeTable(ctx, ref)
	if err != nil {
		return nil, err
	}
	if n := s.cached(ctx, table.Name, ref.Guid); n != nil {
		return n, nil
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = @0", table.Quoted(s.mapper.Dialect()), s.quote("guid"))
	nodes, err := s.query(ctx, query, ref.Guid.String())
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nodestore.NewNotFoundErrorWithID(table.Name, ref.Guid)
	}
	s.remember(ctx, table.Name, nodes[0])
	return nodes[0], nil
}

// GetMany returns the nodes of refs in request order, reading each node
// type with one query. Missing nodes are nil.
func (s *Store) GetMany(ctx context.Context, refs []Ref) ([]*Node, error) {
	refs, err := s.canonicalRefs(refs)
	if err != nil {
		return nil, err
	}
	groups := dataloader.GroupByKey(refs, tableName)
	var (
		mu    sync.Mutex
		found []*Node
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, group := range groups {
		if name == RootTable {
			continue
		}
		g.Go(func() error {
			table, err := s.Table(gctx, group[0].Type)
			if err != nil {
				return err
			}
			args := make([]any, len(group))
			for i, r := range group {
				args[i] = r.Guid.String()
			}
			query := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
				table.Quoted(s.mapper.Dialect()), s.quote("guid"), sql.Placeholders(0, len(args)))
			nodes, err := s.query(gctx, query, args...)
			if err != nil {
				return err
			}
			mu.Lock()
			found = append(found, nodes...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	key := func(n *Node) string { return n.Ref().String() }
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = r.String()
	}
	return dataloader.OrderByKeysNoError(keys, found, key), nil
}

// GetDirectChildren returns the children of ref of the given types, or
// of every type when none are given.
func (s *Store) GetDirectChildren(ctx context.Context, ref Ref, types ...tag.Tag) ([]*Node, error) {
	return s.children(ctx, []Ref{ref}, types)
}

// GetChildren returns the children of ref of the given types, and walks
// on through every child found, returning the union of all levels.
func (s *Store) GetChildren(ctx context.Context, ref Ref, types ...tag.Tag) (_ []*Node, err error) {
	ctx, end := s.region(ctx, "graph.children", "ref", ref.String())
	defer func() { end(err) }()
	var (
		out      []*Node
		seen     = map[uuid.UUID]bool{ref.Guid: true}
		frontier = []Ref{ref}
	)
	for depth := 0; len(frontier) > 0; depth++ {
		level, err := s.children(ctx, frontier, types)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0:0]
		for _, c := range level {
			if seen[c.Guid] {
				continue
			}
			seen[c.Guid] = true
			out = append(out, c)
			frontier = append(frontier, c.Ref())
		}
		s.log.Describe(ctx, "graph: children level", "depth", depth, "found", len(frontier))
	}
	return out, nil
}

// children returns the direct children of parents of the given types.
func (s *Store) children(ctx context.Context, parents []Ref, types []tag.Tag) ([]*Node, error) {
	edges, err := s.mapping(ctx, ChildrenTable)
	if err != nil {
		return nil, err
	}
	d := s.mapper.Dialect()
	args := make([]any, len(parents))
	for i, p := range parents {
		args[i] = p.Guid.String()
	}
	in := sql.Placeholders(0, len(args))
	tables, err := s.edgeTables(ctx, types, func() string {
		return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (%s)",
			s.quote("target_table"), edges.Quoted(d), s.quote("source_guid"), in)
	}, args)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, table := range tables {
		query := fmt.Sprintf("SELECT t.* FROM %s e JOIN %s t ON t.%s = e.%s WHERE e.%s IN (%s) AND e.%s = @%d",
			edges.Quoted(d), table.Quoted(d), s.quote("guid"), s.quote("target_guid"),
			s.quote("source_guid"), in, s.quote("target_table"), len(args))
		nodes, err := s.query(ctx, query, append(args, table.Name)...)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	sortNodes(out)
	return out, nil
}

// GetRelations returns the nodes related to ref in either direction,
// of the given types or of every type when none are given.
func (s *Store) GetRelations(ctx context.Context, ref Ref, types ...tag.Tag) (_ []*Node, err error) {
	ctx, end := s.region(ctx, "graph.relations", "ref", ref.String())
	defer func() { end(err) }()
	edges, err := s.mapping(ctx, RelationsTable)
	if err != nil {
		return nil, err
	}
	d := s.mapper.Dialect()
	args := []any{ref.Guid.String()}
	tables, err := s.edgeTables(ctx, types, func() string {
		return fmt.Sprintf("SELECT %s FROM %s WHERE %s = @0 UNION SELECT %s FROM %s WHERE %s = @0",
			s.quote("target_table"), edges.Quoted(d), s.quote("source_guid"),
			s.quote("source_table"), edges.Quoted(d), s.quote("target_guid"))
	}, args)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, table := range tables {
		query := fmt.Sprintf("SELECT t.* FROM %[1]s e JOIN %[2]s t ON t.%[3]s = e.%[4]s WHERE e.%[5]s = @0 AND e.%[6]s = @1"+
			" UNION SELECT t.* FROM %[1]s e JOIN %[2]s t ON t.%[3]s = e.%[5]s WHERE e.%[4]s = @0 AND e.%[7]s = @1",
			edges.Quoted(d), table.Quoted(d), s.quote("guid"), s.quote("target_guid"),
			s.quote("source_guid"), s.quote("target_table"), s.quote("source_table"))
		nodes, err := s.query(ctx, query, ref.Guid.String(), table.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	sortNodes(out)
	return out, nil
}

// edgeTables returns the node tables of types, or, without types, the
// tables named by the mapping rows selected by the distinct query.
func (s *Store) edgeTables(ctx context.Context, types []tag.Tag, distinct func() string, args []any) ([]sql.TableName, error) {
	var tables []sql.TableName
	if len(types) > 0 {
		for _, t := range types {
			table, err := s.Table(ctx, t)
			if err != nil {
				return nil, err
			}
			tables = append(tables, table)
		}
		return tables, nil
	}
	rows, err := sqlgraph.Collect(s.mapper.QueryRows(ctx, distinct(), args...))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		name := asString(row[0])
		if name == "" || name == RootTable {
			continue
		}
		table, err := s.tables.ensure(ctx, name, &Node{})
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	slices.SortFunc(tables, func(a, b sql.TableName) int { return strings.Compare(a.Name, b.Name) })
	return slices.Compact(tables), nil
}

// AddChild records child as a child of parent.
func (s *Store) AddChild(ctx context.Context, parent, child Ref) error {
	if child.IsRoot() {
		return fmt.Errorf("graph: root cannot be a child")
	}
	parent, err := s.canonicalRef(parent)
	if err != nil {
		return err
	}
	if child, err = s.canonicalRef(child); err != nil {
		return err
	}
	edge := Edge{SourceGuid: parent.Guid, SourceTable: tableName(parent), TargetGuid: child.Guid, TargetTable: tableName(child)}
	table, err := s.mapping(ctx, ChildrenTable)
	if err != nil {
		return err
	}
	if _, err := s.deletePairs(ctx, table, parent, []Ref{child}, false); err != nil {
		return err
	}
	_, err = s.mapper.Insert(ctx, table, &edge)
	return err
}

// RemoveChildren removes the child edges of parent to children of the
// given types, or to every child when none are given. The child nodes
// are kept.
func (s *Store) RemoveChildren(ctx context.Context, parent Ref, types ...tag.Tag) (int64, error) {
	table, err := s.mapping(ctx, ChildrenTable)
	if err != nil {
		return 0, err
	}
	return s.deleteTables(ctx, table, parent, types, false)
}

// AddRelations relates src to every target. Existing relations between
// the same nodes, in either direction, are replaced.
func (s *Store) AddRelations(ctx context.Context, src Ref, targets ...Ref) error {
	if len(targets) == 0 {
		return nil
	}
	src, targets, err := s.endpoints(src, targets)
	if err != nil {
		return err
	}
	table, err := s.relations(ctx, src, targets)
	if err != nil {
		return err
	}
	if _, err := s.deletePairs(ctx, table, src, targets, true); err != nil {
		return err
	}
	return s.insertEdges(ctx, table, src, targets)
}

// SetRelations replaces the relations of src to nodes of the target
// types with targets.
func (s *Store) SetRelations(ctx context.Context, src Ref, targets ...Ref) error {
	if len(targets) == 0 {
		return nil
	}
	src, targets, err := s.endpoints(src, targets)
	if err != nil {
		return err
	}
	table, err := s.relations(ctx, src, targets)
	if err != nil {
		return err
	}
	types := make([]tag.Tag, len(targets))
	for i, t := range targets {
		types[i] = t.Type
	}
	if _, err := s.deleteTables(ctx, table, src, types, true); err != nil {
		return err
	}
	return s.insertEdges(ctx, table, src, targets)
}

// RemoveRelations removes the relations of src to nodes of the given
// types, or every relation of src when none are given.
func (s *Store) RemoveRelations(ctx context.Context, src Ref, types ...tag.Tag) (int64, error) {
	table, err := s.relations(ctx, src, nil)
	if err != nil {
		return 0, err
	}
	return s.deleteTables(ctx, table, src, types, true)
}

// relations validates the endpoints of relation edges and returns the
// relations table.
func (s *Store) relations(ctx context.Context, src Ref, targets []Ref) (sql.TableName, error) {
	for _, r := range append([]Ref{src}, targets...) {
		if r.IsRoot() {
			return sql.TableName{}, fmt.Errorf("graph: root cannot be related")
		}
	}
	return s.mapping(ctx, RelationsTable)
}

func (s *Store) endpoints(src Ref, targets []Ref) (Ref, []Ref, error) {
	src, err := s.canonicalRef(src)
	if err != nil {
		return Ref{}, nil, err
	}
	targets, err = s.canonicalRefs(targets)
	return src, targets, err
}

func (s *Store) insertEdges(ctx context.Context, table sql.TableName, src Ref, targets []Ref) error {
	edges := make([]*Edge, 0, len(targets))
	for _, t := range targets {
		edges = append(edges, &Edge{SourceGuid: src.Guid, SourceTable: tableName(src), TargetGuid: t.Guid, TargetTable: tableName(t)})
	}
	entities := make([]schema.Entity, len(edges))
	for i, e := range edges {
		entities[i] = e
	}
	_, err := s.mapper.BulkInsert(ctx, table, entities, false)
	return err
}

// deletePairs deletes the edges from src to targets, and with both set,
// the edges from targets to src.
func (s *Store) deletePairs(ctx context.Context, table sql.TableName, src Ref, targets []Ref, both bool) (int64, error) {
	args := []any{src.Guid.String()}
	for _, t := range targets {
		args = append(args, t.Guid.String())
	}
	in := sql.Placeholders(1, len(targets))
	where := fmt.Sprintf("(%s = @0 AND %s IN (%s))", s.quote("source_guid"), s.quote("target_guid"), in)
	if both {
		where += fmt.Sprintf(" OR (%s = @0 AND %s IN (%s))", s.quote("target_guid"), s.quote("source_guid"), in)
	}
	return s.deleteEdges(ctx, table, where, args)
}

// deleteTables deletes the edges from src into the tables of types, or
// all edges from src without types. With both set, the edges into src
// from those tables are deleted too.
func (s *Store) deleteTables(ctx context.Context, table sql.TableName, src Ref, types []tag.Tag, both bool) (int64, error) {
	args := []any{src.Guid.String()}
	out := fmt.Sprintf("%s = @0", s.quote("source_guid"))
	in := fmt.Sprintf("%s = @0", s.quote("target_guid"))
	if len(types) > 0 {
		names := tag.NewSet(types...).Tags()
		for _, t := range names {
			c, err := s.types.Canonical(t)
			if err != nil {
				return 0, err
			}
			args = append(args, TableName(c))
		}
		list := sql.Placeholders(1, len(names))
		out += fmt.Sprintf(" AND %s IN (%s)", s.quote("target_table"), list)
		in += fmt.Sprintf(" AND %s IN (%s)", s.quote("source_table"), list)
	}
	where := "(" + out + ")"
	if both {
		where += " OR (" + in + ")"
	}
	return s.deleteEdges(ctx, table, where, args)
}

func (s *Store) deleteEdges(ctx context.Context, table sql.TableName, where string, args []any) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table.Quoted(s.mapper.Dialect()), where)
	n, err := s.mapper.Execute(ctx, query, args...)
	if err != nil {
		return 0, nodestore.NewMutationError(table.Name, "delete", err)
	}
	s.log.Describe(ctx, "graph: deleted edges", "table", table.Name, "count", n)
	return n, nil
}

// resolve loads the neighborhood of n selected by r.
func (s *Store) resolve(ctx context.Context, n *Node, r *Resolving, v *visited) error {
	g, gctx := errgroup.WithContext(ctx)
	if children := r.Children(); len(children) > 0 {
		g.Go(func() error {
			return s.expandChildren(gctx, n, children, v)
		})
	}
	if types, ok := r.Relations(); ok {
		g.Go(func() error {
			rels, err := s.GetRelations(gctx, n.Ref(), types...)
			if err != nil {
				return err
			}
			n.Edges.Relations = rels
			n.Edges.loadedTypes[1] = true
			return nil
		})
	}
	if r.Parent() {
		g.Go(func() error {
			if !n.Parent.IsRoot() {
				p, err := s.get(gctx, n.Parent)
				switch {
				case nodestore.IsNotFound(err):
					s.log.Describe(gctx, "graph: parent not found", "parent", n.Parent.String())
				case err != nil:
					return err
				default:
					n.Edges.Parent = p
				}
			}
			n.Edges.loadedTypes[2] = true
			return nil
		})
	}
	return g.Wait()
}

// expandChildren loads the children of n of the given types, and theirs,
// until no unvisited children remain. A node reached through several
// parents is one instance, expanded once, so child edges that form a
// cycle yield a cyclic graph of nodes.
func (s *Store) expandChildren(ctx context.Context, n *Node, types []tag.Tag, v *visited) error {
	children, err := s.children(ctx, []Ref{n.Ref()}, types)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range children {
		shared, first := v.add(c)
		children[i] = shared
		if !first {
			continue
		}
		g.Go(func() error {
			return s.expandChildren(gctx, c, types, v)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	n.Edges.Children = children
	n.Edges.loadedTypes[0] = true
	return nil
}

// visited holds the node instances reached by a resolution.
type visited struct {
	mu    sync.Mutex
	nodes map[uuid.UUID]*Node
}

// add returns the instance of n's guid reached first, and reports
// whether that is n itself.
func (v *visited) add(n *Node) (*Node, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seen, ok := v.nodes[n.Guid]; ok {
		return seen, false
	}
	v.nodes[n.Guid] = n
	return n, true
}

// region opens a log region named after a store operation and labels
// the statements executed in it with the same name.
func (s *Store) region(ctx context.Context, name string, args ...any) (context.Context, func(error)) {
	return s.log.Region(sql.WithOperation(ctx, name), name, args...)
}

// query runs a node query and resolves the tags of the result.
func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Node, error) {
	nodes, err := sqlgraph.Collect(sqlgraph.Query[Node](ctx, s.mapper, query, args...))
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := s.canonical(n); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (s *Store) quote(ident string) string {
	return sql.Quote(s.mapper.Dialect(), ident)
}

func (s *Store) cacheKey(table string, guid uuid.UUID) string {
	return nodestore.CacheKey{Table: table, ID: guid.String()}.String()
}

// cached returns the cached node, or nil. Cache failures are logged and
// treated as misses.
func (s *Store) cached(ctx context.Context, table string, guid uuid.UUID) *Node {
	if s.cache == nil {
		return nil
	}
	b, err := s.cache.Get(ctx, s.cacheKey(table, guid))
	if err != nil {
		s.log.Exception(ctx, err, "graph: cache get", "table", table)
		return nil
	}
	if b == nil {
		return nil
	}
	n, err := decodeNode(b)
	if err == nil {
		err = s.canonical(n)
	}
	if err != nil {
		s.log.Exception(ctx, err, "graph: cache decode", "table", table)
		return nil
	}
	s.log.Describe(ctx, "graph: cache hit", "table", table, "guid", guid.String())
	return n
}

func (s *Store) remember(ctx context.Context, table string, n *Node) {
	if s.cache == nil {
		return
	}
	b, err := encodeNode(n)
	if err == nil {
		err = s.cache.Set(ctx, s.cacheKey(table, n.Guid), b, s.cacheTTL)
	}
	if err != nil {
		s.log.Exception(ctx, err, "graph: cache set", "table", table)
	}
}

func (s *Store) forget(ctx context.Context, table string, guid uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(table, guid)); err != nil {
		s.log.Exception(ctx, err, "graph: cache delete", "table", table)
	}
}

func sortNodes(nodes []*Node) {
	slices.SortStableFunc(nodes, func(a, b *Node) int {
		if a.Order != b.Order {
			if a.Order < b.Order {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Guid.String(), b.Guid.String())
	})
}

func asString(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	default:
		return ""
	}
}
