// Package graph stores typed nodes in per-type tables and links them
// through generic mapping tables.
//
// # Tables
//
// Every node type is a registered tag. The first time a type is seen its
// table is created from the Node column layout; the name is derived from
// the canonical tag spelling:
//
//	ItemType=Folder  ->  itemTypeFolder
//
// Parent/child links live in the "children" table and arbitrary links in
// the "relations" table. Both hold (source_guid, source_table,
// target_guid, target_table) rows, so a neighbor can be loaded by joining
// the mapping table with the table named in the row. The root of the
// forest is the zero Ref and is recorded with source_table "root".
//
// Known table names are cached per store. Entries expire after the
// configured TTL and can be dropped with InvalidateTable when tables are
// removed behind the store's back.
//
// # Saving
//
// Save upserts, SaveNew inserts and links the node under its parent, and
// SaveExisting updates. The Merge option leaves unset nullable columns
// untouched:
//
//	n := graph.NewNode(folderType)
//	n.Name = "inbox"
//	if err := store.SaveNew(ctx, n); err != nil {
//	    return err
//	}
//
// Every save advances Revision and Modified.
//
// # Resolving
//
// GetByReference loads one node and expands the edges named by a
// Resolving descriptor:
//
//	n, err := store.GetByReference(ctx, ref, graph.Resolve(
//	    graph.ChildrenOfType(documentType),
//	    graph.RelationsOfType(),
//	    graph.WithParent(),
//	))
//	docs, err := n.Edges.ChildrenOrErr()
//
// Children expand recursively with the same filter; relations and the
// parent expand one level. Edges that were not requested report a
// NotLoadedError.
package graph
