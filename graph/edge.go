package graph

import (
	"github.com/google/uuid"

	"github.com/syssam/nodestore/schema/field"
)

// Names of the mapping tables.
const (
	ChildrenTable  = "children"
	RelationsTable = "relations"
)

// RootTable is the table name recorded for Root in mapping edges.
const RootTable = "root"

// Edge is a row of a mapping table. Edges of the children table point
// from parent to child. Edges of the relations table are read in both
// directions.
type Edge struct {
	SourceGuid  uuid.UUID
	SourceTable string
	TargetGuid  uuid.UUID
	TargetTable string
}

// Fields implements schema.Entity.
func (e *Edge) Fields() []field.Field {
	return []field.Field{
		field.UUID("source_guid", &e.SourceGuid).Indexed(),
		field.String("source_table", &e.SourceTable),
		field.UUID("target_guid", &e.TargetGuid).Indexed(),
		field.String("target_table", &e.TargetTable),
	}
}
