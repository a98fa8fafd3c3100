// Package field provides typed builders that bind table columns to the
// struct fields of an entity.
//
// An entity lists its columns by binding each one to a field of the
// receiver, so a type mismatch between column and struct field fails to
// compile:
//
//	func (f *Folder) Fields() []field.Field {
//	    return []field.Field{
//	        field.UUID("guid", &f.Guid).PrimaryKey(),
//	        field.String("name", &f.Name),
//	        field.OptionalFloat64("size", &f.Size),
//	        field.Time("created", &f.Created),
//	    }
//	}
//
// # Field Types
//
//	field.String("name", &e.Name)          // varchar/text
//	field.Text("body", &e.Body)            // unbounded text
//	field.Int32("order", &e.Order)
//	field.Int64("id", &e.ID).Increment()   // generated primary key
//	field.Float64("price", &e.Price)
//	field.Bool("debug", &e.Debug)
//	field.Bytes("data", &e.Data)
//	field.UUID("guid", &e.Guid)
//	field.Time("created", &e.Created)      // offset-preserving text
//	field.Other("amount", &e.Amount)       // custom Valuer/Scanner
//
// # Nullability
//
// Columns are NOT NULL unless marked Nillable. A nillable column stores the
// zero value of its Go type as NULL and reads NULL back as the zero value.
// The Optional builders bind pointer fields and are always nillable:
//
//	field.String("name", &e.Name).Nillable()
//	field.OptionalTime("due", &e.Due)       // e.Due is *time.Time
//
// Under merge writes, nillable columns holding their zero value are left
// out of the statement, so the stored value is kept.
package field
