// Package schema derives table shapes from entity definitions.
//
// An entity is any pointer type whose Fields method binds columns to its
// struct fields (see package field). The Registry describes each entity
// type once and caches the resulting Shape:
//
//	reg := schema.NewRegistry()
//	shape, err := reg.Describe(&Folder{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(shape.Key, shape.PrimaryKey().Name)
//
// A shape has at most one primary key column. It decides the identity
// contract of the entity: a generated integer key, a caller-supplied
// unique key, or no key at all (append-only rows).
package schema
