package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/dialect/sql"
	nodeschema "github.com/syssam/nodestore/schema"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking indicates that statements of the shape fail against the table.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if there are any breaking changes.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			if w.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateOption configures schema validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowExtraColumns bool
}

// AllowExtraColumns reports table columns unknown to the shape as
// warnings instead of errors.
func AllowExtraColumns() ValidateOption {
	return func(c *validateConfig) {
		c.allowExtraColumns = true
	}
}

// Validate compares the shape with the physical table.
//
// A shape column missing from the table breaks every insert and select.
// A table column missing from the shape breaks typed queries selecting
// all columns, and breaks inserts when it is NOT NULL.
//
//	result, err := schema.Validate(ctx, drv, name, shape)
//	if err != nil {
//	    return err
//	}
//	if result.HasBreakingChanges() {
//	    log.Fatal("table does not match shape:", result)
//	}
func Validate(ctx context.Context, drv dialect.Driver, name sql.TableName, shape *nodeschema.Shape, opts ...ValidateOption) (*ValidationResult, error) {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	current, err := InspectColumns(ctx, drv, name)
	if err != nil {
		return nil, err
	}
	result := &ValidationResult{}
	if len(current) == 0 {
		result.Errors = append(result.Errors, &ValidationError{
			Table:    name.Name,
			Message:  "table does not exist",
			Breaking: true,
		})
		return result, nil
	}
	desired, err := NewTable(drv.Dialect(), name, shape)
	if err != nil {
		return nil, err
	}
	validateColumns(name.Name, current, desired.Columns, cfg, result)
	return result, nil
}

func validateColumns(table string, current, desired []*Column, cfg *validateConfig, result *ValidationResult) {
	currentCols := make(map[string]*Column, len(current))
	for _, c := range current {
		currentCols[c.Name] = c
	}
	desiredCols := make(map[string]*Column, len(desired))
	for _, c := range desired {
		desiredCols[c.Name] = c
	}

	for _, c := range desired {
		cur, ok := currentCols[c.Name]
		switch {
		case !ok:
			result.Errors = append(result.Errors, &ValidationError{
				Table:    table,
				Column:   c.Name,
				Message:  "column is missing from the table",
				Breaking: true,
			})
		case c.Nullable && !cur.Nullable:
			result.Errors = append(result.Errors, &ValidationError{
				Table:    table,
				Column:   c.Name,
				Message:  "nillable field is stored in a NOT NULL column",
				Breaking: true,
			})
		case !c.Nullable && cur.Nullable:
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   table,
				Column:  c.Name,
				Message: "non-nillable field is stored in a nullable column",
			})
		case c.PrimaryKey != cur.PrimaryKey:
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   table,
				Column:  c.Name,
				Message: "primary key mismatch",
			})
		}
	}

	for _, c := range current {
		if _, ok := desiredCols[c.Name]; ok {
			continue
		}
		err := &ValidationError{
			Table:    table,
			Column:   c.Name,
			Message:  "column is unknown to the shape",
			Breaking: !c.Nullable,
		}
		if cfg.allowExtraColumns && c.Nullable {
			result.Warnings = append(result.Warnings, err)
		} else {
			result.Errors = append(result.Errors, err)
		}
	}
}
