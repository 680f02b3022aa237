package schema

import "strings"

// Table represents a database table as seen by the migration
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// Column represents a table column
type Column struct {
	Name         string
	Type         string // full column type, e.g. varchar(255)
	DataType     string // base type, e.g. varchar
	Nullable     bool
	DefaultValue *string
}

// ColumnNames returns the column names in ordinal order
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	return names
}

// Column looks up a column by name
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// SharedColumns returns the columns of t that also exist in other, in t's order.
func (t *Table) SharedColumns(other *Table) []string {
	var shared []string
	for _, col := range t.Columns {
		if _, ok := other.Column(col.Name); ok {
			shared = append(shared, col.Name)
		}
	}
	return shared
}

// IsIntegerType reports whether a base data type holds integers.
// Covers both MySQL and PostgreSQL spellings.
func IsIntegerType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "smallserial", "serial", "bigserial":
		return true
	default:
		return false
	}
}

