package db

import (
	"context"
	"fmt"

	"github.com/nnnLik/a-osc/internal/schema"
)

// PostgresIntrospector reads table structure from PostgreSQL's information_schema
type PostgresIntrospector struct {
	schema string
}

// NewPostgresIntrospector creates a new PostgreSQL introspector.
// An empty schemaName means current_schema().
func NewPostgresIntrospector(schemaName string) *PostgresIntrospector {
	return &PostgresIntrospector{
		schema: schemaName,
	}
}

// Table extracts columns and primary key of a single table
func (e *PostgresIntrospector) Table(ctx context.Context, q Querier, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName}

	columns, err := e.extractColumns(ctx, q, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: %w", tableName, ErrTableNotFound)
	}
	table.Columns = columns

	pk, err := e.extractPrimaryKey(ctx, q, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract primary key: %w", err)
	}
	table.PrimaryKey = pk

	return table, nil
}

// columnType renders udt_name with its length, e.g. varchar(64) or timestamptz
func columnType(udtName string, charMaxLength *int) string {
	if charMaxLength != nil {
		return fmt.Sprintf("%s(%d)", udtName, *charMaxLength)
	}
	return udtName
}

// extractColumns extracts column information for a table
func (e *PostgresIntrospector) extractColumns(ctx context.Context, q Querier, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.udt_name,
			c.character_maximum_length
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		var defaultVal *string
		var udtName string
		var charMaxLength *int

		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &defaultVal, &udtName, &charMaxLength); err != nil {
			return nil, err
		}

		col.Nullable = (nullable == "YES")
		col.DefaultValue = defaultVal
		col.Type = columnType(udtName, charMaxLength)

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// extractPrimaryKey extracts primary key columns
func (e *PostgresIntrospector) extractPrimaryKey(ctx context.Context, q Querier, tableName string) ([]string, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.table_constraints tc
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE kcu.table_schema = COALESCE(NULLIF($1, ''), current_schema())
			AND kcu.table_name = $2
			AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var colName string
		if err := rows.Scan(&colName); err != nil {
			return nil, err
		}
		pk = append(pk, colName)
	}

	return pk, rows.Err()
}
