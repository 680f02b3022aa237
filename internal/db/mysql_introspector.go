package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nnnLik/a-osc/internal/schema"
)

// MySQLIntrospector reads table structure from MySQL's information_schema
type MySQLIntrospector struct {
	schemaName string
}

// NewMySQLIntrospector creates a new MySQL introspector.
// An empty schemaName means the connection's current database.
func NewMySQLIntrospector(schemaName string) *MySQLIntrospector {
	return &MySQLIntrospector{
		schemaName: schemaName,
	}
}

// Table extracts columns and primary key of a single table
func (e *MySQLIntrospector) Table(ctx context.Context, q Querier, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName}

	// Extract columns
	columns, err := e.extractColumns(ctx, q, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: %w", tableName, ErrTableNotFound)
	}
	table.Columns = columns

	// Extract primary key
	pk, err := e.extractPrimaryKey(ctx, q, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract primary key: %w", err)
	}
	table.PrimaryKey = pk

	return table, nil
}

// extractColumns extracts column information for a table
func (e *MySQLIntrospector) extractColumns(ctx context.Context, q Querier, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.data_type,
			c.is_nullable,
			c.column_default
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &col.DataType, &nullable, &defaultVal); err != nil {
			return nil, err
		}

		col.Nullable = (nullable == "YES")
		if defaultVal.Valid {
			col.DefaultValue = &defaultVal.String
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// extractPrimaryKey extracts primary key columns
func (e *MySQLIntrospector) extractPrimaryKey(ctx context.Context, q Querier, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
			AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, e.schemaName, tableName)
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
