package dialect

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers for objects that already exist.
const (
	erTableExists   = 1050
	erTriggerExists = 1359
)

// JSON_OBJECT writes binary strings as base64:type<field type>:<data>.
var mysqlBinaryPattern = regexp.MustCompile(`^base64:type\d+:`)

// MySQL renders statements for MySQL 8.0.19+.
type MySQL struct {
	// Schema is the database holding the table; empty means the connection's default.
	Schema string
}

// Name returns "mysql"
func (MySQL) Name() string { return "mysql" }

// Quote wraps ident in backticks
func (MySQL) Quote(ident string) string { return quoteWith("`", ident) }

// TransactionalDDL is false: every DDL statement commits implicitly
func (MySQL) TransactionalDDL() bool { return false }

func (d MySQL) table(name string) string { return qualify(d, d.Schema, name) }

func (d MySQL) CreateAuditTable(n Names) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	action VARCHAR(10) NOT NULL,
	original_id BIGINT NOT NULL,
	row_data JSON NOT NULL,
	action_time TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
)`, d.table(n.Audit))
}

func (d MySQL) CreateTriggers(n Names, columns []string, pk string) []string {
	image := func(ref string) string {
		pairs := make([]string, len(columns))
		for i, col := range columns {
			pairs[i] = mysqlString(col) + ", " + ref + "." + d.Quote(col)
		}
		return "JSON_OBJECT(" + strings.Join(pairs, ", ") + ")"
	}

	trigger := func(name, event, action, keyRef, payload string) string {
		return fmt.Sprintf(`CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW
INSERT INTO %s (action, original_id, row_data)
VALUES ('%s', %s.%s, %s)`,
			d.table(name), event, d.table(n.Table), d.table(n.Audit), action, keyRef, d.Quote(pk), payload)
	}

	return []string{
		trigger(n.InsertTrigger, "INSERT", ActionInsert, "NEW",
			"JSON_OBJECT('new', "+image("NEW")+")"),
		trigger(n.UpdateTrigger, "UPDATE", ActionUpdate, "NEW",
			"JSON_OBJECT('old', "+image("OLD")+", 'new', "+image("NEW")+")"),
		trigger(n.DeleteTrigger, "DELETE", ActionDelete, "OLD",
			"JSON_OBJECT('old', "+image("OLD")+")"),
	}
}

// DropTriggers ignores host: MySQL trigger names are unique per schema.
func (d MySQL) DropTriggers(n Names, _ string) []string {
	var stmts []string
	for _, trigger := range n.Triggers() {
		stmts = append(stmts, "DROP TRIGGER IF EXISTS "+d.table(trigger))
	}
	return stmts
}

func (d MySQL) CloneTable(source, target string) string {
	return fmt.Sprintf("CREATE TABLE %s LIKE %s", d.table(target), d.table(source))
}

func (d MySQL) AlterTable(table, fragment string) string {
	return fmt.Sprintf("ALTER TABLE %s %s", d.table(table), fragment)
}

func (d MySQL) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.table(table)
}

func (d MySQL) KeyBounds(table, pk string) string {
	return fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s", d.Quote(pk), d.table(table))
}

func (d MySQL) CopyRange(source, target string, columns []string, pk string) string {
	return d.insertSelect(source, target, columns, fmt.Sprintf("%s BETWEEN ? AND ?", d.Quote(pk)), pk)
}

func (d MySQL) UpsertFromSource(source, target string, columns []string, pk string) string {
	return d.insertSelect(source, target, columns, d.Quote(pk)+" = ?", pk)
}

func (d MySQL) UpsertRow(target string, columns []string, pk string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) AS %s ON DUPLICATE KEY UPDATE %s",
		d.table(target), quoteList(d, columns), marks, rowAlias, d.onDuplicate(columns, pk, rowAlias))
}

func (d MySQL) DeleteByKey(table, pk string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", d.table(table), d.Quote(pk))
}

func (d MySQL) AuditCeiling(n Names) string {
	return "SELECT MAX(id) FROM " + d.table(n.Audit)
}

func (d MySQL) AuditBatch(n Names) string {
	return fmt.Sprintf("SELECT id, action, original_id, row_data, action_time FROM %s WHERE id <= ? ORDER BY id LIMIT ?",
		d.table(n.Audit))
}

func (d MySQL) DeleteAuditRecord(n Names) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = ?", d.table(n.Audit))
}

// Swap is a single RENAME TABLE, which MySQL applies atomically.
func (d MySQL) Swap(n Names) []string {
	return []string{fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s",
		d.table(n.Table), d.table(n.Old), d.table(n.Shadow), d.table(n.Table))}
}

func (MySQL) IsBinary(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob", "bit":
		return true
	default:
		return false
	}
}

func (MySQL) IsJSON(dataType string) bool { return strings.EqualFold(dataType, "json") }

// DecodeBinary strips the base64:typeNN: prefix JSON_OBJECT puts on binary strings.
func (MySQL) DecodeBinary(text string) ([]byte, error) {
	loc := mysqlBinaryPattern.FindStringIndex(text)
	if loc == nil {
		return nil, ErrNotBinary
	}
	return base64.StdEncoding.DecodeString(text[loc[1]:])
}

func (MySQL) IsDuplicateObject(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == erTableExists || myErr.Number == erTriggerExists
}

// Aliases for the incoming row in ON DUPLICATE KEY UPDATE, which replace the
// deprecated VALUES(col) form.
const (
	rowAlias    = "`new`"
	sourceAlias = "`src`"
)

// insertSelect upserts the source rows matching where into target.
func (d MySQL) insertSelect(source, target string, columns []string, where, pk string) string {
	cols := quoteList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS %s WHERE %s ON DUPLICATE KEY UPDATE %s",
		d.table(target), cols, cols, d.table(source), sourceAlias, where, d.onDuplicate(columns, pk, sourceAlias))
}

func (d MySQL) onDuplicate(columns []string, pk, alias string) string {
	var sets []string
	for _, col := range columns {
		if col == pk {
			continue
		}
		sets = append(sets, fmt.Sprintf("%[1]s = %[2]s.%[1]s", d.Quote(col), alias))
	}
	if len(sets) == 0 {
		return fmt.Sprintf("%[1]s = %[1]s", d.Quote(pk))
	}
	return strings.Join(sets, ", ")
}

func mysqlString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
