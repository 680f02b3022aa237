// Package dialect renders every statement the migration pipeline issues.
//
// Values are never interpolated: statements carry placeholders and the caller
// binds arguments. Identifiers cannot be bound, so table names pass through
// ValidIdent before use and column names are quoted with the dialect's quote
// character. A dialect built with a schema qualifies every table, trigger and
// function name with it; otherwise names resolve against the connection's
// current database or search_path.
package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentLength is the longest identifier accepted; PostgreSQL truncates at 63 bytes.
const MaxIdentLength = 63

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Audit log actions as written by the triggers.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Dialect generates SQL for one database engine.
type Dialect interface {
	// Name returns the driver name, "mysql" or "postgres".
	Name() string
	// Quote quotes an identifier.
	Quote(ident string) string
	// TransactionalDDL reports whether DDL statements can be grouped in a transaction.
	TransactionalDDL() bool

	CreateAuditTable(n Names) string
	CreateTriggers(n Names, columns []string, pk string) []string
	// DropTriggers removes the capture triggers from host, which is the
	// physical table the triggers are attached to at call time.
	DropTriggers(n Names, host string) []string
	CloneTable(source, target string) string
	AlterTable(table, fragment string) string
	DropTable(table string) string

	// KeyBounds selects MIN(pk), MAX(pk).
	KeyBounds(table, pk string) string
	// CopyRange copies source rows with pk between two bound values into target.
	CopyRange(source, target string, columns []string, pk string) string
	// UpsertFromSource copies the source row with the bound key into target.
	UpsertFromSource(source, target string, columns []string, pk string) string
	// UpsertRow writes one row image into target, one bound value per column.
	UpsertRow(target string, columns []string, pk string) string
	DeleteByKey(table, pk string) string

	// AuditCeiling selects MAX(id) of the audit log.
	AuditCeiling(n Names) string
	// AuditBatch selects up to a bound limit of records with id <= a bound ceiling, ascending.
	AuditBatch(n Names) string
	DeleteAuditRecord(n Names) string

	// Swap exchanges the source table and the shadow table.
	Swap(n Names) []string

	// IsBinary reports whether columns of the base data type hold raw bytes.
	IsBinary(dataType string) bool
	// IsJSON reports whether columns of the base data type hold JSON documents.
	IsJSON(dataType string) bool
	// DecodeBinary turns the text a trigger stored for a binary column back into bytes.
	DecodeBinary(text string) ([]byte, error)

	// IsDuplicateObject reports whether err means a table or trigger already exists.
	IsDuplicateObject(err error) bool
}

// ErrNotBinary is returned by DecodeBinary for text a trigger could not have
// written for a binary column.
var ErrNotBinary = errors.New("not an encoded binary value")

// For returns the dialect registered under name. A non-empty schema qualifies
// every object name the dialect renders.
func For(name, schema string) (Dialect, error) {
	if schema != "" {
		if err := ValidIdent(schema); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	switch name {
	case "mysql":
		return MySQL{Schema: schema}, nil
	case "postgres", "postgresql":
		return Postgres{Schema: schema}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", name)
	}
}

// Names holds every object name a migration of one table creates or touches.
type Names struct {
	Table         string
	Audit         string
	Shadow        string
	Old           string
	InsertTrigger string
	UpdateTrigger string
	DeleteTrigger string
	TriggerFunc   string
}

// NamesFor derives object names for table and validates all of them.
func NamesFor(table string) (Names, error) {
	n := Names{
		Table:         table,
		Audit:         "_" + table + "_audit",
		Shadow:        "_" + table + "_new",
		Old:           table + "_old",
		InsertTrigger: table + "_insert",
		UpdateTrigger: table + "_update",
		DeleteTrigger: table + "_delete",
		TriggerFunc:   table + "_audit_fn",
	}
	for _, name := range []string{n.Table, n.Audit, n.Shadow, n.Old, n.InsertTrigger,
		n.UpdateTrigger, n.DeleteTrigger, n.TriggerFunc} {
		if err := ValidIdent(name); err != nil {
			return Names{}, err
		}
	}
	return n, nil
}

// Triggers returns the three capture trigger names.
func (n Names) Triggers() []string {
	return []string{n.InsertTrigger, n.UpdateTrigger, n.DeleteTrigger}
}

// ValidIdent checks name against the identifier allow-list.
func ValidIdent(name string) error {
	if len(name) > MaxIdentLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, MaxIdentLength)
	}
	if !identPattern.MatchString(name) {
		return fmt.Errorf("identifier %q contains characters outside [A-Za-z0-9_]", name)
	}
	return nil
}

func quoteWith(q, ident string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

func qualify(d Dialect, schema, name string) string {
	if schema == "" {
		return d.Quote(name)
	}
	return d.Quote(schema) + "." + d.Quote(name)
}

func quoteList(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}
