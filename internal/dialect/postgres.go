package dialect

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes for objects that already exist.
const (
	duplicateTable    = "42P07"
	duplicateObject   = "42710"
	duplicateFunction = "42723"
)

// Postgres renders statements for PostgreSQL 11+.
type Postgres struct {
	// Schema holds the table; empty means the first schema on search_path.
	Schema string
}

// Name returns "postgres"
func (Postgres) Name() string { return "postgres" }

// Quote wraps ident in double quotes
func (Postgres) Quote(ident string) string { return quoteWith(`"`, ident) }

// TransactionalDDL is true: the cutover renames commit together
func (Postgres) TransactionalDDL() bool { return true }

func (d Postgres) table(name string) string { return qualify(d, d.Schema, name) }

func (d Postgres) CreateAuditTable(n Names) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	id BIGSERIAL PRIMARY KEY,
	action VARCHAR(10) NOT NULL,
	original_id BIGINT NOT NULL,
	row_data JSONB NOT NULL,
	action_time TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
)`, d.table(n.Audit))
}

// CreateTriggers installs one plpgsql function and a trigger per DML event.
// Row images come from to_jsonb, so columns is not needed here.
func (d Postgres) CreateTriggers(n Names, _ []string, pk string) []string {
	audit := d.table(n.Audit)
	key := d.Quote(pk)
	fn := fmt.Sprintf(`CREATE FUNCTION %[1]s() RETURNS trigger LANGUAGE plpgsql AS $fn$
BEGIN
	IF TG_OP = 'INSERT' THEN
		INSERT INTO %[2]s (action, original_id, row_data)
		VALUES ('%[4]s', NEW.%[3]s, jsonb_build_object('new', to_jsonb(NEW)));
	ELSIF TG_OP = 'UPDATE' THEN
		INSERT INTO %[2]s (action, original_id, row_data)
		VALUES ('%[5]s', NEW.%[3]s, jsonb_build_object('old', to_jsonb(OLD), 'new', to_jsonb(NEW)));
	ELSE
		INSERT INTO %[2]s (action, original_id, row_data)
		VALUES ('%[6]s', OLD.%[3]s, jsonb_build_object('old', to_jsonb(OLD)));
	END IF;
	RETURN NULL;
END
$fn$`, d.table(n.TriggerFunc), audit, key, ActionInsert, ActionUpdate, ActionDelete)

	trigger := func(name, event string) string {
		return fmt.Sprintf("CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
			d.Quote(name), event, d.table(n.Table), d.table(n.TriggerFunc))
	}

	return []string{
		fn,
		trigger(n.InsertTrigger, "INSERT"),
		trigger(n.UpdateTrigger, "UPDATE"),
		trigger(n.DeleteTrigger, "DELETE"),
	}
}

func (d Postgres) DropTriggers(n Names, host string) []string {
	var stmts []string
	for _, trigger := range n.Triggers() {
		stmts = append(stmts, fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", d.Quote(trigger), d.table(host)))
	}
	return append(stmts, fmt.Sprintf("DROP FUNCTION IF EXISTS %s()", d.table(n.TriggerFunc)))
}

func (d Postgres) CloneTable(source, target string) string {
	return fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", d.table(target), d.table(source))
}

func (d Postgres) AlterTable(table, fragment string) string {
	return fmt.Sprintf("ALTER TABLE %s %s", d.table(table), fragment)
}

func (d Postgres) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.table(table)
}

func (d Postgres) KeyBounds(table, pk string) string {
	return fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s", d.Quote(pk), d.table(table))
}

func (d Postgres) CopyRange(source, target string, columns []string, pk string) string {
	cols := quoteList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s BETWEEN $1 AND $2 %s",
		d.table(target), cols, cols, d.table(source), d.Quote(pk), d.onConflict(columns, pk))
}

func (d Postgres) UpsertFromSource(source, target string, columns []string, pk string) string {
	cols := quoteList(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s = $1 %s",
		d.table(target), cols, cols, d.table(source), d.Quote(pk), d.onConflict(columns, pk))
}

func (d Postgres) UpsertRow(target string, columns []string, pk string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		d.table(target), quoteList(d, columns), strings.Join(marks, ", "), d.onConflict(columns, pk))
}

func (d Postgres) DeleteByKey(table, pk string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", d.table(table), d.Quote(pk))
}

func (d Postgres) AuditCeiling(n Names) string {
	return "SELECT MAX(id) FROM " + d.table(n.Audit)
}

func (d Postgres) AuditBatch(n Names) string {
	return fmt.Sprintf("SELECT id, action, original_id, row_data, action_time FROM %s WHERE id <= $1 ORDER BY id LIMIT $2",
		d.table(n.Audit))
}

func (d Postgres) DeleteAuditRecord(n Names) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = $1", d.table(n.Audit))
}

// Swap renames both tables and hands sequences owned by the old table's
// columns over to the new table, so dropping the old table later does not
// take the live table's serial defaults with it. Run inside one transaction.
// RENAME TO keeps the table in its schema, so the new names stay unqualified.
func (d Postgres) Swap(n Names) []string {
	reown := fmt.Sprintf(`DO $swap$
DECLARE r record;
BEGIN
	FOR r IN
		SELECT s.oid::regclass::text AS seq, a.attname AS col
		FROM pg_depend dep
		JOIN pg_class s ON s.oid = dep.objid AND s.relkind = 'S'
		JOIN pg_attribute a ON a.attrelid = dep.refobjid AND a.attnum = dep.refobjsubid
		WHERE dep.refobjid = '%[1]s'::regclass AND dep.deptype = 'a'
	LOOP
		EXECUTE format('ALTER SEQUENCE %%s OWNED BY %[2]s.%%I', r.seq, r.col);
	END LOOP;
END
$swap$`, d.table(n.Old), d.table(n.Table))

	return []string{
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.table(n.Table), d.Quote(n.Old)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.table(n.Shadow), d.Quote(n.Table)),
		reown,
	}
}

// IsBinary is true for bytea only; bit strings serialize as text.
func (Postgres) IsBinary(dataType string) bool { return strings.EqualFold(dataType, "bytea") }

func (Postgres) IsJSON(dataType string) bool {
	return strings.EqualFold(dataType, "json") || strings.EqualFold(dataType, "jsonb")
}

// DecodeBinary reads the \x hex form to_jsonb uses for bytea.
func (Postgres) DecodeBinary(text string) ([]byte, error) {
	digits, ok := strings.CutPrefix(text, `\x`)
	if !ok {
		return nil, ErrNotBinary
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, err
	}
	if b == nil {
		// A nil slice would bind NULL instead of an empty bytea.
		b = []byte{}
	}
	return b, nil
}

func (Postgres) IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case duplicateTable, duplicateObject, duplicateFunction:
		return true
	default:
		return false
	}
}

func (d Postgres) onConflict(columns []string, pk string) string {
	var sets []string
	for _, col := range columns {
		if col == pk {
			continue
		}
		sets = append(sets, fmt.Sprintf("%[1]s = EXCLUDED.%[1]s", d.Quote(col)))
	}
	if len(sets) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", d.Quote(pk))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", d.Quote(pk), strings.Join(sets, ", "))
}
