//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	aosc "github.com/nnnLik/a-osc"
	"github.com/nnnLik/a-osc/internal/dialect"
	"github.com/nnnLik/a-osc/internal/osc"
)

// target is one running database the suite migrates against.
type target struct {
	url           string
	db            *sql.DB
	dialect       dialect.Dialect
	introspector  osc.Introspector
	currentSchema string // SQL expression naming the connection's schema
	createOrders  string
	createSchema  string // creates the reporting schema

	// events exercises column types whose row images need decoding.
	createEvents string
	seedEvents   string
	updateEvents []string
	sameValue    string // null-safe equality of column %[1]s between aliases s and n
}

// seedOrders recreates the orders table with rows 1..n.
func seedOrders(t *testing.T, tg target, n int) {
	t.Helper()
	ctx := context.Background()

	for _, table := range []string{"orders", "orders_old", "_orders_new", "_orders_audit"} {
		mustExec(t, tg.db, tg.dialect.DropTable(table))
	}
	mustExec(t, tg.db, tg.createOrders)

	for start := 1; start <= n; start += 500 {
		var values []string
		for id := start; id < start+500 && id <= n; id++ {
			values = append(values, fmt.Sprintf("(%d, 'open', %d.25, %d)", id, id, id%7))
		}
		stmt := "INSERT INTO orders (id, status, amount, legacy) VALUES " + strings.Join(values, ", ")
		if _, err := tg.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("Failed to seed orders: %v", err)
		}
	}
}

func mustExec(t *testing.T, db *sql.DB, stmt string) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), stmt); err != nil {
		t.Fatalf("Failed to execute %q: %v", stmt, err)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func statusOf(t *testing.T, db *sql.DB, table string, id int) string {
	t.Helper()
	var status string
	query := fmt.Sprintf("SELECT status FROM %s WHERE id = %d", table, id)
	if err := db.QueryRowContext(context.Background(), query).Scan(&status); err != nil {
		t.Fatalf("Failed to read status of %s.%d: %v", table, id, err)
	}
	return status
}

// verifyTableExists checks whether a table is present in the connection's schema
func verifyTableExists(t *testing.T, tg target, table string, want bool) {
	t.Helper()
	var n int
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = %s AND table_name = '%s'",
		tg.currentSchema, table)
	if err := tg.db.QueryRowContext(context.Background(), query).Scan(&n); err != nil {
		t.Fatalf("Failed to look up table %s: %v", table, err)
	}
	if (n > 0) != want {
		t.Errorf("Expected table %s exists=%v", table, want)
	}
}

// verifyColumns checks that expected columns exist in a table and others do not
func verifyColumns(t *testing.T, tg target, table string, present, absent []string) {
	t.Helper()
	got, err := tg.introspector.Table(context.Background(), tg.db, table)
	if err != nil {
		t.Fatalf("Failed to introspect %s: %v", table, err)
	}

	columnMap := make(map[string]bool)
	for _, name := range got.ColumnNames() {
		columnMap[name] = true
	}
	for _, name := range present {
		if !columnMap[name] {
			t.Errorf("Expected column %s not found in %s table", name, table)
		}
	}
	for _, name := range absent {
		if columnMap[name] {
			t.Errorf("Column %s should not exist in %s table", name, table)
		}
	}
}

// verifyShadowMatches checks that shadow holds exactly the rows of source
func verifyShadowMatches(t *testing.T, tg target, source, shadow string, columns []string) {
	t.Helper()
	if got, want := countRows(t, tg.db, shadow), countRows(t, tg.db, source); got != want {
		t.Errorf("Expected %d rows in %s, got %d", want, shadow, got)
	}

	same := make([]string, len(columns))
	for i, col := range columns {
		same[i] = fmt.Sprintf(tg.sameValue, col)
	}
	query := fmt.Sprintf("SELECT s.id FROM %s s JOIN %s n ON s.id = n.id WHERE NOT (%s) ORDER BY s.id",
		source, shadow, strings.Join(same, " AND "))
	rows, err := tg.db.QueryContext(context.Background(), query)
	if err != nil {
		t.Fatalf("Failed to compare %s with %s: %v", source, shadow, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		t.Errorf("Row %d differs between %s and %s", id, source, shadow)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
}

// runMigrationSuite runs every end-to-end scenario against tg
func runMigrationSuite(t *testing.T, tg target) {
	ctx := context.Background()
	alterations := []string{"ADD COLUMN note VARCHAR(255) NULL", "DROP COLUMN legacy"}

	t.Run("swap with full cleanup", func(t *testing.T) {
		seedOrders(t, tg, 2500)

		result, err := aosc.Migrate(ctx, tg.url, aosc.Plan{
			Table:          "orders",
			Alterations:    alterations,
			ChunkSize:      1000,
			SwapTables:     true,
			DropOldTable:   true,
			DropTriggers:   true,
			DropAuditTable: true,
		}, &aosc.Options{Logger: zaptest.NewLogger(t)})
		if err != nil {
			t.Fatalf("Migration failed: %v", err)
		}

		if !result.Swapped {
			t.Error("Expected tables to be swapped")
		}
		if got := countRows(t, tg.db, "orders"); got != 2500 {
			t.Errorf("Expected 2500 rows after swap, got %d", got)
		}
		verifyColumns(t, tg, "orders", []string{"id", "status", "amount", "note"}, []string{"legacy"})
		verifyTableExists(t, tg, "orders_old", false)
		verifyTableExists(t, tg, "_orders_new", false)
		verifyTableExists(t, tg, "_orders_audit", false)

		// The live table accepts writes with the new column.
		mustExec(t, tg.db, "INSERT INTO orders (id, status, amount, note) VALUES (9001, 'open', 1.00, 'after swap')")
	})

	t.Run("writes during the run are replayed", func(t *testing.T) {
		seedOrders(t, tg, 100)
		log := zaptest.NewLogger(t)
		n, err := dialect.NamesFor("orders")
		if err != nil {
			t.Fatal(err)
		}

		conn, err := tg.db.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		source, err := tg.introspector.Table(ctx, conn, "orders")
		if err != nil {
			t.Fatal(err)
		}
		if err := osc.NewAuditLayer(log, tg.dialect).Install(ctx, conn, n, source); err != nil {
			t.Fatalf("Install failed: %v", err)
		}
		if err := osc.NewShadowBuilder(log, tg.dialect).Build(ctx, conn, n, alterations); err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		copier := osc.NewCopier(log, tg.dialect)
		job := osc.CopyJob{Source: n.Table, Shadow: n.Shadow, Columns: []string{"id", "status", "amount"}, PK: "id", ChunkSize: 10}

		// Copy up to 40, write on both sides of the copied range, then finish.
		if _, err := copier.CopyRanges(ctx, conn, job, osc.ChunkRange{Low: 1, High: 40}, 1); err != nil {
			t.Fatalf("Backfill failed: %v", err)
		}
		mustExec(t, tg.db, "UPDATE orders SET status = 'closed' WHERE id = 42")
		mustExec(t, tg.db, "UPDATE orders SET status = 'shipped' WHERE id = 3")
		mustExec(t, tg.db, "DELETE FROM orders WHERE id = 7")
		mustExec(t, tg.db, "INSERT INTO orders (id, status, amount, legacy) VALUES (101, 'new', 5.00, 1)")
		if _, err := copier.CopyRanges(ctx, conn, job, osc.ChunkRange{Low: 1, High: 100}, 41); err != nil {
			t.Fatalf("Backfill failed: %v", err)
		}

		target := osc.ReplayTarget{Names: n, Columns: job.Columns, PK: "id"}
		replayer := osc.NewReplayer(log, tg.dialect, 2)
		applied, err := replayer.Drain(ctx, conn, target)
		if err != nil {
			t.Fatalf("Drain failed: %v", err)
		}
		if applied != 4 {
			t.Errorf("Expected 4 audit records applied, got %d", applied)
		}

		if got := statusOf(t, tg.db, n.Shadow, 42); got != "closed" {
			t.Errorf("Expected row 42 to be closed, got %s", got)
		}
		if got := statusOf(t, tg.db, n.Shadow, 3); got != "shipped" {
			t.Errorf("Expected row 3 to be shipped, got %s", got)
		}
		if got := countRows(t, tg.db, n.Shadow); got != 100 {
			t.Errorf("Expected 100 rows in shadow table, got %d", got)
		}

		// A second drain right after the first is a no-op.
		applied, err = replayer.Drain(ctx, conn, target)
		if err != nil {
			t.Fatalf("Second drain failed: %v", err)
		}
		if applied != 0 {
			t.Errorf("Expected second drain to apply nothing, applied %d", applied)
		}

		if err := aosc.Cleanup(ctx, tg.url, "orders", nil); err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
	})

	t.Run("typed columns are replayed", func(t *testing.T) {
		log := zaptest.NewLogger(t)
		n, err := dialect.NamesFor("events")
		if err != nil {
			t.Fatal(err)
		}
		for _, table := range []string{n.Table, n.Shadow, n.Audit} {
			mustExec(t, tg.db, tg.dialect.DropTable(table))
		}
		mustExec(t, tg.db, tg.createEvents)
		mustExec(t, tg.db, tg.seedEvents)

		conn, err := tg.db.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		source, err := tg.introspector.Table(ctx, conn, n.Table)
		if err != nil {
			t.Fatal(err)
		}
		if err := osc.NewAuditLayer(log, tg.dialect).Install(ctx, conn, n, source); err != nil {
			t.Fatalf("Install failed: %v", err)
		}
		if err := osc.NewShadowBuilder(log, tg.dialect).Build(ctx, conn, n, nil); err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		columns := source.ColumnNames()
		copier := osc.NewCopier(log, tg.dialect)
		job := osc.CopyJob{Source: n.Table, Shadow: n.Shadow, Columns: columns, PK: "id", ChunkSize: 1}
		span := osc.ChunkRange{Low: 1, High: 3}

		// Row 1 is copied before the writes, rows 2 and 3 after.
		if _, err := copier.CopyRanges(ctx, conn, job, osc.ChunkRange{Low: 1, High: 1}, 1); err != nil {
			t.Fatalf("Backfill failed: %v", err)
		}
		for _, stmt := range tg.updateEvents {
			mustExec(t, tg.db, stmt)
		}
		if _, err := copier.CopyRanges(ctx, conn, job, span, 2); err != nil {
			t.Fatalf("Backfill failed: %v", err)
		}

		// Replay runs last, so every row in the shadow ends as its replayed image.
		target := osc.ReplayTarget{Names: n, Columns: columns, PK: "id", Kinds: osc.ColumnKinds(tg.dialect, source)}
		if _, err := osc.NewReplayer(log, tg.dialect, 0).Drain(ctx, conn, target); err != nil {
			t.Fatalf("Drain failed: %v", err)
		}
		verifyShadowMatches(t, tg, n.Table, n.Shadow, columns)

		if err := aosc.Cleanup(ctx, tg.url, n.Table, nil); err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
	})

	t.Run("without swap", func(t *testing.T) {
		seedOrders(t, tg, 300)

		result, err := aosc.Migrate(ctx, tg.url, aosc.Plan{
			Table:       "orders",
			Alterations: alterations,
			ChunkSize:   128,
		}, &aosc.Options{Logger: zaptest.NewLogger(t)})
		if err != nil {
			t.Fatalf("Migration failed: %v", err)
		}

		if result.Swapped {
			t.Error("Expected no swap")
		}
		verifyColumns(t, tg, "orders", []string{"legacy"}, []string{"note"})
		verifyColumns(t, tg, "_orders_new", []string{"note"}, []string{"legacy"})
		if got := countRows(t, tg.db, "_orders_new"); got != 300 {
			t.Errorf("Expected 300 rows in shadow table, got %d", got)
		}
		verifyTableExists(t, tg, "_orders_audit", true)

		// Triggers are still live, so a second run finds the audit table.
		_, err = aosc.Migrate(ctx, tg.url, aosc.Plan{Table: "orders", ChunkSize: 128}, nil)
		if !osc.DuplicateObjectError.Has(err) {
			t.Errorf("Expected duplicate object error, got %v", err)
		}

		if err := aosc.Cleanup(ctx, tg.url, "orders", nil); err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		verifyTableExists(t, tg, "_orders_new", false)
		verifyTableExists(t, tg, "_orders_audit", false)
		mustExec(t, tg.db, "UPDATE orders SET status = 'open' WHERE id = 1")
	})

	t.Run("empty table", func(t *testing.T) {
		seedOrders(t, tg, 0)

		result, err := aosc.Migrate(ctx, tg.url, aosc.Plan{
			Table:          "orders",
			Alterations:    alterations,
			SwapTables:     true,
			DropTriggers:   true,
			DropAuditTable: true,
		}, &aosc.Options{Logger: zaptest.NewLogger(t)})
		if err != nil {
			t.Fatalf("Migration failed: %v", err)
		}

		if result.RowsCopied != 0 || result.RecordsApplied != 0 {
			t.Errorf("Expected nothing copied or replayed, got %+v", result)
		}
		if got := countRows(t, tg.db, "orders"); got != 0 {
			t.Errorf("Expected empty table, got %d rows", got)
		}
		verifyColumns(t, tg, "orders", []string{"note"}, []string{"legacy"})
		verifyTableExists(t, tg, "orders_old", true)
	})

	t.Run("plan does not touch the database", func(t *testing.T) {
		seedOrders(t, tg, 10)

		steps, err := aosc.Script(ctx, tg.url, aosc.Plan{Table: "orders", Alterations: alterations, SwapTables: true}, nil)
		if err != nil {
			t.Fatalf("Script failed: %v", err)
		}
		if len(steps) != 5 {
			t.Errorf("Expected 5 stages, got %d", len(steps))
		}
		verifyTableExists(t, tg, "_orders_audit", false)
		verifyTableExists(t, tg, "_orders_new", false)
	})

	t.Run("schema option targets that schema only", func(t *testing.T) {
		seedOrders(t, tg, 20)
		mustExec(t, tg.db, tg.createSchema)

		reporting, err := dialect.For(tg.dialect.Name(), "reporting")
		if err != nil {
			t.Fatal(err)
		}
		for _, table := range []string{"orders", "orders_old", "_orders_new", "_orders_audit"} {
			mustExec(t, tg.db, reporting.DropTable(table))
		}
		mustExec(t, tg.db, strings.Replace(tg.createOrders, "CREATE TABLE orders", "CREATE TABLE reporting.orders", 1))
		mustExec(t, tg.db, "INSERT INTO reporting.orders (id, status, amount, legacy) VALUES (1, 'open', 1.00, 1), (2, 'open', 2.00, 2), (3, 'open', 3.00, 3)")

		_, err = aosc.Migrate(ctx, tg.url, aosc.Plan{
			Table:          "orders",
			Alterations:    alterations,
			ChunkSize:      2,
			SwapTables:     true,
			DropOldTable:   true,
			DropTriggers:   true,
			DropAuditTable: true,
		}, &aosc.Options{SchemaName: "reporting", Logger: zaptest.NewLogger(t)})
		if err != nil {
			t.Fatalf("Migration failed: %v", err)
		}

		if got := countRows(t, tg.db, "reporting.orders"); got != 3 {
			t.Errorf("Expected 3 rows in reporting.orders, got %d", got)
		}
		mustExec(t, tg.db, "UPDATE reporting.orders SET note = 'migrated' WHERE id = 1")

		// The same-named table in the connection's schema is left alone.
		verifyColumns(t, tg, "orders", []string{"legacy"}, []string{"note"})
		if got := countRows(t, tg.db, "orders"); got != 20 {
			t.Errorf("Expected 20 rows in orders, got %d", got)
		}
		verifyTableExists(t, tg, "_orders_new", false)
		verifyTableExists(t, tg, "_orders_audit", false)
	})
}