package osc

import (
	"strings"

	"github.com/nnnLik/a-osc/internal/dialect"
)

// DefaultChunkSize is used by callers that do not set one.
const DefaultChunkSize = 1000

// Plan describes one migration run. It is passed by value and never mutated.
type Plan struct {
	Table       string
	Alterations []string
	ChunkSize   int64

	SwapTables     bool
	DropOldTable   bool
	DropTriggers   bool
	DropAuditTable bool

	// Resume continues from the stored checkpoint instead of starting fresh.
	Resume bool
}

// Validate checks the plan before anything touches the database.
func (p Plan) Validate() error {
	if err := dialect.ValidIdent(p.Table); err != nil {
		return PlanError.Wrap(err)
	}
	if p.ChunkSize <= 0 {
		return PlanError.New("chunk size must be positive, got %d", p.ChunkSize)
	}
	for i, alter := range p.Alterations {
		if strings.TrimSpace(alter) == "" {
			return PlanError.New("alteration %d is empty", i)
		}
	}
	if p.DropOldTable && !p.SwapTables {
		return PlanError.New("drop-old-table requires swap-tables")
	}
	// Without a swap the triggers stay on the live table; dropping the log
	// under them would make every client write fail.
	if p.DropAuditTable && !p.SwapTables && !p.DropTriggers {
		return PlanError.New("drop-audit-table without swap-tables requires drop-triggers")
	}
	return nil
}

// SplitAlterations splits ';'-separated DDL fragments and drops empty ones.
func SplitAlterations(raw ...string) []string {
	var out []string
	for _, chunk := range raw {
		for _, part := range strings.Split(chunk, ";") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
