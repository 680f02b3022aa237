package osc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanValidate(t *testing.T) {
	base := Plan{Table: "users", ChunkSize: 1000, Alterations: []string{"ADD COLUMN note TEXT"}}

	tests := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr string
	}{
		{name: "valid", mutate: func(p *Plan) {}},
		{name: "no alterations", mutate: func(p *Plan) { p.Alterations = nil }},
		{
			name:    "bad table name",
			mutate:  func(p *Plan) { p.Table = "users; DROP TABLE x" },
			wantErr: "contains characters",
		},
		{
			name:    "zero chunk size",
			mutate:  func(p *Plan) { p.ChunkSize = 0 },
			wantErr: "chunk size must be positive",
		},
		{
			name:    "blank alteration",
			mutate:  func(p *Plan) { p.Alterations = []string{"ADD COLUMN a INT", "  "} },
			wantErr: "alteration 1 is empty",
		},
		{
			name:    "drop old without swap",
			mutate:  func(p *Plan) { p.DropOldTable = true },
			wantErr: "requires swap-tables",
		},
		{
			name:    "drop audit under live triggers",
			mutate:  func(p *Plan) { p.DropAuditTable = true },
			wantErr: "requires drop-triggers",
		},
		{
			name: "drop audit with triggers",
			mutate: func(p *Plan) {
				p.DropAuditTable = true
				p.DropTriggers = true
			},
		},
		{
			name: "full cleanup",
			mutate: func(p *Plan) {
				p.SwapTables = true
				p.DropOldTable = true
				p.DropTriggers = true
				p.DropAuditTable = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, PlanError.Has(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitAlterations(t *testing.T) {
	got := SplitAlterations(
		"ADD COLUMN a INT; ADD COLUMN b INT;",
		"  ",
		"DROP COLUMN c",
	)
	assert.Equal(t, []string{"ADD COLUMN a INT", "ADD COLUMN b INT", "DROP COLUMN c"}, got)
	assert.Nil(t, SplitAlterations())
}
