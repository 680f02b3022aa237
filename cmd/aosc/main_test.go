package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nnnLik/a-osc/internal/config"
	"github.com/nnnLik/a-osc/internal/formatter"
	"github.com/nnnLik/a-osc/internal/osc"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "console info", level: "info", format: "console"},
		{name: "json debug", level: "debug", format: "json"},
		{name: "default format", level: "warn", format: ""},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := newLogger(tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if log == nil {
				t.Fatal("Expected a logger")
			}
		})
	}
}

func TestPlanFrom(t *testing.T) {
	cfg := config.Config{
		Table:          "orders",
		Alter:          []string{"ADD COLUMN note TEXT"},
		ChunkSize:      250,
		SwapTables:     true,
		DropOldTable:   true,
		DropAuditTable: true,
		Resume:         true,
	}

	plan := planFrom(cfg)
	if plan.Table != "orders" || plan.ChunkSize != 250 || len(plan.Alterations) != 1 {
		t.Errorf("Unexpected plan: %+v", plan)
	}
	if !plan.SwapTables || !plan.DropOldTable || plan.DropTriggers || !plan.DropAuditTable || !plan.Resume {
		t.Errorf("Flags not carried over: %+v", plan)
	}
}

func TestWriteReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	cfg := config.Config{Format: "markdown", Output: path}

	err := writeReport(cfg, func(f formatter.Formatter) error {
		return f.FormatResult(&osc.Result{Table: "orders", Shadow: "_orders_new", RowsCopied: 3})
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.Contains(string(data), "# Migration report: orders") {
		t.Errorf("Unexpected report:\n%s", data)
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"plan", "cleanup"} {
		if !names[want] {
			t.Errorf("Expected subcommand %s", want)
		}
	}
	if rootCmd.PersistentFlags().Lookup("swap-tables") == nil {
		t.Error("Expected --swap-tables flag")
	}
}
