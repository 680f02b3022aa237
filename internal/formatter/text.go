package formatter

import (
	"fmt"
	"io"
	"time"

	"github.com/nnnLik/a-osc/internal/osc"
)

// TextFormatter formats scripts as plain SQL and results as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// FormatScript writes every statement terminated with a semicolon, grouped
// under a comment per stage
func (f *TextFormatter) FormatScript(table string, steps []osc.Step) error {
	_, _ = fmt.Fprintf(f.writer, "-- online schema change of %s\n", table)

	for _, step := range steps {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintf(f.writer, "-- %s\n", step.Stage)
		for _, stmt := range step.Statements {
			if _, err := fmt.Fprintf(f.writer, "%s;\n", stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

// FormatResult writes the summary of a completed run
func (f *TextFormatter) FormatResult(r *osc.Result) error {
	_, _ = fmt.Fprintf(f.writer, "MIGRATION %s\n", r.Table)
	_, _ = fmt.Fprintf(f.writer, "  shadow table: %s\n", r.Shadow)
	_, _ = fmt.Fprintf(f.writer, "  rows copied: %d\n", r.RowsCopied)
	_, _ = fmt.Fprintf(f.writer, "  records replayed: %d\n", r.RecordsApplied)
	_, _ = fmt.Fprintf(f.writer, "  swapped: %s\n", yesNo(r.Swapped))
	_, err := fmt.Fprintf(f.writer, "  elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
	return err
}
