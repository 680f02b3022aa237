package formatter

import (
	"fmt"
	"io"
	"time"

	"github.com/nnnLik/a-osc/internal/osc"
)

// MarkdownFormatter formats scripts and results as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// FormatScript writes one section with a sql block per stage
func (f *MarkdownFormatter) FormatScript(table string, steps []osc.Step) error {
	_, _ = fmt.Fprintf(f.writer, "# Migration plan: %s\n", table)

	for _, step := range steps {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintf(f.writer, "## %s\n\n", step.Stage)
		_, _ = fmt.Fprintln(f.writer, "```sql")
		for i, stmt := range step.Statements {
			if i > 0 {
				_, _ = fmt.Fprintln(f.writer)
			}
			_, _ = fmt.Fprintf(f.writer, "%s;\n", stmt)
		}
		if _, err := fmt.Fprintln(f.writer, "```"); err != nil {
			return err
		}
	}
	return nil
}

// FormatResult writes the summary of a completed run as a table
func (f *MarkdownFormatter) FormatResult(r *osc.Result) error {
	_, _ = fmt.Fprintf(f.writer, "# Migration report: %s\n\n", r.Table)
	_, _ = fmt.Fprintln(f.writer, "| | |")
	_, _ = fmt.Fprintln(f.writer, "|---|---|")
	_, _ = fmt.Fprintf(f.writer, "| Shadow table | `%s` |\n", r.Shadow)
	_, _ = fmt.Fprintf(f.writer, "| Rows copied | %d |\n", r.RowsCopied)
	_, _ = fmt.Fprintf(f.writer, "| Records replayed | %d |\n", r.RecordsApplied)
	_, _ = fmt.Fprintf(f.writer, "| Swapped | %s |\n", yesNo(r.Swapped))
	_, err := fmt.Fprintf(f.writer, "| Elapsed | %s |\n", r.Elapsed.Round(time.Millisecond))
	return err
}
