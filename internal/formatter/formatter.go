package formatter

import (
	"fmt"
	"io"

	"github.com/nnnLik/a-osc/internal/osc"
)

// Formatter writes dry-run scripts and run summaries.
type Formatter interface {
	FormatScript(table string, steps []osc.Step) error
	FormatResult(r *osc.Result) error
}

// New returns the formatter for format, "text" or "markdown".
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "text", "":
		return NewTextFormatter(w), nil
	case "markdown", "md":
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (must be text or markdown)", format)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
