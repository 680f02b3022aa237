package formatter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnnLik/a-osc/internal/osc"
)

var steps = []osc.Step{
	{Stage: "shadow", Statements: []string{
		"CREATE TABLE `_users_new` LIKE `users`",
		"ALTER TABLE `_users_new` ADD COLUMN note TEXT",
	}},
	{Stage: "cutover", Statements: []string{
		"RENAME TABLE `users` TO `users_old`, `_users_new` TO `users`",
	}},
}

var result = &osc.Result{
	Table:          "users",
	Shadow:         "_users_new",
	RowsCopied:     2500,
	RecordsApplied: 12,
	Swapped:        true,
	Elapsed:        1234567 * time.Microsecond,
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewTextFormatter(&buf)

	require.NoError(t, f.FormatScript("users", steps))
	assert.Equal(t, "-- online schema change of users\n"+
		"\n"+
		"-- shadow\n"+
		"CREATE TABLE `_users_new` LIKE `users`;\n"+
		"ALTER TABLE `_users_new` ADD COLUMN note TEXT;\n"+
		"\n"+
		"-- cutover\n"+
		"RENAME TABLE `users` TO `users_old`, `_users_new` TO `users`;\n", buf.String())

	buf.Reset()
	require.NoError(t, f.FormatResult(result))
	assert.Equal(t, "MIGRATION users\n"+
		"  shadow table: _users_new\n"+
		"  rows copied: 2500\n"+
		"  records replayed: 12\n"+
		"  swapped: yes\n"+
		"  elapsed: 1.235s\n", buf.String())
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewMarkdownFormatter(&buf)

	require.NoError(t, f.FormatScript("users", steps))
	out := buf.String()
	assert.Contains(t, out, "# Migration plan: users\n")
	assert.Contains(t, out, "## shadow\n\n```sql\nCREATE TABLE `_users_new` LIKE `users`;\n\nALTER TABLE")
	assert.Contains(t, out, "## cutover\n")

	buf.Reset()
	require.NoError(t, f.FormatResult(result))
	assert.Contains(t, buf.String(), "| Rows copied | 2500 |")
	assert.Contains(t, buf.String(), "| Swapped | yes |")
}

func TestNew(t *testing.T) {
	for _, format := range []string{"text", "markdown", "md", ""} {
		f, err := New(format, &bytes.Buffer{})
		require.NoError(t, err)
		assert.NotNil(t, f)
	}

	_, err := New("html", &bytes.Buffer{})
	assert.Error(t, err)
}
