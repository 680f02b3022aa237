package osc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnnLik/a-osc/internal/dialect"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		data    string
		want    Payload
		wantErr string
	}{
		{
			name:   "insert",
			action: "INSERT",
			data:   `{"new": {"id": 5, "name": "a"}}`,
			want:   Insert{New: Row{"id": json.Number("5"), "name": "a"}},
		},
		{
			name:   "update",
			action: "UPDATE",
			data:   `{"old": {"id": 42, "name": "x"}, "new": {"id": 42, "name": "y"}}`,
			want: Update{
				Old: Row{"id": json.Number("42"), "name": "x"},
				New: Row{"id": json.Number("42"), "name": "y"},
			},
		},
		{
			name:   "delete",
			action: "DELETE",
			data:   `{"old": {"id": 7}}`,
			want:   Delete{Old: Row{"id": json.Number("7")}},
		},
		{
			name:    "insert without image",
			action:  "INSERT",
			data:    `{"old": {"id": 1}}`,
			wantErr: "without new image",
		},
		{
			name:    "unknown action",
			action:  "TRUNCATE",
			data:    `{}`,
			wantErr: "unknown action",
		},
		{
			name:    "not json",
			action:  "INSERT",
			data:    `{"new":`,
			wantErr: "unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePayload(tt.action, []byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Action(tt.action), got.Action())
		})
	}
}

func TestRowArgs(t *testing.T) {
	row := Row{
		"id":      json.Number("42"),
		"price":   json.Number("19.99"),
		"big":     json.Number("12345678901234567890"),
		"name":    "y",
		"active":  true,
		"deleted": nil,
		"tags":    []any{"a", "b"},
		"meta":    map[string]any{"k": json.Number("1")},
	}

	args, err := row.args([]string{"id", "price", "big", "name", "active", "deleted", "tags", "meta", "missing"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{
		int64(42),
		"19.99",
		"12345678901234567890",
		"y",
		true,
		nil,
		`["a","b"]`,
		`{"k":1}`,
		nil,
	}, args)
}

func TestRowArgsBinary(t *testing.T) {
	payload, err := decodePayload("UPDATE", []byte(`{"new": {"id": 1, "b": "base64:type15:AQI=", "flags": "base64:type16:BQ==", "empty": null, "label": "base64:type15:AQI="}}`))
	require.NoError(t, err)

	kinds := map[string]ColumnKind{"b": KindBinary, "flags": KindBinary, "empty": KindBinary}
	args, err := payload.(Update).New.args([]string{"id", "b", "flags", "empty", "label"}, kinds, dialect.MySQL{}.DecodeBinary)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), []byte{0x01, 0x02}, []byte{0x05}, nil, "base64:type15:AQI="}, args)

	pgRow := Row{"id": json.Number("1"), "data": `\x0a0b`}
	args, err = pgRow.args([]string{"id", "data"}, map[string]ColumnKind{"data": KindBinary}, dialect.Postgres{}.DecodeBinary)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), []byte{0x0a, 0x0b}}, args)

	_, err = Row{"b": "plain"}.args([]string{"b"}, map[string]ColumnKind{"b": KindBinary}, dialect.MySQL{}.DecodeBinary)
	assert.ErrorIs(t, err, dialect.ErrNotBinary)
	_, err = Row{"b": json.Number("1")}.args([]string{"b"}, map[string]ColumnKind{"b": KindBinary}, dialect.MySQL{}.DecodeBinary)
	assert.Error(t, err)
}

func TestRowArgsJSON(t *testing.T) {
	payload, err := decodePayload("UPDATE", []byte(`{"new": {"id": 1, "doc": {"k": 1, "tags": ["x"]}, "word": "scalar", "n": 7, "none": null}}`))
	require.NoError(t, err)

	kinds := map[string]ColumnKind{"doc": KindJSON, "word": KindJSON, "n": KindJSON, "none": KindJSON}
	args, err := payload.(Update).New.args([]string{"id", "doc", "word", "n", "none"}, kinds, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), `{"k":1,"tags":["x"]}`, `"scalar"`, `7`, nil}, args)
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name   string
		row    Row
		want   int64
		wantOK bool
	}{
		{name: "number", row: Row{"id": json.Number("10")}, want: 10, wantOK: true},
		{name: "string", row: Row{"id": "11"}, want: 11, wantOK: true},
		{name: "fraction", row: Row{"id": json.Number("1.5")}},
		{name: "missing", row: Row{"name": "x"}},
		{name: "nil row", row: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keyOf(tt.row, "id")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
