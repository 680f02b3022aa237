package osc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nnnLik/a-osc/internal/dialect"
)

// Action is the DML event captured by a trigger.
type Action string

const (
	ActionInsert Action = dialect.ActionInsert
	ActionUpdate Action = dialect.ActionUpdate
	ActionDelete Action = dialect.ActionDelete
)

// Row is a row image keyed by column name.
type Row map[string]any

// Payload is the row image(s) of an audit record; one of Insert, Update or Delete.
type Payload interface {
	Action() Action
}

// Insert carries the inserted row.
type Insert struct{ New Row }

// Update carries the row before and after the change.
type Update struct{ Old, New Row }

// Delete carries the removed row.
type Delete struct{ Old Row }

func (Insert) Action() Action { return ActionInsert }
func (Update) Action() Action { return ActionUpdate }
func (Delete) Action() Action { return ActionDelete }

// AuditRecord is one entry of the change log.
type AuditRecord struct {
	ID      int64
	Key     int64
	Payload Payload
	Time    time.Time
}

type rawPayload struct {
	Old Row `json:"old"`
	New Row `json:"new"`
}

// decodePayload builds the payload variant for action from the trigger's JSON document.
func decodePayload(action string, data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw rawPayload
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	switch Action(action) {
	case ActionInsert:
		if raw.New == nil {
			return nil, errors.New("INSERT record without new image")
		}
		return Insert{New: raw.New}, nil
	case ActionUpdate:
		if raw.New == nil {
			return nil, errors.New("UPDATE record without new image")
		}
		return Update{Old: raw.Old, New: raw.New}, nil
	case ActionDelete:
		return Delete{Old: raw.Old}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// keyOf returns the integer primary key value held in row.
func keyOf(row Row, pk string) (int64, bool) {
	switch v := row[pk].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// ColumnKind selects how a column's value in a row image is bound.
type ColumnKind int

const (
	// KindScalar values bind as decoded.
	KindScalar ColumnKind = iota
	// KindBinary values are encoded bytes the dialect decodes.
	KindBinary
	// KindJSON values are documents bound as JSON text.
	KindJSON
)

// args returns the bind values of row for columns, in order. Binary values
// are decoded back into bytes with decode.
func (r Row) args(columns []string, kinds map[string]ColumnKind, decode func(string) ([]byte, error)) ([]any, error) {
	out := make([]any, len(columns))
	for i, col := range columns {
		var (
			v   any
			err error
		)
		switch kinds[col] {
		case KindBinary:
			v, err = binaryValue(r[col], decode)
		case KindJSON:
			v, err = jsonValue(r[col])
		default:
			v, err = bindValue(r[col])
		}
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out[i] = v
	}
	return out, nil
}

func binaryValue(v any, decode func(string) ([]byte, error)) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return decode(v)
	default:
		return nil, fmt.Errorf("binary value has JSON type %T", v)
	}
}

// jsonValue re-encodes a nested document. A null image binds SQL NULL.
func jsonValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// bindValue converts a decoded JSON value into a driver argument.
// Non-integral numbers stay decimal text so DECIMAL columns keep their precision.
func bindValue(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.String(), nil
	case bool, string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}
