// Package frame detects the wire shape of push-stream frames and normalizes
// them into canonical orders.
//
// The backend emits at least five shapes for the same logical data:
//
//	[{...}, {...}]                       row batch
//	{}                                   empty (nothing new)
//	{"uuid": {"0": "a"}, "date": {...}}  column batch (a transposed table)
//	{"data": [...]} / {"data": {...}}    nested
//	{"uuid": "a", "date": "...", ...}    flat record
//
// Anything else is unrecognized and dropped. Decoding never fails.
package frame

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/alejandrodnm/hodlbook/internal/domain"
)

// Shape tags the detected wire format.
type Shape int

const (
	Unrecognized Shape = iota
	Empty
	RowBatch
	ColumnBatch
	Nested
	FlatRecord
)

func (s Shape) String() string {
	switch s {
	case Empty:
		return "empty"
	case RowBatch:
		return "rows"
	case ColumnBatch:
		return "columns"
	case Nested:
		return "nested"
	case FlatRecord:
		return "flat"
	default:
		return "unrecognized"
	}
}

// Frame is the normalized result of one inbound message.
type Frame struct {
	Shape   Shape
	Records []domain.Order
	// Single is set when the frame carried one record meant for the
	// single-record update path rather than a batch merge.
	Single bool
}

// Recognized reports whether the frame counts as data from the stream,
// including the empty "nothing new" frame.
func (f Frame) Recognized() bool {
	return f.Shape != Unrecognized
}

// Decode parses raw bytes and classifies them. Frames that are JSON strings
// holding JSON are unwrapped once.
func Decode(raw []byte) Frame {
	v, ok := decodeJSON(raw)
	if !ok {
		return Frame{}
	}
	return Classify(v)
}

// DecodeValue parses raw bytes into a generic value, unwrapping one level of
// string encoding. Used by the tick path which bypasses Classify.
func DecodeValue(raw []byte) (any, bool) {
	return decodeJSON(raw)
}

func decodeJSON(raw []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, false
		}
		v = inner
	}
	return v, true
}

// Classify applies the shape matchers in fixed precedence and returns the
// first match.
func Classify(v any) Frame {
	switch msg := v.(type) {
	case []any:
		return Frame{Shape: RowBatch, Records: Records(msg)}
	case map[string]any:
		return classifyMap(msg)
	default:
		return Frame{}
	}
}

func classifyMap(msg map[string]any) Frame {
	if len(msg) == 0 {
		return Frame{Shape: Empty}
	}

	if sample, ok := sampleColumn(msg); ok {
		if _, isMap := sample.(map[string]any); isMap {
			return Frame{Shape: ColumnBatch, Records: Records(ColumnsToRows(msg))}
		}
	}

	if payload, ok := msg["data"]; ok {
		switch data := payload.(type) {
		case []any:
			return Frame{Shape: Nested, Records: Records(data)}
		case map[string]any:
			return Frame{Shape: Nested, Records: Records([]any{data}), Single: true}
		}
		return Frame{Shape: Nested}
	}

	_, hasUUID := msg["uuid"]
	_, hasDate := msg["date"]
	if hasUUID && hasDate {
		return Frame{Shape: FlatRecord, Records: Records([]any{msg}), Single: true}
	}

	return Frame{}
}

// sampleColumn picks the field used to detect column orientation: uuid,
// falling back to date.
func sampleColumn(msg map[string]any) (any, bool) {
	if v, ok := msg["uuid"]; ok {
		return v, true
	}
	v, ok := msg["date"]
	return v, ok
}

// ColumnsToRows transposes {column: {rowIndex: value}} into one map per row
// index. Row indices are ordered numerically; non-numeric indices sort after
// numeric ones, lexically.
func ColumnsToRows(cols map[string]any) []any {
	indexSet := make(map[string]struct{})
	for _, v := range cols {
		if col, ok := v.(map[string]any); ok {
			for idx := range col {
				indexSet[idx] = struct{}{}
			}
		}
	}
	if len(indexSet) == 0 {
		return nil
	}

	indices := make([]string, 0, len(indexSet))
	for idx := range indexSet {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool {
		a, errA := strconv.Atoi(indices[i])
		b, errB := strconv.Atoi(indices[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return indices[i] < indices[j]
	})

	rows := make([]any, 0, len(indices))
	for _, idx := range indices {
		row := make(map[string]any, len(cols))
		for name, v := range cols {
			if col, ok := v.(map[string]any); ok {
				if cell, ok := col[idx]; ok {
					row[name] = cell
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Records normalizes raw row values, dropping non-objects and rows without
// a uuid.
func Records(raw []any) []domain.Order {
	out := make([]domain.Order, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		o := Normalize(m)
		if o.UUID == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Normalize coerces a raw record into an Order. Missing or malformed fields
// take their zero value.
func Normalize(m map[string]any) domain.Order {
	return domain.Order{
		UUID:    Text(m["uuid"]),
		Date:    Text(m["date"]),
		Origin:  Text(m["origin"]),
		Escrow:  Text(m["escrow"]),
		Wallet:  Text(m["wallet"]),
		Accept:  Text(m["accept"]),
		Period:  Number(m["period"]),
		Asset:   int(Number(m["asset"])),
		Type:    domain.OrderType(Number(m["type"])),
		Ask:     Number(m["ask"]),
		Bid:     Number(m["bid"]),
		Stp:     Number(m["stp"]),
		Lmt:     Number(m["lmt"]),
		GTD:     Text(m["gtd"]),
		Partial: Bool(m["partial"]),
		Public:  Bool(m["public"]),
		Tao:     Number(m["tao"]),
		Alpha:   Number(m["alpha"]),
		Price:   Number(m["price"]),
		Status:  domain.Status(Number(m["status"])),
	}
}

// Number parses v best-effort; anything non-numeric is 0.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Text renders scalars as text; nil and composites are "".
func Text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

// Bool accepts true, 1 and the text "True"/"true".
func Bool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b == 1
	case string:
		return b == "True" || b == "true" || b == "1"
	default:
		return false
	}
}
