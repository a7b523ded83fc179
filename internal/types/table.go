package types

import (
	"encoding/json"
	"strconv"
)

// RawTable is a bulk export exactly as received: one header row and string
// cells. Rows may be shorter than the header; missing cells are blank.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Cell returns the value at row i, column j, or "" when the row is short.
func (t *RawTable) Cell(i, j int) string {
	row := t.Rows[i]
	if j >= len(row) {
		return ""
	}
	return row[j]
}

// ValueKind tags the contents of a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
)

// Value is one normalized cell. Numeric columns hold either a number or
// null, never a string.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// Null is the absent value.
var Null = Value{}

// String builds a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number builds a numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// IsNull reports whether the cell is absent.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float returns the numeric value and whether the cell is numeric.
func (v Value) Float() (float64, bool) {
	return v.Num, v.Kind == KindNumber
}

// Text renders the value the way it is written to CSV.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON writes numbers as numbers, strings as strings, null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	default:
		return []byte("null"), nil
	}
}

// Record is one normalized row keyed by internal field name.
type Record map[string]Value

// Get returns the cell for field, Null when missing.
func (r Record) Get(field string) Value {
	if v, ok := r[field]; ok {
		return v
	}
	return Null
}

// Table is a normalized record set. Columns keeps output order.
type Table struct {
	Columns []string
	Rows    []Record
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether field is part of the table's schema.
func (t *Table) HasColumn(field string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == field {
			return true
		}
	}
	return false
}

// Column returns every row's value for field.
func (t *Table) Column(field string) []Value {
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Get(field)
	}
	return out
}

// Select returns a new table holding the rows where mask is true. The
// receiver is left unchanged.
func (t *Table) Select(mask []bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for i, r := range t.Rows {
		if i < len(mask) && mask[i] {
			out.Rows = append(out.Rows, r.Clone())
		}
	}
	return out
}

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
