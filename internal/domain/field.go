package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType represents the declared type of a section field.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeFloat    FieldType = "float"
	FieldTypeInt      FieldType = "int"
	FieldTypeDate     FieldType = "date"
	FieldTypeCheckbox FieldType = "checkbox"
)

// Valid reports whether the type is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeFloat, FieldTypeInt, FieldTypeDate, FieldTypeCheckbox:
		return true
	}
	return false
}

// Value is a single stored cell. Null is distinct from the empty string.
type Value struct {
	Str   string
	Valid bool
}

// StringValue wraps s as a non-null value.
func StringValue(s string) Value {
	return Value{Str: s, Valid: true}
}

// NullValue returns the null value.
func NullValue() Value {
	return Value{}
}

// IsBlank reports whether the value is null or the empty string.
func (v Value) IsBlank() bool {
	return !v.Valid || v.Str == ""
}

// String renders null as the empty string.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return v.Str
}

// FieldValue holds either a scalar or a sequence of scalars (repeated rows).
// Both shapes are stored as rows; a scalar is a single row with repeated unset.
type FieldValue struct {
	rows     []Value
	repeated bool
}

// ScalarValue builds a single-valued field value.
func ScalarValue(v Value) FieldValue {
	return FieldValue{rows: []Value{v}}
}

// TextValue is shorthand for ScalarValue(StringValue(s)).
func TextValue(s string) FieldValue {
	return ScalarValue(StringValue(s))
}

// RowValues builds a repeated field value from the given rows.
func RowValues(rows ...Value) FieldValue {
	out := make([]Value, len(rows))
	copy(out, rows)
	return FieldValue{rows: out, repeated: true}
}

// TextRows builds a repeated field value from plain strings.
func TextRows(rows ...string) FieldValue {
	out := make([]Value, len(rows))
	for i, row := range rows {
		out[i] = StringValue(row)
	}
	return FieldValue{rows: out, repeated: true}
}

// IsRepeated reports whether the value was supplied as a sequence.
func (fv FieldValue) IsRepeated() bool {
	return fv.repeated
}

// Rows returns the value normalized to a sequence. A scalar yields one row.
func (fv FieldValue) Rows() []Value {
	if !fv.repeated && len(fv.rows) == 0 {
		return []Value{NullValue()}
	}
	out := make([]Value, len(fv.rows))
	copy(out, fv.rows)
	return out
}

// Len returns the number of normalized rows.
func (fv FieldValue) Len() int {
	if !fv.repeated && len(fv.rows) == 0 {
		return 1
	}
	return len(fv.rows)
}

// Row returns row i of the normalized sequence.
func (fv FieldValue) Row(i int) (Value, bool) {
	if i < 0 || i >= fv.Len() {
		return Value{}, false
	}
	if len(fv.rows) == 0 {
		return NullValue(), true
	}
	return fv.rows[i], true
}

// Clone returns a copy that shares no backing storage with fv.
func (fv FieldValue) Clone() FieldValue {
	if fv.rows == nil {
		return FieldValue{repeated: fv.repeated}
	}
	out := make([]Value, len(fv.rows))
	copy(out, fv.rows)
	return FieldValue{rows: out, repeated: fv.repeated}
}

// Equal compares shape and contents.
func (fv FieldValue) Equal(other FieldValue) bool {
	if fv.repeated != other.repeated {
		return false
	}
	a, b := fv.Rows(), other.Rows()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON keeps the wire shape: a string or null for scalars, an array for rows.
func (fv FieldValue) MarshalJSON() ([]byte, error) {
	if !fv.repeated {
		v, _ := fv.Row(0)
		return marshalValue(v)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range fv.rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		encoded, err := marshalValue(row)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a scalar (string, number, bool, null) or an array of scalars.
// Numbers and booleans are stored as their literal text.
func (fv *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFieldShape, err)
		}
		rows := make([]Value, len(raw))
		for i, item := range raw {
			v, err := decodeScalar(item)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			rows[i] = v
		}
		*fv = FieldValue{rows: rows, repeated: true}
		return nil
	}

	v, err := decodeScalar(trimmed)
	if err != nil {
		return err
	}
	*fv = ScalarValue(v)
	return nil
}

func marshalValue(v Value) ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Str)
}

func decodeScalar(raw []byte) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NullValue(), nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidFieldShape, err)
		}
		return StringValue(s), nil
	case '{', '[':
		return Value{}, fmt.Errorf("%w: nested value %s", ErrInvalidFieldShape, truncate(string(raw), 40))
	default:
		if !json.Valid(raw) {
			return Value{}, fmt.Errorf("%w: invalid scalar %s", ErrInvalidFieldShape, truncate(string(raw), 40))
		}
		return StringValue(string(raw)), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}

// Field is one named, typed slot of a section.
type Field struct {
	Name  string     `json:"fieldName"`
	Type  FieldType  `json:"fieldType"`
	Value FieldValue `json:"fieldValue"`
}

// CloneFields deep copies a field list.
func CloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, field := range fields {
		out[i] = Field{
			Name:  field.Name,
			Type:  field.Type,
			Value: field.Value.Clone(),
		}
	}
	return out
}

// ValidateFields checks that every field carries a name and a known type.
func ValidateFields(fields []Field) error {
	for i, field := range fields {
		if strings.TrimSpace(field.Name) == "" {
			return fmt.Errorf("%w: field %d has no fieldName", ErrInvalidFieldShape, i)
		}
		if field.Type == "" {
			return fmt.Errorf("%w: field %q has no fieldType", ErrInvalidFieldShape, field.Name)
		}
		if !field.Type.Valid() {
			return fmt.Errorf("%w: field %q has unknown fieldType %q", ErrInvalidFieldShape, field.Name, field.Type)
		}
	}
	return nil
}
