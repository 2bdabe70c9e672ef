package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldValueUnmarshalShapes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		repeated bool
		rows     []Value
	}{
		{name: "string", input: `"abc"`, rows: []Value{StringValue("abc")}},
		{name: "null", input: `null`, rows: []Value{NullValue()}},
		{name: "number keeps literal", input: `12.50`, rows: []Value{StringValue("12.50")}},
		{name: "bool becomes text", input: `true`, rows: []Value{StringValue("true")}},
		{name: "rows", input: `["a", null, ""]`, repeated: true, rows: []Value{StringValue("a"), NullValue(), StringValue("")}},
		{name: "empty rows", input: `[]`, repeated: true, rows: []Value{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var fv FieldValue
			require.NoError(t, json.Unmarshal([]byte(tc.input), &fv))
			assert.Equal(t, tc.repeated, fv.IsRepeated())
			assert.Equal(t, tc.rows, fv.Rows())
		})
	}
}

func TestFieldValueRejectsNestedValues(t *testing.T) {
	for _, input := range []string{`{"a":1}`, `[["a"]]`, `[{"a":1}]`} {
		var fv FieldValue
		err := json.Unmarshal([]byte(input), &fv)
		require.Error(t, err, input)
		assert.True(t, errors.Is(err, ErrInvalidFieldShape), input)
	}
}

func TestFieldValueMarshalKeepsWireShape(t *testing.T) {
	fields := []Field{
		{Name: "Lot", Type: FieldTypeText, Value: TextValue("100")},
		{Name: "Note", Type: FieldTypeText, Value: ScalarValue(NullValue())},
		{Name: "Part", Type: FieldTypeText, Value: RowValues(StringValue("Bolt"), NullValue())},
	}

	encoded, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"fieldName":"Lot","fieldType":"text","fieldValue":"100"},
		{"fieldName":"Note","fieldType":"text","fieldValue":null},
		{"fieldName":"Part","fieldType":"text","fieldValue":["Bolt",null]}
	]`, string(encoded))
}

func TestCloneFieldsDoesNotAlias(t *testing.T) {
	rows := []Value{StringValue("a"), StringValue("b")}
	original := []Field{{Name: "Part", Type: FieldTypeText, Value: RowValues(rows...)}}

	cloned := CloneFields(original)
	rows[0] = StringValue("changed")
	original[0].Value = TextRows("x")

	assert.Equal(t, []Value{StringValue("a"), StringValue("b")}, cloned[0].Value.Rows())
}

func TestValidateFields(t *testing.T) {
	require.NoError(t, ValidateFields([]Field{{Name: "Lot", Type: FieldTypeText}}))
	require.NoError(t, ValidateFields(nil))

	cases := [][]Field{
		{{Name: "", Type: FieldTypeText}},
		{{Name: "Lot"}},
		{{Name: "Lot", Type: "json"}},
	}
	for _, fields := range cases {
		err := ValidateFields(fields)
		assert.ErrorIs(t, err, ErrInvalidFieldShape)
	}
}

func TestAuditFilterWithWindow(t *testing.T) {
	from := mustTime(t, "2024-01-10T00:00:00Z")
	to := mustTime(t, "2024-01-20T00:00:00Z")

	narrowed := AuditFilter{}.WithWindow(from, to)
	require.NotNil(t, narrowed.From)
	require.NotNil(t, narrowed.To)
	assert.Equal(t, from, *narrowed.From)
	assert.Equal(t, to, *narrowed.To)

	callerFrom := mustTime(t, "2024-01-15T00:00:00Z")
	callerTo := mustTime(t, "2024-01-30T00:00:00Z")
	merged := AuditFilter{From: &callerFrom, To: &callerTo}.WithWindow(from, to)
	assert.Equal(t, callerFrom, *merged.From)
	assert.Equal(t, to, *merged.To)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, int64(3), NewPagination(21, 1, 10).Pages)
	assert.Equal(t, int64(2), NewPagination(20, 1, 10).Pages)
	assert.Equal(t, int64(0), NewPagination(0, 1, 10).Pages)
}
