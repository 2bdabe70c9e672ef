package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bomFields(parts, qty FieldValue) []Field {
	return []Field{
		{Name: "Part", Type: FieldTypeText, Value: parts},
		{Name: "Qty", Type: FieldTypeInt, Value: qty},
	}
}

func TestDiffFieldsFirstVersionIsEmpty(t *testing.T) {
	fields := bomFields(TextRows("Bolt", "Nut"), TextRows("4", "8"))

	changes := DiffFields("BOM", fields, nil, MatchByName)
	require.NotNil(t, changes)
	assert.Empty(t, changes)

	snapshot := FieldSnapshot{SectionName: "BOM", Fields: fields}
	assert.Empty(t, DiffSnapshots(snapshot, nil, MatchByPosition))
}

func TestDiffFieldsIdenticalSnapshotsAreEmpty(t *testing.T) {
	fields := bomFields(TextRows("Bolt", "Nut"), TextRows("4", "8"))
	copyOf := CloneFields(fields)

	for _, strategy := range []FieldMatchStrategy{MatchByName, MatchByPosition} {
		assert.Empty(t, DiffFields("BOM", fields, copyOf, strategy), "strategy %s", strategy)
	}
}

func TestDiffFieldsSuppressesClearedValues(t *testing.T) {
	old := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("X")}}

	cleared := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("")}}
	assert.Empty(t, DiffFields("Header", cleared, old, MatchByName))

	nulled := []Field{{Name: "Lot", Type: FieldTypeText, Value: ScalarValue(NullValue())}}
	assert.Empty(t, DiffFields("Header", nulled, old, MatchByName))

	blank := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("")}}
	filled := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("X")}}
	changes := DiffFields("Header", filled, blank, MatchByName)
	require.Len(t, changes, 1)
	assert.Equal(t, "", changes[0].OldValue)
	assert.Equal(t, "X", changes[0].NewValue)
}

func TestDiffFieldsNullToValueIsReported(t *testing.T) {
	old := []Field{{Name: "Lot", Type: FieldTypeText, Value: ScalarValue(NullValue())}}
	current := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("A1")}}

	changes := DiffFields("Header", current, old, MatchByName)
	require.Len(t, changes, 1)
	assert.Equal(t, "", changes[0].OldValue)
	assert.Equal(t, "A1", changes[0].NewValue)
}

func TestDiffFieldsRowAlignment(t *testing.T) {
	old := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextRows("A", "B")}}
	current := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextRows("A", "C", "D")}}

	changes := DiffFields("BOM", current, old, MatchByName)
	require.Len(t, changes, 2)

	assert.Equal(t, FieldChange{
		SectionName: "BOM",
		RowLabel:    "C(2)",
		RowIndex:    1,
		FieldName:   "Lot",
		FieldType:   FieldTypeText,
		OldValue:    "B",
		NewValue:    "C",
	}, changes[0])

	assert.Equal(t, 2, changes[1].RowIndex)
	assert.Equal(t, "D(3)", changes[1].RowLabel)
	assert.Equal(t, "", changes[1].OldValue)
	assert.Equal(t, "D", changes[1].NewValue)
}

func TestDiffFieldsRowLabelFromFirstField(t *testing.T) {
	old := bomFields(TextRows("Bolt", "Nut"), TextRows("4", "8"))
	current := bomFields(TextRows("Bolt", "Nut", ""), TextRows("4", "9", "2"))

	changes := DiffFields("BOM", current, old, MatchByName)
	require.Len(t, changes, 2)

	assert.Equal(t, "Qty", changes[0].FieldName)
	assert.Equal(t, "Nut(2)", changes[0].RowLabel)
	assert.Equal(t, "8", changes[0].OldValue)
	assert.Equal(t, "9", changes[0].NewValue)

	assert.Equal(t, "(3)", changes[1].RowLabel)
	assert.Equal(t, "2", changes[1].NewValue)
}

func TestDiffFieldsOrderIsFieldMajor(t *testing.T) {
	old := bomFields(TextRows("a", "b"), TextRows("1", "2"))
	current := bomFields(TextRows("c", "d"), TextRows("3", "4"))

	changes := DiffFields("BOM", current, old, MatchByPosition)
	require.Len(t, changes, 4)

	got := make([]string, len(changes))
	for i, change := range changes {
		got[i] = change.FieldName + change.NewValue
	}
	assert.Equal(t, []string{"Partc", "Partd", "Qty3", "Qty4"}, got)
}

func TestDiffFieldsCheckboxComparesStrings(t *testing.T) {
	old := []Field{{Name: "Verified", Type: FieldTypeCheckbox, Value: TextValue("false")}}
	current := []Field{{Name: "Verified", Type: FieldTypeCheckbox, Value: TextValue("true")}}

	changes := DiffFields("Sign-off", current, old, MatchByName)
	require.Len(t, changes, 1)
	assert.Equal(t, FieldTypeCheckbox, changes[0].FieldType)
	assert.Equal(t, "false", changes[0].OldValue)
	assert.Equal(t, "true", changes[0].NewValue)
}

func TestDiffFieldsScalarAgainstSequence(t *testing.T) {
	old := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("100")}}
	current := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextRows("100", "200")}}

	changes := DiffFields("Header", current, old, MatchByName)
	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].RowIndex)
	assert.Equal(t, "200(2)", changes[0].RowLabel)
}

func TestDiffFieldsSkipsFieldsWithoutPredecessor(t *testing.T) {
	old := []Field{{Name: "Lot", Type: FieldTypeText, Value: TextValue("1")}}
	current := []Field{
		{Name: "Lot", Type: FieldTypeText, Value: TextValue("1")},
		{Name: "Expiry", Type: FieldTypeDate, Value: TextValue("2025-01-01")},
	}

	assert.Empty(t, DiffFields("Header", current, old, MatchByName))
	assert.Empty(t, DiffFields("Header", current, old, MatchByPosition))
}

func TestDiffFieldsReorderedFields(t *testing.T) {
	old := []Field{
		{Name: "Lot", Type: FieldTypeText, Value: TextValue("L1")},
		{Name: "Operator", Type: FieldTypeText, Value: TextValue("amy")},
	}
	current := []Field{
		{Name: "Operator", Type: FieldTypeText, Value: TextValue("amy")},
		{Name: "Lot", Type: FieldTypeText, Value: TextValue("L1")},
	}

	assert.Empty(t, DiffFields("Header", current, old, MatchByName))
	assert.Len(t, DiffFields("Header", current, old, MatchByPosition), 2)
}

func TestDiffFieldsDuplicateNamesFallBackToPosition(t *testing.T) {
	old := []Field{
		{Name: "Note", Type: FieldTypeText, Value: TextValue("a")},
		{Name: "Note", Type: FieldTypeText, Value: TextValue("b")},
	}
	current := []Field{
		{Name: "Note", Type: FieldTypeText, Value: TextValue("a")},
		{Name: "Note", Type: FieldTypeText, Value: TextValue("c")},
	}

	changes := DiffFields("Notes", current, old, MatchByName)
	require.Len(t, changes, 1)
	assert.Equal(t, "b", changes[0].OldValue)
	assert.Equal(t, "c", changes[0].NewValue)
}

func TestParseFieldMatchStrategy(t *testing.T) {
	assert.Equal(t, MatchByPosition, ParseFieldMatchStrategy(" Position "))
	assert.Equal(t, MatchByName, ParseFieldMatchStrategy("name"))
	assert.Equal(t, MatchByName, ParseFieldMatchStrategy(""))
}
