package domain

import (
	"fmt"
	"strings"
)

// FieldChange describes one value that differs between two consecutive snapshots
// for one field at one row index.
type FieldChange struct {
	SectionName string    `json:"sectionName"`
	RowLabel    string    `json:"rowLabel"`
	RowIndex    int       `json:"rowIndex"`
	FieldName   string    `json:"fieldName"`
	FieldType   FieldType `json:"fieldType"`
	OldValue    string    `json:"oldValue"`
	NewValue    string    `json:"newValue"`
}

// FieldMatchStrategy selects how fields of the newer snapshot are paired with
// fields of the older one.
type FieldMatchStrategy string

const (
	// MatchByName joins on fieldName and falls back to the field index when a
	// name is empty or appears more than once.
	MatchByName FieldMatchStrategy = "name"
	// MatchByPosition pairs fields by index only.
	MatchByPosition FieldMatchStrategy = "position"
)

// ParseFieldMatchStrategy maps a config value onto a strategy. Unknown values
// select MatchByName.
func ParseFieldMatchStrategy(value string) FieldMatchStrategy {
	if FieldMatchStrategy(strings.ToLower(strings.TrimSpace(value))) == MatchByPosition {
		return MatchByPosition
	}
	return MatchByName
}

// DiffSnapshots diffs current against its predecessor. A nil predecessor means
// current is the first version and yields no changes.
func DiffSnapshots(current FieldSnapshot, previous *FieldSnapshot, strategy FieldMatchStrategy) []FieldChange {
	if previous == nil {
		return []FieldChange{}
	}
	oldFields := previous.Fields
	if oldFields == nil {
		oldFields = []Field{}
	}
	return DiffFields(current.SectionName, current.Fields, oldFields, strategy)
}

// DiffFields lists the values of newFields that changed relative to oldFields,
// field-major then row-minor. Values cleared to null or "" are not reported.
func DiffFields(sectionName string, newFields, oldFields []Field, strategy FieldMatchStrategy) []FieldChange {
	changes := []FieldChange{}
	if oldFields == nil {
		return changes
	}

	matcher := newFieldMatcher(newFields, oldFields, strategy)

	var labels FieldValue
	if len(newFields) > 0 {
		labels = newFields[0].Value
	}

	for i, field := range newFields {
		previous, ok := matcher.previous(i)
		if !ok {
			continue
		}

		newRows := field.Value.Rows()
		oldRows := previous.Value.Rows()

		for j, newValue := range newRows {
			if newValue.IsBlank() {
				continue
			}

			var oldValue Value
			if j < len(oldRows) {
				oldValue = oldRows[j]
			}
			if oldValue.Valid && oldValue.Str == newValue.Str {
				continue
			}

			changes = append(changes, FieldChange{
				SectionName: sectionName,
				RowLabel:    rowLabel(labels, j),
				RowIndex:    j,
				FieldName:   field.Name,
				FieldType:   field.Type,
				OldValue:    oldValue.String(),
				NewValue:    newValue.Str,
			})
		}
	}

	return changes
}

// rowLabel names row j after the first field's value at that row.
func rowLabel(labels FieldValue, j int) string {
	if label, ok := labels.Row(j); ok && !label.IsBlank() {
		return fmt.Sprintf("%s(%d)", label.Str, j+1)
	}
	return fmt.Sprintf("(%d)", j+1)
}

type fieldMatcher struct {
	newFields []Field
	oldFields []Field
	strategy  FieldMatchStrategy
	oldByName map[string]int
	newCounts map[string]int
	oldCounts map[string]int
}

func newFieldMatcher(newFields, oldFields []Field, strategy FieldMatchStrategy) *fieldMatcher {
	m := &fieldMatcher{newFields: newFields, oldFields: oldFields, strategy: strategy}
	if strategy == MatchByPosition {
		return m
	}

	m.oldByName = make(map[string]int, len(oldFields))
	m.oldCounts = make(map[string]int, len(oldFields))
	m.newCounts = make(map[string]int, len(newFields))
	for idx, field := range oldFields {
		m.oldCounts[field.Name]++
		m.oldByName[field.Name] = idx
	}
	for _, field := range newFields {
		m.newCounts[field.Name]++
	}
	return m
}

func (m *fieldMatcher) previous(i int) (Field, bool) {
	if m.strategy != MatchByPosition {
		name := m.newFields[i].Name
		if name != "" && m.newCounts[name] == 1 && m.oldCounts[name] <= 1 {
			idx, ok := m.oldByName[name]
			if !ok {
				return Field{}, false
			}
			return m.oldFields[idx], true
		}
	}

	if i >= len(m.oldFields) {
		return Field{}, false
	}
	return m.oldFields[i], true
}
