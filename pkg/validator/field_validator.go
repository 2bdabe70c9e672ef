package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Known field types accepted in a section field list.
var knownFieldTypes = map[string]struct{}{
	"text":     {},
	"float":    {},
	"int":      {},
	"date":     {},
	"checkbox": {},
}

// FieldShapeValidator checks raw field list payloads before they are decoded.
type FieldShapeValidator struct{}

// NewFieldShapeValidator creates a new field list validator
func NewFieldShapeValidator() *FieldShapeValidator {
	return &FieldShapeValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

func (r *ValidationResult) addError(field, message string, value any) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
}

func (r *ValidationResult) addWarning(field, message string, value any) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message, Value: value})
}

// ValidateFieldsJSON validates a raw JSON field list. Shape violations are
// errors; values that do not parse as their declared type are warnings, since
// values are stored as text.
func (v *FieldShapeValidator) ValidateFieldsJSON(raw []byte) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		result.addError("fields", "fields must be a JSON array", nil)
		return result
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		result.addError("fields", fmt.Sprintf("fields is not valid JSON: %v", err), nil)
		return result
	}

	seen := make(map[string]int, len(items))
	for i, item := range items {
		path := fmt.Sprintf("fields[%d]", i)

		field, err := decodeObject(item)
		if err != nil {
			result.addError(path, "each field must be a JSON object", nil)
			continue
		}

		name, ok := field["fieldName"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			result.addError(path+".fieldName", "fieldName is required", field["fieldName"])
		} else if first, dup := seen[name]; dup {
			result.addWarning(path+".fieldName", fmt.Sprintf("fieldName '%s' repeats fields[%d]; changes are matched by position", name, first), name)
		} else {
			seen[name] = i
		}

		fieldType, ok := field["fieldType"].(string)
		if !ok || fieldType == "" {
			result.addError(path+".fieldType", "fieldType is required", field["fieldType"])
			continue
		}
		if _, known := knownFieldTypes[fieldType]; !known {
			result.addError(path+".fieldType", fmt.Sprintf("unknown fieldType '%s'", fieldType), fieldType)
			continue
		}

		v.validateValue(&result, path+".fieldValue", fieldType, field["fieldValue"])
	}

	return result
}

func (v *FieldShapeValidator) validateValue(result *ValidationResult, path, fieldType string, value any) {
	switch val := value.(type) {
	case []any:
		for j, row := range val {
			rowPath := fmt.Sprintf("%s[%d]", path, j)
			if isNested(row) {
				result.addError(rowPath, "rows must be scalar values", nil)
				continue
			}
			v.checkType(result, rowPath, fieldType, row)
		}
	case map[string]any:
		result.addError(path, "fieldValue must be a scalar or an array of scalars", nil)
	default:
		v.checkType(result, path, fieldType, val)
	}
}

func (v *FieldShapeValidator) checkType(result *ValidationResult, path, fieldType string, value any) {
	text, ok := scalarText(value)
	if !ok || text == "" {
		return
	}

	switch fieldType {
	case "int":
		if _, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err != nil {
			result.addWarning(path, fmt.Sprintf("value '%s' is not an integer", text), text)
		}
	case "float":
		if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err != nil {
			result.addWarning(path, fmt.Sprintf("value '%s' is not a number", text), text)
		}
	case "checkbox":
		if text != "true" && text != "false" {
			result.addWarning(path, fmt.Sprintf("checkbox value '%s' is not 'true' or 'false'", text), text)
		}
	case "date":
		if !isDate(text) {
			result.addWarning(path, fmt.Sprintf("value '%s' is not a date", text), text)
		}
	}
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("null field")
	}
	return out, nil
}

func isNested(value any) bool {
	switch value.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func scalarText(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

func isDate(value string) bool {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04"} {
		if _, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return true
		}
	}
	return false
}
