package bridge

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Schema describes what a valid record looks like for one call. It is
// supplied per request, not fixed globally.
type Schema struct {
	RequiredFields []string          `json:"required_fields"`
	FieldTypes     map[string]string `json:"field_types"`
}

// ValidationReport lists human-readable schema violations for a record.
// A record with zero violations is valid.
type ValidationReport struct {
	IsValid       bool     `json:"is_valid"`
	Violations    []string `json:"validation_errors"`
	ValidatedData Record   `json:"validated_data,omitempty"`
}

// amountEpsilon bounds the allowed drift between the stated invoice total
// and the sum of its line items.
const amountEpsilon = 0.01

// compatibleTypes maps (actual, expected) pairs that pass despite not
// matching exactly.
var compatibleTypes = map[[2]string]bool{
	{"int", "float"}:  true,
	{"float", "int"}:  true,
	{"str", "text"}:   true,
	{"text", "str"}:   true,
	{"str", "string"}: true,
	{"string", "str"}: true,
}

// ValidateRecord checks a flat record against the schema: required fields
// must be present and non-null, field types must match (or be compatible),
// and the invoice total must agree with the line-items total within the
// fixed epsilon when both are present.
func ValidateRecord(record Record, schema Schema) ValidationReport {
	var violations []string

	for _, field := range schema.RequiredFields {
		if v, ok := record[field]; !ok || v == nil {
			violations = append(violations, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	for field, expected := range schema.FieldTypes {
		v, ok := record[field]
		if !ok || v == nil {
			continue
		}
		actual := typeName(v)
		if actual == expected {
			continue
		}
		if compatibleTypes[[2]string{actual, expected}] {
			continue
		}
		violations = append(violations, fmt.Sprintf("Field %s expected %s, got %s", field, expected, actual))
	}

	if violation, violated := totalMismatch(record); violated {
		violations = append(violations, violation)
	}

	report := ValidationReport{
		IsValid:    len(violations) == 0,
		Violations: violations,
	}
	if report.IsValid {
		report.ValidatedData = record
	}
	return report
}

// totalMismatch applies the cross-field business rule when both totals are
// present.
func totalMismatch(record Record) (string, bool) {
	total, haveTotal := parseAmount(record["total_amount"])
	items, haveItems := parseAmount(record["line_items_total"])
	if !haveTotal || !haveItems {
		return "", false
	}

	diff := decimal.NewFromFloat(total).Sub(decimal.NewFromFloat(items)).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(amountEpsilon)) {
		return fmt.Sprintf("Invoice total %.2f doesn't match line items total %.2f", total, items), true
	}
	return "", false
}

// typeName reports the scalar type of a decoded JSON value in schema
// vocabulary. JSON numbers arrive as float64; integral values count as int
// so that callers can meaningfully require either.
func typeName(v interface{}) string {
	switch value := v.(type) {
	case string:
		return "str"
	case bool:
		return "bool"
	case float64:
		if value == math.Trunc(value) && !math.IsInf(value, 0) {
			return "int"
		}
		return "float"
	case int, int32, int64:
		return "int"
	case map[string]interface{}:
		return "dict"
	case []interface{}:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
