package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is a flat mapping of column name to scalar value, ready for
// validation and insertion.
type Record map[string]interface{}

// Keys under which callers conventionally nest the actual record, probed
// in this exact precedence order.
var recordKeys = []string{"data", "invoice_data", "test_data"}

// Request-level keys that are never part of the record itself.
var nonDataKeys = map[string]struct{}{
	"connection":     {},
	"table_name":     {},
	"schema":         {},
	"invoice_schema": {},
	"validate":       {},
}

// ExtractRecord locates the record inside arbitrary tool params and
// normalizes it into a flat Record. The probing is a closed set of
// strategies with fixed precedence, not open-ended reflection:
//
//  1. a nested object under "data", "invoice_data", or "test_data"
//  2. otherwise the params themselves, minus known request-level keys
//
// A sectioned extraction payload (headerSection / billingDetails present)
// is mapped to flat database fields; anything else passes through, which
// makes the normalization idempotent on already-flat records.
func ExtractRecord(params map[string]interface{}) Record {
	var raw map[string]interface{}

	for _, key := range recordKeys {
		if nested, ok := params[key].(map[string]interface{}); ok {
			raw = nested
			break
		}
	}
	if raw == nil {
		raw = make(map[string]interface{}, len(params))
		for k, v := range params {
			if _, excluded := nonDataKeys[k]; !excluded {
				raw[k] = v
			}
		}
	}

	if isSectionedExtraction(raw) {
		return mapSectionedExtraction(raw)
	}
	return Record(raw)
}

// isSectionedExtraction detects the multi-section shape produced by the
// hosted invoice extraction workflow.
func isSectionedExtraction(raw map[string]interface{}) bool {
	_, header := raw["headerSection"]
	_, billing := raw["billingDetails"]
	return header || billing
}

// mapSectionedExtraction flattens a sectioned invoice extraction into
// database fields. This is a best-effort structural adapter with explicit
// precedence rules, not a validator: absent sections simply yield absent
// fields.
func mapSectionedExtraction(raw map[string]interface{}) Record {
	record := Record{}

	if billing, ok := raw["billingDetails"].(map[string]interface{}); ok {
		if num, ok := billing["invoiceNumber"]; ok {
			record["invoice_number"] = num
		}
		if date, ok := billing["invoiceDate"].(string); ok {
			record["invoice_date"] = normalizeInvoiceDate(date)
		}
	}

	// Vendor name: header section wins over payment instructions.
	if header, ok := raw["headerSection"].(map[string]interface{}); ok {
		if vendor, ok := header["vendorName"]; ok {
			record["vendor_name"] = vendor
		}
	}
	if _, have := record["vendor_name"]; !have {
		if payment, ok := raw["paymentInstructions"].(map[string]interface{}); ok {
			if vendor, ok := payment["vendor_name"]; ok {
				record["vendor_name"] = vendor
			}
		}
	}

	if charges, ok := raw["chargesSummary"].(map[string]interface{}); ok {
		// The recomputed total is preferred over the document's own.
		if total, ok := parseAmount(charges["calculated_total"]); ok {
			record["total_amount"] = total
		} else if total, ok := parseAmount(charges["document_total"]); ok {
			record["total_amount"] = total
		}

		if tax, ok := parseAmount(charges["secondary_tax"]); ok {
			record["tax_amount"] = tax
		}

		if items, ok := charges["lineItemsBreakdown"]; ok {
			if encoded, err := json.Marshal(items); err == nil {
				record["line_items"] = string(encoded)
			}
		}
	}

	return record
}

// monthNames is the fixed month table for DD-MON-YY invoice dates.
var monthNames = map[string]string{
	"JAN": "01", "FEB": "02", "MAR": "03", "APR": "04",
	"MAY": "05", "JUN": "06", "JUL": "07", "AUG": "08",
	"SEP": "09", "OCT": "10", "NOV": "11", "DEC": "12",
}

// normalizeInvoiceDate re-emits a DD-MON-YY date as YYYY-MM-DD.
// Unparseable dates are passed through unchanged, never invented.
func normalizeInvoiceDate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}

	month, ok := monthNames[strings.ToUpper(parts[1])]
	if !ok {
		return date
	}

	year := parts[2]
	if len(year) == 2 {
		year = "20" + year
	}

	day := parts[0]
	if len(day) == 1 {
		day = "0" + day
	}

	return fmt.Sprintf("%s-%s-%s", year, month, day)
}

// parseAmount coerces a monetary value of any incoming shape (number,
// or a string with currency formatting) into a float64.
func parseAmount(v interface{}) (float64, bool) {
	switch amount := v.(type) {
	case float64:
		return amount, true
	case int:
		return float64(amount), true
	case json.Number:
		f, err := amount.Float64()
		return f, err == nil
	case string:
		cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(amount))
		if cleaned == "" {
			return 0, false
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	default:
		return 0, false
	}
}
