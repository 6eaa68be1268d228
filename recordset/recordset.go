/*
Package recordset models named flat-file record sets: an ordered header of
field names plus one string-valued row per record.

PURPOSE:
  The record store transports sets as CSV text; this package is the wire
  model and codec. It knows nothing about billing entities - typed decoding
  and validation happen at the store boundary in the billing package.

FIELD TYPING:
  Fields are strings on the wire. Accessors coerce on read: numeric strings
  parse to ints/decimals, "true"/"false" to booleans, everything else stays
  a string. Coercion failures are reported per field so a caller can
  quarantine the single row instead of aborting the set.
*/
package recordset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Row is one record: field name to raw string value.
type Row map[string]string

// Set is a named record set's contents. Header fixes the field order for
// serialization; rows may omit fields, which read as empty strings.
type Set struct {
	Header []string
	Rows   []Row
}

// New builds an empty set with the given field order.
func New(header ...string) Set {
	return Set{Header: header}
}

// Append adds a row. Fields not in the header are dropped on encode.
func (s *Set) Append(r Row) {
	s.Rows = append(s.Rows, r)
}

// Len returns the number of rows.
func (s Set) Len() int { return len(s.Rows) }

// =============================================================================
// FIELD ACCESSORS
// =============================================================================

// String returns the raw field value, empty if absent.
func (r Row) String(field string) string {
	return strings.TrimSpace(r[field])
}

// Int parses the field as a base-10 integer. Absent or blank is an error:
// ids and references are never optional.
func (r Row) Int(field string) (int, error) {
	raw := r.String(field)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("field %q: %q is not an integer", field, raw)
	}
	return n, nil
}

// Decimal parses the field as a decimal number. Blank reads as zero so
// optional amounts don't quarantine the row.
func (r Row) Decimal(field string) (decimal.Decimal, error) {
	raw := r.String(field)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %q is not numeric", field, raw)
	}
	return d, nil
}

// Bool parses "true"/"false" (case-insensitive). Blank reads as false.
func (r Row) Bool(field string) (bool, error) {
	switch strings.ToLower(r.String(field)) {
	case "", "false":
		return false, nil
	case "true":
		return true, nil
	}
	return false, fmt.Errorf("field %q: %q is not a boolean", field, r.String(field))
}

// SetInt stores an integer field.
func (r Row) SetInt(field string, v int) { r[field] = strconv.Itoa(v) }

// SetBool stores a boolean field as "true"/"false".
func (r Row) SetBool(field string, v bool) { r[field] = strconv.FormatBool(v) }
