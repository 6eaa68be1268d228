/*
csv.go - CSV wire codec for record sets

PURPOSE:
  Serializes a Set as one header line plus one line per row, field order
  taken from the header. This is the on-disk format of every record set.

QUOTING:
  The historical writer joined fields with commas and no quoting, so any
  value containing a comma corrupted its row. This codec uses RFC 4180
  quoting on both sides instead: encoding/csv quotes fields that need it
  and still reads legacy unquoted lines unchanged. Files written here are
  therefore safe for embedded commas while remaining readable by the old
  tooling for comma-free data.
*/
package recordset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// DecodeCSV reads a record set. An empty input yields an empty set. Rows
// shorter than the header pad missing fields with empty strings; longer
// rows drop the extras.
func DecodeCSV(r io.Reader) (Set, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	// Legacy files were written without quoting; tolerate stray quotes.
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return Set{}, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return Set{}, nil
	}

	set := Set{Header: records[0]}
	for _, rec := range records[1:] {
		row := make(Row, len(set.Header))
		for i, field := range set.Header {
			if i < len(rec) {
				row[field] = rec[i]
			} else {
				row[field] = ""
			}
		}
		set.Rows = append(set.Rows, row)
	}
	return set, nil
}

// EncodeCSV writes the set: header first, then each row in header order.
func EncodeCSV(w io.Writer, set Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(set.Header); err != nil {
		return fmt.Errorf("encode csv header: %w", err)
	}
	rec := make([]string, len(set.Header))
	for _, row := range set.Rows {
		for i, field := range set.Header {
			rec[i] = row[field]
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("encode csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Marshal returns the CSV bytes of the set.
func Marshal(set Set) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, set); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses CSV bytes into a set.
func Unmarshal(data []byte) (Set, error) {
	return DecodeCSV(bytes.NewReader(data))
}
