package source

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Record is one flat import record: source field names mapped to values.
// Records are read once and discarded after processing.
type Record map[string]string

// Attrs converts the whole record into an attribute set for the
// reconciliation protocol.
func (r Record) Attrs() map[string]any {
	attrs := make(map[string]any, len(r))
	for field, value := range r {
		attrs[field] = value
	}
	return attrs
}

// Subset copies the record fields named in the catalog into an attribute set.
// Absent fields stay absent; empty values are carried as-is.
func (r Record) Subset(fields []string) map[string]any {
	attrs := map[string]any{}
	for _, field := range fields {
		if value, ok := r[field]; ok {
			attrs[field] = value
		}
	}
	return attrs
}

// Source yields import records in their original order. Next returns io.EOF
// after the last record. Sources are single-pass and not safe for concurrent
// use; one pipeline drives one source.
type Source interface {
	Next() (Record, error)
}

// FromRecords returns an in-memory source over the given records.
func FromRecords(records ...Record) Source {
	return &sliceSource{records: records}
}

type sliceSource struct {
	records []Record
	pos     int
}

func (s *sliceSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

// NewCSVSource reads a header row from r and streams the remaining rows as
// records keyed by the header names. Empty cells become empty values; callers
// treat absent and empty the same way.
func NewCSVSource(r io.Reader) (Source, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv source has no header row")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	return &csvSource{reader: reader, header: header}, nil
}

type csvSource struct {
	reader *csv.Reader
	header []string
}

func (s *csvSource) Next() (Record, error) {
	row, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read csv row: %w", err)
	}

	record := Record{}
	for i, name := range s.header {
		if i < len(row) {
			record[name] = row[i]
		}
	}
	return record, nil
}
