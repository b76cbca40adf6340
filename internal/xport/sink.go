package xport

import (
	"encoding/csv"
	"io"
)

// Sink is the opaque row collaborator the decoder writes decoded rows
// to. A nil entry represents a SAS missing value. Quoting is the sink's
// responsibility, not the decoder's.
type Sink interface {
	WriteRow(fields []*string) error
}

// CSVSink adapts Sink onto the standard library's CSV writer. It is the
// out-of-core-scope collaborator named by the spec, kept deliberately
// thin: all grammar and conversion logic lives in the decoder.
type CSVSink struct {
	w *csv.Writer
}

// NewCSVSink wraps w for row-at-a-time CSV output.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) WriteRow(fields []*string) error {
	record := make([]string, len(fields))
	for i, f := range fields {
		if f != nil {
			record[i] = *f
		}
	}
	return s.w.Write(record)
}

// Flush flushes any buffered rows to the underlying writer.
func (s *CSVSink) Flush() error {
	s.w.Flush()
	return s.w.Error()
}
