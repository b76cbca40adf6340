package xport

import (
	"bufio"
	"io"
)

// RecordSize is the fixed physical record width of the XPORT transport
// grammar: every header is exactly one record, and namestr/observation
// payloads are re-segmented from records concatenated across this
// boundary.
const RecordSize = 80

// RecordReader consumes a byte stream in fixed 80-byte units.
type RecordReader struct {
	r *bufio.Reader
}

// NewRecordReader wraps r for 80-byte record reads.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: bufio.NewReaderSize(r, RecordSize*8)}
}

// Next returns the next 80-byte record, or io.EOF once fewer than 80
// bytes remain in the stream. A short final read (1-79 bytes) is treated
// as end-of-stream, matching the format's space/NUL padding convention.
func (rr *RecordReader) Next() ([RecordSize]byte, error) {
	var rec [RecordSize]byte
	_, err := io.ReadFull(rr.r, rec[:])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return rec, err
}
