package xport

import (
	"log"
	"regexp"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// escSequence matches the SAS "(*ESC*){unicode HHHH}" escape used to pack
// a Unicode code point into an otherwise single-byte-encoded string.
var escSequence = regexp.MustCompile(`\(\*ESC\*\)\{unicode ([0-9A-Fa-f]{4})\}`)

// Encoding owns the Document-wide character decoding policy: UTF-8 first,
// falling back permanently to Latin-1 on the first decode error.
type Encoding struct {
	latin1 bool
	logger *log.Logger
}

// NewEncoding returns an Encoding starting in UTF-8 mode.
func NewEncoding(logger *log.Logger) *Encoding {
	return &Encoding{logger: logger}
}

// Latin1 reports whether the Document has already been promoted to the
// Latin-1 fallback.
func (e *Encoding) Latin1() bool {
	return e.latin1
}

// DecodeField decodes a raw character field. On the first non-UTF-8 byte
// sequence encountered, the Document is permanently promoted to Latin-1
// and the same field is retried, per the spec's recovery rule for
// EncodingError.
func (e *Encoding) DecodeField(b []byte) string {
	if !e.latin1 {
		if utf8.Valid(b) {
			return substituteEsc(string(b))
		}
		e.latin1 = true
		if e.logger != nil {
			e.logger.Printf("xport: %s: non-UTF-8 character data, falling back to Latin-1", EncodingError)
		}
	}

	// ISO-8859-1 maps every byte value to a code point, so this never
	// fails even on genuinely malformed input.
	decoded, _ := charmap.ISO8859_1.NewDecoder().String(string(b))
	return substituteEsc(decoded)
}

func substituteEsc(s string) string {
	return escSequence.ReplaceAllStringFunc(s, func(match string) string {
		sub := escSequence.FindStringSubmatch(match)
		code, err := strconv.ParseUint(sub[1], 16, 32)
		if err != nil {
			return match
		}
		return string(rune(code))
	})
}
