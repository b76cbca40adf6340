// Package sasdate decodes SAS DATE/TIME/DATETIME numerics (offsets from
// the SAS epoch) and the DDMONYY:HH:MM:SS text timestamps found in XPORT
// library and member headers.
package sasdate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jvdlinde/xportcsv/internal/ibmfloat"
)

// Epoch is the SAS reference point for all date/time numerics.
var Epoch = time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)

// Format names a column's output format as far as this decoder cares.
type Format int

const (
	FormatPlain Format = iota
	FormatDate
	FormatTime
	FormatDateTime
)

// ParseFormat maps an nform name (case-insensitive) to a Format. Unknown
// names fall back to FormatPlain, matching the "unknown format name ->
// treat as plain number" rule.
func ParseFormat(name string) Format {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DATE":
		return FormatDate
	case "TIME":
		return FormatTime
	case "DATETIME":
		return FormatDateTime
	default:
		return FormatPlain
	}
}

// DecodeDate renders an IBM-float day-offset payload as an ISO date. ok
// is false when the payload is a missing value, in which case the field
// should be emitted as null.
func DecodeDate(v ibmfloat.Value) (s string, ok bool) {
	if v.Kind != ibmfloat.KindNumber {
		return "", false
	}
	t := Epoch.AddDate(0, 0, int(v.Number))
	return t.Format("2006-01-02"), true
}

// DecodeTime renders an IBM-float seconds-since-midnight payload as
// HH:MM:SS.
func DecodeTime(v ibmfloat.Value) (s string, ok bool) {
	if v.Kind != ibmfloat.KindNumber {
		return "", false
	}
	secs := int64(v.Number)
	h := secs / 3600
	m := (secs % 3600) / 60
	sec := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), true
}

// DecodeDateTime renders an IBM-float seconds-since-epoch payload as
// "YYYY-MM-DD HH:MM:SS".
func DecodeDateTime(v ibmfloat.Value) (s string, ok bool) {
	if v.Kind != ibmfloat.KindNumber {
		return "", false
	}
	t := Epoch.Add(time.Duration(v.Number) * time.Second)
	return t.Format("2006-01-02 15:04:05"), true
}

// PivotYear is the two-digit year boundary used by ParseSASDatetimeText:
// years >= PivotYear resolve to 19xx, years < PivotYear resolve to 20xx.
// This matches the reference xport9 implementation's calendar default.
const PivotYear = 69

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseSASDatetimeText parses the DDMONYY:HH:MM:SS timestamps embedded in
// LIBRARY/MEMBER header records, e.g. "31DEC68:23:59:59".
func ParseSASDatetimeText(s string) (time.Time, error) {
	if len(s) != 16 || s[7] != ':' || s[10] != ':' || s[13] != ':' {
		return time.Time{}, fmt.Errorf("sasdate: malformed timestamp %q", s)
	}

	day, err := strconv.Atoi(s[0:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("sasdate: bad day in %q: %w", s, err)
	}
	month, ok := monthAbbrev[strings.ToUpper(s[2:5])]
	if !ok {
		return time.Time{}, fmt.Errorf("sasdate: bad month in %q", s)
	}
	yy, err := strconv.Atoi(s[5:7])
	if err != nil {
		return time.Time{}, fmt.Errorf("sasdate: bad year in %q: %w", s, err)
	}
	hh, err := strconv.Atoi(s[8:10])
	if err != nil {
		return time.Time{}, fmt.Errorf("sasdate: bad hour in %q: %w", s, err)
	}
	mm, err := strconv.Atoi(s[11:13])
	if err != nil {
		return time.Time{}, fmt.Errorf("sasdate: bad minute in %q: %w", s, err)
	}
	ss, err := strconv.Atoi(s[14:16])
	if err != nil {
		return time.Time{}, fmt.Errorf("sasdate: bad second in %q: %w", s, err)
	}

	year := 1900 + yy
	if yy < PivotYear {
		year = 2000 + yy
	}

	return time.Date(year, month, day, hh, mm, ss, 0, time.UTC), nil
}

// FormatSASDatetimeText renders t back into the DDMONYY:HH:MM:SS layout.
func FormatSASDatetimeText(t time.Time) string {
	yy := t.Year() % 100
	mon := strings.ToUpper(t.Month().String()[:3])
	return fmt.Sprintf("%02d%s%02d:%02d:%02d:%02d", t.Day(), mon, yy, t.Hour(), t.Minute(), t.Second())
}
