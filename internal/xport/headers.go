package xport

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jvdlinde/xportcsv/internal/sasdate"
)

// Canonical header tag prefixes, anchored to the 80-byte record, per
// spec.md §4.5: "HEADER RECORD*******<TAG> ... HEADER RECORD!!!!!!!...".
const (
	libraryHeaderPrefix = "HEADER RECORD*******LIBRARY HEADER RECORD!!!!!!!"
	memberHeaderPrefix  = "HEADER RECORD*******MEMBER  HEADER RECORD!!!!!!!"
	dscrptrHeaderPrefix = "HEADER RECORD*******DSCRPTR HEADER RECORD!!!!!!!"
	namestrHeaderPrefix = "HEADER RECORD*******NAMESTR HEADER RECORD!!!!!!!"
	obsHeaderPrefix     = "HEADER RECORD*******OBS     HEADER RECORD!!!!!!!"
)

func isLibraryHeader(rec [RecordSize]byte) bool {
	return strings.HasPrefix(string(rec[:]), libraryHeaderPrefix)
}

func isMemberHeader(rec [RecordSize]byte) bool {
	return strings.HasPrefix(string(rec[:]), memberHeaderPrefix)
}

func isDscrptrHeader(rec [RecordSize]byte) bool {
	return strings.HasPrefix(string(rec[:]), dscrptrHeaderPrefix)
}

func isNamestrHeader(rec [RecordSize]byte) bool {
	return strings.HasPrefix(string(rec[:]), namestrHeaderPrefix)
}

func isObsHeader(rec [RecordSize]byte) bool {
	return strings.HasPrefix(string(rec[:]), obsHeaderPrefix)
}

// namestrCountRE captures the advisory variable count carried in the
// NAMESTR header payload: "0{6}NNNNNN0+". The count is informational
// only; §9 explicitly treats the buffer length as authoritative.
var namestrCountRE = regexp.MustCompile(`^0{6}(\d{4})`)

func parseNamestrCount(rec [RecordSize]byte) (int, bool) {
	payload := string(rec[len(namestrHeaderPrefix):])
	m := namestrCountRE.FindStringSubmatch(payload)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// realHeaderFields is the decoded form of a "real header" record: the
// S1 document header, and either member-header layout of S5. In the S1
// header the library name is in Lib; in the S5 header Symbol2 holds the
// dataset name (8 bytes in the v6 layout, 32 in the v8 layout).
type realHeaderFields struct {
	Symbol1 string
	Symbol2 string
	Lib     string
	Version string
	OS      string
	Created time.Time
}

// realHeaderDateStart is fixed across every real-header layout below:
// the trailing 16-byte timestamp always occupies the last 16 bytes of
// the 80-byte record.
const realHeaderDateStart = RecordSize - 16

// parseDocumentRealHeader decodes the S1 library header: five 8-byte
// text fields, 24 spaces, then the 16-byte date. This shape is fixed --
// unlike the S5 member header, it does not vary with real_version.
func parseDocumentRealHeader(rec [RecordSize]byte) (realHeaderFields, error) {
	return parseFixedRealHeader(rec)
}

// parseMemberRealHeaderV6 decodes the S5 member header in its version-6
// shape, which is identical to the S1 document header: five 8-byte text
// fields (dataset name at [8:16]), 24 spaces, then the date.
func parseMemberRealHeaderV6(rec [RecordSize]byte) (realHeaderFields, error) {
	return parseFixedRealHeader(rec)
}

func parseFixedRealHeader(rec [RecordSize]byte) (realHeaderFields, error) {
	f := realHeaderFields{
		Symbol1: strings.TrimSpace(string(rec[0:8])),
		Symbol2: strings.TrimSpace(string(rec[8:16])),
		Lib:     strings.TrimSpace(string(rec[16:24])),
		Version: strings.TrimSpace(string(rec[24:32])),
		OS:      strings.TrimSpace(string(rec[32:40])),
	}

	t, err := parseRealHeaderDate(rec)
	if err != nil {
		return realHeaderFields{}, err
	}
	f.Created = t
	return f, nil
}

// parseMemberRealHeaderV8 decodes the S5 member header in its version-8
// shape: an unbroken 32-byte dataset name at [8:40], then version [48:56]
// and os [56:64] immediately ahead of the date -- no blank gap.
func parseMemberRealHeaderV8(rec [RecordSize]byte) (realHeaderFields, error) {
	f := realHeaderFields{
		Symbol1: strings.TrimSpace(string(rec[0:8])),
		Symbol2: strings.TrimSpace(string(rec[8:40])),
		Version: strings.TrimSpace(string(rec[48:56])),
		OS:      strings.TrimSpace(string(rec[56:64])),
	}

	t, err := parseRealHeaderDate(rec)
	if err != nil {
		return realHeaderFields{}, err
	}
	f.Created = t
	return f, nil
}

func parseRealHeaderDate(rec [RecordSize]byte) (time.Time, error) {
	dateText := string(rec[realHeaderDateStart : realHeaderDateStart+16])
	t, err := sasdate.ParseSASDatetimeText(dateText)
	if err != nil {
		return time.Time{}, newDecodeError(BadRealHeader, &rec, "bad timestamp: %v", err)
	}
	return t, nil
}

// parseMtimeHeader reads the bare 16-byte SAS datetime record of S2/S6's
// leading field (no surrounding header tag to match against).
func parseMtimeHeader(rec [RecordSize]byte) (time.Time, error) {
	t, err := sasdate.ParseSASDatetimeText(string(rec[0:16]))
	if err != nil {
		return time.Time{}, newDecodeError(BadMemberHeader, &rec, "bad mtime: %v", err)
	}
	return t, nil
}

// secondMemberHeader is the S6 record: 16-byte mtime, 16 bytes padding,
// 40-byte dataset label, 8-byte dataset type.
type secondMemberHeader struct {
	Modified time.Time
	Label    string
	Type     string
}

func parseSecondMemberHeader(rec [RecordSize]byte) (secondMemberHeader, error) {
	modified, err := sasdate.ParseSASDatetimeText(string(rec[0:16]))
	if err != nil {
		return secondMemberHeader{}, newDecodeError(BadMemberHeader, &rec, "bad modified timestamp: %v", err)
	}
	return secondMemberHeader{
		Modified: modified,
		Label:    strings.TrimRight(string(rec[32:72]), "\x00 "),
		Type:     strings.TrimRight(string(rec[72:80]), "\x00 "),
	}, nil
}
