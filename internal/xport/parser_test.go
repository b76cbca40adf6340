package xport

import (
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSink collects emitted rows in memory for assertions, standing in
// for the real CSV collaborator.
type testSink struct {
	rows [][]*string
}

func (s *testSink) WriteRow(fields []*string) error {
	row := make([]*string, len(fields))
	copy(row, fields)
	s.rows = append(s.rows, row)
	return nil
}

func (s *testSink) strings() [][]string {
	out := make([][]string, len(s.rows))
	for i, row := range s.rows {
		r := make([]string, len(row))
		for j, f := range row {
			if f == nil {
				r[j] = "\x00NULL\x00"
			} else {
				r[j] = *f
			}
		}
		out[i] = r
	}
	return out
}

func field(s string, width int) []byte {
	b := make([]byte, width)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func putBE16(b []byte, v int16) {
	binary.BigEndian.PutUint16(b, uint16(v))
}

func putBE32(b []byte, v int32) {
	binary.BigEndian.PutUint32(b, uint32(v))
}

func headerRecord(prefix string, payload string) [RecordSize]byte {
	var rec [RecordSize]byte
	for i := range rec {
		rec[i] = ' '
	}
	copy(rec[:], prefix)
	copy(rec[len(prefix):], payload)
	return rec
}

// realHeaderRecord builds the fixed-shape real header used by the S1
// document header and the S5 v6 member header alike: five 8-byte text
// fields, 24 spaces, then the 16-byte date.
func realHeaderRecord(sym1, sym2, lib, version, os, dateText string) [RecordSize]byte {
	var rec [RecordSize]byte
	copy(rec[0:8], field(sym1, 8))
	copy(rec[8:16], field(sym2, 8))
	copy(rec[16:24], field(lib, 8))
	copy(rec[24:32], field(version, 8))
	copy(rec[32:40], field(os, 8))
	copy(rec[40:64], field("", 24))
	copy(rec[64:80], field(dateText, 16))
	return rec
}

// memberRealHeaderV8Record builds the S5 v8-shape member header: a
// 32-byte dataset name with no blank gap before version/os/date.
func memberRealHeaderV8Record(sym1, name, version, os, dateText string) [RecordSize]byte {
	var rec [RecordSize]byte
	copy(rec[0:8], field(sym1, 8))
	copy(rec[8:40], field(name, 32))
	copy(rec[40:48], field("", 8))
	copy(rec[48:56], field(version, 8))
	copy(rec[56:64], field(os, 8))
	copy(rec[64:80], field(dateText, 16))
	return rec
}

func mtimeHeaderRecord(dateText string) [RecordSize]byte {
	var rec [RecordSize]byte
	copy(rec[0:16], field(dateText, 16))
	copy(rec[16:80], field("", 64))
	return rec
}

func secondMemberHeaderRecord(dateText, label, dtype string) [RecordSize]byte {
	var rec [RecordSize]byte
	copy(rec[0:16], field(dateText, 16))
	copy(rec[16:32], field("", 16))
	copy(rec[32:72], field(label, 40))
	copy(rec[72:80], field(dtype, 8))
	return rec
}

func namestrHeaderRecord(count int) [RecordSize]byte {
	payload := []byte("000000")
	payload = append(payload, []byte{'0', '0', '0', byte('0' + count)}...)
	for len(payload) < RecordSize-len(namestrHeaderPrefix) {
		payload = append(payload, '0')
	}
	return headerRecord(namestrHeaderPrefix, string(payload))
}

// numericNamestr builds one 140-byte numeric column descriptor.
func numericNamestr(nvar0 int16, name, label, nform string, nlng int16, npos int32) [NamestrSize]byte {
	var rec [NamestrSize]byte
	putBE16(rec[0:2], 1) // ntype = numeric
	putBE16(rec[2:4], 0) // nhfun
	putBE16(rec[4:6], nlng)
	putBE16(rec[6:8], nvar0)
	copy(rec[8:16], field(name, 8))
	copy(rec[16:56], field(label, 40))
	copy(rec[56:64], field(nform, 8))
	putBE16(rec[64:66], 0)
	putBE16(rec[66:68], 0)
	putBE16(rec[68:70], 0)
	putBE16(rec[70:72], 0)
	copy(rec[72:80], field("", 8))
	putBE16(rec[80:82], 0)
	putBE16(rec[82:84], 0)
	putBE32(rec[84:88], npos)
	copy(rec[88:120], field("", 32))
	putBE16(rec[120:122], 0)
	return rec
}

// buildMinimalFile assembles one LIBRARY/MEMBER/NAMESTR/OBS sequence for
// a single numeric column, two observations: 1.0 and 2.0.
func buildMinimalFile(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	app := func(rec [RecordSize]byte) { buf = append(buf, rec[:]...) }

	app(headerRecord(libraryHeaderPrefix, strings.Repeat("0", 30)))
	app(realHeaderRecord("SAS", "SAS", "SASLIB", "9.4", "WIN", "01JAN20:00:00:00"))
	app(mtimeHeaderRecord("01JAN20:00:00:00"))
	app(headerRecord(memberHeaderPrefix, strings.Repeat("0", 30)))
	app(headerRecord(dscrptrHeaderPrefix, strings.Repeat("0", 30)))
	app(realHeaderRecord("SAS", "TEST", "SASDATA", "9.4", "WIN", "02JAN20:00:00:00"))
	app(secondMemberHeaderRecord("03JAN20:00:00:00", "Test Dataset", "DATA"))
	app(namestrHeaderRecord(1))

	nam := numericNamestr(1, "X", "Label", "", 8, 0)
	buf = append(buf, nam[:]...)
	// Namestrings are padded to a multiple of the 80-byte physical record
	// size (140 bytes here rounds up to 160) before the OBS header.
	buf = append(buf, make([]byte, 2*RecordSize-NamestrSize)...)

	app(headerRecord(obsHeaderPrefix, strings.Repeat("0", 30)))

	var obs [RecordSize]byte
	copy(obs[0:8], []byte{0x41, 0x10, 0, 0, 0, 0, 0, 0}) // 1.0
	copy(obs[8:16], []byte{0x41, 0x20, 0, 0, 0, 0, 0, 0}) // 2.0
	buf = append(buf, obs[:]...)

	return buf
}

func TestDecoder_minimalSingleMemberTwoObservations(t *testing.T) {
	data := buildMinimalFile(t)
	sink := &testSink{}
	dec := NewDecoder(strings.NewReader(string(data)), sink, Options{}, nil)

	err := dec.Run()
	require.NoError(t, err)

	rows := sink.strings()
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"TEST (Test Dataset)", "created 2020-01-02 00:00:00", "modified 2020-01-03 00:00:00"}, rows[0])
	assert.Equal(t, []string{"X"}, rows[1])
	assert.Equal(t, []string{"Label"}, rows[2])
	assert.Equal(t, []string{"1"}, rows[3])
	assert.Equal(t, []string{"2"}, rows[4])

	members := dec.Document().Members
	require.Len(t, members, 1)
	assert.Equal(t, "TEST", members[0].DatasetName)
	assert.Equal(t, "Test Dataset", members[0].DatasetLabel)
}

// TestDecoder_memberRealHeaderV8Accepted exercises the member header's
// v8 layout (32-byte dataset name, no blank gap before version/os) as a
// first-attempt success: the document assumes real_version 8, and a
// genuine v8-shaped record must be accepted without any fallback.
func TestDecoder_memberRealHeaderV8Accepted(t *testing.T) {
	d := &Decoder{
		doc:    &Document{RealVersion: 8},
		member: &Member{},
	}
	rec := memberRealHeaderV8Record("SAS", "WIDE", "9.4", "WIN", "02JAN20:00:00:00")

	require.NoError(t, d.handleAwaitingMemberData(rec))

	assert.Equal(t, 8, d.doc.RealVersion)
	assert.Equal(t, "WIDE", d.member.DatasetName)
	assert.Equal(t, "9.4", d.member.SASVersion)
	assert.Equal(t, "WIN", d.member.OS)
}

// TestDecoder_memberRealHeaderFallsBackToV6 exercises the retry path:
// the document assumes real_version 8 (per handleAwaitingRealHeader's
// fixed assumption), but the member header record is actually laid out
// in the v6 shape, so the first attempt reads Version/OS from within
// the v6 shape's blank gap and must come back empty, forcing a retry
// under the v6 layout that succeeds and flips doc.RealVersion to 6.
func TestDecoder_memberRealHeaderFallsBackToV6(t *testing.T) {
	d := &Decoder{
		doc:    &Document{RealVersion: 8},
		member: &Member{},
	}
	rec := realHeaderRecord("SAS", "TEST", "SASDATA", "9.4", "WIN", "02JAN20:00:00:00")

	require.NoError(t, d.handleAwaitingMemberData(rec))

	assert.Equal(t, 6, d.doc.RealVersion)
	assert.Equal(t, "TEST", d.member.DatasetName)
	assert.Equal(t, "9.4", d.member.SASVersion)
	assert.Equal(t, "WIN", d.member.OS)
}

func TestDecoder_namestrBufferDiscardsTrailingPad(t *testing.T) {
	d := &Decoder{
		enc:    NewEncoding(nil),
		member: &Member{},
	}
	var buf []byte
	n1 := numericNamestr(1, "A", "", "", 8, 0)
	buf = append(buf, n1[:]...)
	buf = append(buf, make([]byte, 50)...) // trailing <140-byte pad of NULs
	d.member.namestringsBuf = buf
	d.sink = &testSink{}

	require.NoError(t, d.finishNamestrs())
	assert.Len(t, d.member.Names, 1)
	assert.Equal(t, 8, d.member.RecordLength)
}

func TestDecoder_missingNumericInDateColumnEmitsNull(t *testing.T) {
	d := &Decoder{
		enc:    NewEncoding(nil),
		member: &Member{},
		sink:   &testSink{},
	}
	d.member.Names = []Namestr{
		{NType: VarNumeric, NName: "D", NForm: "DATE", NLng: 8, NPos: 0},
		{NType: VarNumeric, NName: "N", NForm: "", NLng: 8, NPos: 8},
	}
	d.member.RecordLength = 16

	row := make([]byte, 16)
	copy(row[0:8], []byte{0x2E, 0, 0, 0, 0, 0, 0, 0}) // MissingNumeric
	copy(row[8:16], []byte{0x41, 0x10, 0, 0, 0, 0, 0, 0})

	require.NoError(t, d.emitObservationRow(row))
	sink := d.sink.(*testSink)
	require.Len(t, sink.rows, 1)
	assert.Nil(t, sink.rows[0][0])
	require.NotNil(t, sink.rows[0][1])
	assert.Equal(t, "1", *sink.rows[0][1])
}

func TestDecoder_shortFinalReadCleanTermination(t *testing.T) {
	r := strings.NewReader("short")
	rr := NewRecordReader(r)
	_, err := rr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
