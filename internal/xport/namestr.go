package xport

import (
	"bytes"
	"encoding/binary"
)

// NamestrSize is the fixed width of one column-descriptor record.
const NamestrSize = 140

// VarType is the SAS column storage class.
type VarType int16

const (
	VarNumeric   VarType = 1
	VarCharacter VarType = 2
)

// Namestr is the decoded 140-byte column descriptor (spec.md data model
// table): type, width, position, and the short/long name and label
// fields needed to decode and label observation data.
type Namestr struct {
	NType    VarType
	NHFun    int16
	NLng     int16
	NVar0    int16
	NName    string
	NLabel   string
	NForm    string
	NFL      int16
	NFD      int16
	NFJ      int16
	NFill    int16
	NIForm   string
	NIFL     int16
	NIFD     int16
	NPos     int32
	LongName string
	LabLen   int16
}

// DecodeNamestr parses one 140-byte namestr record. Character fields are
// right-trimmed of NUL and space, then decoded with enc.
func DecodeNamestr(rec [NamestrSize]byte, enc *Encoding) (Namestr, error) {
	n := Namestr{
		NType:  VarType(beInt16(rec[0:2])),
		NHFun:  beInt16(rec[2:4]),
		NLng:   beInt16(rec[4:6]),
		NVar0:  beInt16(rec[6:8]),
		NName:  trimField(rec[8:16], enc),
		NLabel: trimField(rec[16:56], enc),
		NForm:  trimField(rec[56:64], enc),
		NFL:    beInt16(rec[64:66]),
		NFD:    beInt16(rec[66:68]),
		NFJ:    beInt16(rec[68:70]),
		NFill:  beInt16(rec[70:72]),
		NIForm: trimField(rec[72:80], enc),
		NIFL:   beInt16(rec[80:82]),
		NIFD:   beInt16(rec[82:84]),
		NPos:   beInt32(rec[84:88]),
		// rec[88:120] longname, rec[120:122] lablen, rec[122:140] rest (ignored)
		LongName: trimField(rec[88:120], enc),
		LabLen:   beInt16(rec[120:122]),
	}

	if n.NType != VarNumeric && n.NType != VarCharacter {
		return Namestr{}, newDecodeError(BadNamestr, nil, "ntype %d not in {1,2}", n.NType)
	}
	if n.NLng < 1 {
		return Namestr{}, newDecodeError(BadNamestr, nil, "nlng %d must be >= 1", n.NLng)
	}
	if n.NPos < 0 {
		return Namestr{}, newDecodeError(BadNamestr, nil, "npos %d must be >= 0", n.NPos)
	}

	return n, nil
}

func beInt16(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}

func beInt32(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}

func trimField(b []byte, enc *Encoding) string {
	trimmed := bytes.TrimRight(b, "\x00 ")
	return enc.DecodeField(trimmed)
}
