package xport

import "time"

// Document accumulates across the whole transport file: the library
// header metadata and every member (dataset) parsed from it.
type Document struct {
	SASVersion  string
	RealVersion int // 6 or 8, per the S5 heuristic
	OS          string
	Created     time.Time
	Modified    time.Time
	Members     []*Member
}

// Member is one dataset ("MEMBER") within the transport file.
type Member struct {
	DatasetName  string
	DatasetLabel string
	DatasetType  string
	SASVersion   string
	OS           string
	Created      time.Time
	Modified     time.Time
	Names        []Namestr
	RecordLength int

	namestringsBuf  []byte
	observationsBuf []byte
}
