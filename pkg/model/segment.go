package model

import (
	"strconv"
	"time"
)

// ByteRange describes a sub-range of a resource, as emitted in
// #EXT-X-BYTERANGE:length[@offset].
type ByteRange struct {
	Length int64
	Offset *int64
}

// DateRange is a date-range entity that may be referenced from
// RECENTLY-REMOVED-DATERANGES during a delta update.
type DateRange struct {
	ID    string
	Start time.Time
	End   *time.Time
}

// LiveSegment is an immutable, fully emitted media segment.
type LiveSegment struct {
	Index           uint64
	Payload         []byte
	Duration        float64
	ProgramDateTime *time.Time
	IsIndependent   bool
	Discontinuity   bool
	Filename        string
	FrameCount      int
	Codecs          []CodecTag
	ByteRange       *ByteRange
	KeyURI          string
	MapURI          string
	Bitrate         int
	IsGap           bool
}

// PartialID is the composite (segment_index, partial_index) key. The
// stringified "S.P" form is for display only; maps and sets key off the
// tuple itself.
type PartialID struct {
	SegmentIndex uint64
	PartialIndex int
}

func (id PartialID) String() string {
	return strconv.FormatUint(id.SegmentIndex, 10) + "." + strconv.Itoa(id.PartialIndex)
}

// Less reports whether id sorts strictly before other under the
// lexicographic (segment_index, partial_index) order used throughout the
// LL-HLS manager and blocking coordinator.
func (id PartialID) Less(other PartialID) bool {
	if id.SegmentIndex != other.SegmentIndex {
		return id.SegmentIndex < other.SegmentIndex
	}
	return id.PartialIndex < other.PartialIndex
}

// PartialSegment is a sub-second chunk of a segment, exposed for LL-HLS.
type PartialSegment struct {
	ID            PartialID
	Duration      float64
	URI           string
	IsIndependent bool
	IsGap         bool
	ByteRange     *ByteRange
}

// PreloadHint points a client at the next partial it should speculatively
// fetch.
type PreloadHint struct {
	URI string
}
