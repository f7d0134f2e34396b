// Package playlist renders an in-memory playlist snapshot to RFC 8216 /
// LL-HLS M3U8 text. Rendering is a pure, idempotent function of the
// snapshot value; it cannot fail on well-formed input.
package playlist

import "github.com/aminofox/hlspack/pkg/model"

// SegmentEntry pairs a completed LiveSegment with the partials (if any)
// that belong to it, so the renderer can emit those #EXT-X-PART lines
// before the segment's own #EXTINF per the LL-HLS ordering rule.
type SegmentEntry struct {
	Segment  model.LiveSegment
	Partials []model.PartialSegment
}

// Snapshot is the full state the renderer needs to produce either a
// complete media playlist or, via RenderDelta, a delta update of it.
type Snapshot struct {
	TargetDuration        int
	MediaSequence         uint64
	DiscontinuitySequence uint64
	PlaylistType          string // "", "VOD", or "EVENT"
	HasEndList            bool
	Independent           bool
	StartOffset           *float64
	CustomTags            []string

	Segments []SegmentEntry

	// InProgressPartials belong to the current, not-yet-completed segment
	// and are emitted after the last completed segment's URI.
	InProgressPartials []model.PartialSegment

	PartTargetDuration float64 // 0 means LL-HLS part-inf is not emitted
	PreloadHint        *model.PreloadHint
	ServerControl      *model.ServerControl
	RenditionReports   []model.RenditionReport
	DateRanges         []model.DateRange
}

// SkipRequest describes a client's _HLS_skip query parameter.
type SkipRequest struct {
	Mode model.SkipMode
}

// Rendition is one entry of a master playlist's #EXT-X-STREAM-INF list.
type Rendition struct {
	Bandwidth        int
	AverageBandwidth int
	Codecs           string
	Resolution       string
	FrameRate        float64
	URI              string
}
