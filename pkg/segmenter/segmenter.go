// Package segmenter consumes encoded frames and cuts them into duration-
// and keyframe-aligned segments plus sub-second partial segments.
package segmenter

import (
	"github.com/aminofox/hlspack/pkg/model"
)

// Config tunes a segmenter at construction time.
type Config struct {
	TargetDuration     float64 // seconds
	PartTargetDuration float64 // seconds; 0 disables partial emission
	RingBufferSize     int     // 0 disables ring-buffer eviction
}

// CompletedSegment is handed to the caller's onSegment callback when a
// segment is cut.
type CompletedSegment struct {
	Index         uint64
	Payload       []byte
	Duration      float64
	IsIndependent bool
	FrameCount    int
	Codecs        []model.CodecTag
}

// CompletedPartial is handed to the caller's onPartial callback whenever a
// sub-second boundary is crossed inside the in-progress segment.
type CompletedPartial struct {
	SegmentIndex  uint64
	PartialIndex  int
	Payload       []byte
	Duration      float64
	IsIndependent bool
}

// Callbacks receives segment/partial boundaries as the segmenter cuts them.
type Callbacks struct {
	OnSegment func(CompletedSegment)
	OnPartial func(CompletedPartial)
}

type pendingFrame struct {
	payload    []byte
	durationS  float64
	isKeyframe bool
	codec      model.CodecTag
}

// ring keeps at most size completed segments, matching the segmenter's own
// internal retention (independent of whatever the playlist manager keeps).
type ring struct {
	size    int
	entries []CompletedSegment
}

func newRing(size int) *ring {
	return &ring{size: size}
}

func (r *ring) push(s CompletedSegment) {
	if r.size <= 0 {
		return
	}
	r.entries = append(r.entries, s)
	if len(r.entries) > r.size {
		r.entries = r.entries[len(r.entries)-r.size:]
	}
}

func (r *ring) snapshot() []CompletedSegment {
	out := make([]CompletedSegment, len(r.entries))
	copy(out, r.entries)
	return out
}
