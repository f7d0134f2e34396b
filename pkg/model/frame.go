// Package model defines the value types shared by the live-streaming core:
// encoded frames, live segments, partial segments, and the small structs
// that describe LL-HLS server control and rendition-report state.
package model

// CodecTag identifies the codec carried by a frame, segment, or track.
type CodecTag string

const (
	CodecH264 CodecTag = "avc1"
	CodecHEVC CodecTag = "hvc1"
	CodecAAC  CodecTag = "mp4a"
	CodecOpus CodecTag = "opus"
)

// Rational is a presentation timestamp or duration expressed as a fraction,
// avoiding floating-point drift while frames are in flight.
type Rational struct {
	Num   int64
	Denom int64
}

// Seconds converts the rational to a float64 number of seconds. Denom == 0
// is treated as zero duration rather than panicking on division by zero.
func (r Rational) Seconds() float64 {
	if r.Denom == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Denom)
}

// EncodedFrame is the input contract the live segmenter consumes. Timestamps
// within a single codec track must be monotonically non-decreasing.
type EncodedFrame struct {
	Payload       []byte
	Codec         CodecTag
	PTS           Rational
	Duration      Rational
	IsKeyframe    bool
	IsIndependent bool
}
