package segmenter

import (
	"bytes"
	"sync"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
)

// Video cuts a video frame stream into keyframe-aligned segments. A
// segment only ends on a keyframe boundary: once accumulated duration
// reaches Config.TargetDuration, the segmenter waits for the next keyframe
// to actually cut (which is also what "must cut on next keyframe
// regardless of duration" collapses to once the target has been exceeded).
type Video struct {
	mu  sync.Mutex
	cfg Config
	log logger.Logger
	cb  Callbacks
	rb  *ring

	frames        []pendingFrame
	accumulated   float64
	segmentIndex  uint64
	segmentHasKey bool // first frame of the in-progress segment was a keyframe
	partialIndex  int
	partialAccum  float64
	partialFrames int
	partialHasKey bool // first frame of the in-progress partial was independent
	codecs        map[model.CodecTag]struct{}
	done          bool
}

// NewVideo creates a video segmenter. log may be nil.
func NewVideo(cfg Config, cb Callbacks, log logger.Logger) *Video {
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	return &Video{cfg: cfg, cb: cb, log: log, rb: newRing(cfg.RingBufferSize), codecs: map[model.CodecTag]struct{}{}}
}

// Ingest appends a frame to the in-progress segment. A segment boundary is
// cut just before this frame is appended when the in-progress segment has
// already reached its target duration and this frame is a keyframe.
func (v *Video) Ingest(frame model.EncodedFrame) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.done {
		return errors.NewStreamAlreadyEndedError()
	}

	if len(v.frames) > 0 && v.accumulated >= v.cfg.TargetDuration && frame.IsKeyframe {
		v.cutSegment()
	}

	if len(v.frames) == 0 {
		v.segmentHasKey = frame.IsKeyframe
	}

	if v.partialFrames > 0 && frame.IsIndependent {
		v.cutPartial()
	}
	if v.partialFrames == 0 {
		v.partialHasKey = frame.IsIndependent
	}

	dur := frame.Duration.Seconds()
	v.frames = append(v.frames, pendingFrame{payload: frame.Payload, durationS: dur, isKeyframe: frame.IsKeyframe, codec: frame.Codec})
	v.accumulated += dur
	v.partialAccum += dur
	v.partialFrames++
	v.codecs[frame.Codec] = struct{}{}

	if v.cfg.PartTargetDuration > 0 && v.partialAccum >= v.cfg.PartTargetDuration {
		v.cutPartial()
	}
	return nil
}

func (v *Video) cutPartial() {
	if v.cb.OnPartial == nil {
		v.partialIndex++
		v.partialAccum = 0
		v.partialFrames = 0
		return
	}
	v.cb.OnPartial(CompletedPartial{
		SegmentIndex:  v.segmentIndex,
		PartialIndex:  v.partialIndex,
		Duration:      v.partialAccum,
		IsIndependent: v.partialIndex == 0 || v.partialHasKey,
	})
	v.partialIndex++
	v.partialAccum = 0
	v.partialFrames = 0
}

func (v *Video) cutSegment() CompletedSegment {
	if v.partialFrames > 0 {
		v.cutPartial()
	}

	var buf bytes.Buffer
	for _, f := range v.frames {
		buf.Write(f.payload)
	}
	codecs := make([]model.CodecTag, 0, len(v.codecs))
	for c := range v.codecs {
		codecs = append(codecs, c)
	}

	seg := CompletedSegment{
		Index:         v.segmentIndex,
		Payload:       buf.Bytes(),
		Duration:      v.accumulated,
		IsIndependent: v.segmentHasKey,
		FrameCount:    len(v.frames),
		Codecs:        codecs,
	}
	v.rb.push(seg)
	if v.cb.OnSegment != nil {
		v.cb.OnSegment(seg)
	}
	v.log.Debug("video segment cut", logger.Any("index", seg.Index), logger.Any("duration", seg.Duration), logger.Bool("independent", seg.IsIndependent))

	v.segmentIndex++
	v.partialIndex = 0
	v.partialAccum = 0
	v.partialFrames = 0
	v.frames = nil
	v.accumulated = 0
	v.codecs = map[model.CodecTag]struct{}{}
	return seg
}

// Finish flushes any in-progress segment, even if below target duration.
func (v *Video) Finish() *CompletedSegment {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.done = true
	if len(v.frames) == 0 {
		return nil
	}
	seg := v.cutSegment()
	return &seg
}

// ForceSegmentBoundary emits the current segment immediately, used for ad
// insertion or content switches.
func (v *Video) ForceSegmentBoundary() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.frames) > 0 {
		v.cutSegment()
	}
}

// RetainedSegments returns the segmenter's own ring-buffer retention.
func (v *Video) RetainedSegments() []CompletedSegment {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rb.snapshot()
}
