package segmenter

import (
	"bytes"
	"sync"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
)

// Audio cuts an audio frame stream into segments of at least
// Config.TargetDuration. Every emitted audio segment is independently
// decodable, so IsIndependent is always true.
type Audio struct {
	mu  sync.Mutex
	cfg Config
	log logger.Logger
	cb  Callbacks
	rb  *ring

	frames       []pendingFrame
	accumulated  float64
	segmentIndex uint64
	partialIndex int
	partialAccum float64
	codecs       map[model.CodecTag]struct{}
	done         bool
}

// NewAudio creates an audio segmenter. log may be nil.
func NewAudio(cfg Config, cb Callbacks, log logger.Logger) *Audio {
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	return &Audio{cfg: cfg, cb: cb, log: log, rb: newRing(cfg.RingBufferSize), codecs: map[model.CodecTag]struct{}{}}
}

// Ingest appends a frame to the in-progress segment, cutting a boundary
// when accumulated duration reaches the target.
func (a *Audio) Ingest(frame model.EncodedFrame) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return errors.NewStreamAlreadyEndedError()
	}

	dur := frame.Duration.Seconds()
	a.frames = append(a.frames, pendingFrame{payload: frame.Payload, durationS: dur, isKeyframe: true, codec: frame.Codec})
	a.accumulated += dur
	a.partialAccum += dur
	a.codecs[frame.Codec] = struct{}{}

	a.maybeCutPartial()
	if a.cfg.TargetDuration > 0 && a.accumulated >= a.cfg.TargetDuration {
		a.cutSegment()
	}
	return nil
}

func (a *Audio) maybeCutPartial() {
	if a.cfg.PartTargetDuration <= 0 || a.cb.OnPartial == nil {
		return
	}
	if a.partialAccum < a.cfg.PartTargetDuration {
		return
	}
	a.cb.OnPartial(CompletedPartial{
		SegmentIndex:  a.segmentIndex,
		PartialIndex:  a.partialIndex,
		Duration:      a.partialAccum,
		IsIndependent: a.partialIndex == 0,
	})
	a.partialIndex++
	a.partialAccum = 0
}

func (a *Audio) cutSegment() CompletedSegment {
	var buf bytes.Buffer
	for _, f := range a.frames {
		buf.Write(f.payload)
	}
	codecs := make([]model.CodecTag, 0, len(a.codecs))
	for c := range a.codecs {
		codecs = append(codecs, c)
	}

	seg := CompletedSegment{
		Index:         a.segmentIndex,
		Payload:       buf.Bytes(),
		Duration:      a.accumulated,
		IsIndependent: true,
		FrameCount:    len(a.frames),
		Codecs:        codecs,
	}
	a.rb.push(seg)
	if a.cb.OnSegment != nil {
		a.cb.OnSegment(seg)
	}
	a.log.Debug("audio segment cut", logger.Any("index", seg.Index), logger.Any("duration", seg.Duration))

	a.segmentIndex++
	a.partialIndex = 0
	a.partialAccum = 0
	a.frames = nil
	a.accumulated = 0
	a.codecs = map[model.CodecTag]struct{}{}
	return seg
}

// Finish flushes any in-progress segment, even if it is below target
// duration, and returns it (nil if no frames were ever ingested).
func (a *Audio) Finish() *CompletedSegment {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.done = true
	if len(a.frames) == 0 {
		return nil
	}
	seg := a.cutSegment()
	return &seg
}

// ForceSegmentBoundary emits the current segment immediately, regardless of
// accumulated duration, and begins a new one on the next frame.
func (a *Audio) ForceSegmentBoundary() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.frames) > 0 {
		a.cutSegment()
	}
}

// RetainedSegments returns the segmenter's own ring-buffer retention,
// independent of what any playlist manager keeps.
func (a *Audio) RetainedSegments() []CompletedSegment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rb.snapshot()
}
