package liveplaylist

import (
	"math"
	"sync"

	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// SlidingWindow retains at most maxSegments most-recent segments, evicting
// from the front and accumulating the media and discontinuity sequence
// counters as segments fall out of the window.
type SlidingWindow struct {
	mu          sync.RWMutex
	maxSegments int
	bus         *eventBus

	segments              []model.LiveSegment
	mediaSequence         uint64
	discontinuitySequence uint64
	targetDuration        int
	meta                  Metadata
}

// NewSlidingWindow creates a sliding-window playlist retaining at most
// maxSegments segments.
func NewSlidingWindow(maxSegments int) *SlidingWindow {
	return &SlidingWindow{maxSegments: maxSegments, bus: newEventBus()}
}

func (w *SlidingWindow) AddSegment(seg model.LiveSegment) {
	w.mu.Lock()
	w.segments = append(w.segments, seg)
	if seg.Duration > 0 {
		if d := int(math.Ceil(seg.Duration)); d > w.targetDuration {
			w.targetDuration = d
		}
	}

	var evicted []model.LiveSegment
	if w.maxSegments > 0 && len(w.segments) > w.maxSegments {
		drop := len(w.segments) - w.maxSegments
		evicted = append(evicted, w.segments[:drop]...)
		w.segments = w.segments[drop:]
		w.mediaSequence += uint64(drop)
		for _, e := range evicted {
			if e.Discontinuity {
				w.discontinuitySequence++
			}
		}
		w.targetDuration = 0
		for _, s := range w.segments {
			if d := int(math.Ceil(s.Duration)); d > w.targetDuration {
				w.targetDuration = d
			}
		}
	}
	w.mu.Unlock()

	w.bus.publish(Event{Type: EventSegmentAdded, Segment: &seg})
	for i := range evicted {
		w.bus.publish(Event{Type: EventSegmentEvicted, Segment: &evicted[i]})
	}
}

func (w *SlidingWindow) Render() string {
	w.mu.RLock()
	snap := w.snapshotLocked()
	w.mu.RUnlock()
	out := playlist.Render(snap)
	w.bus.publish(Event{Type: EventPlaylistRendered})
	return out
}

func (w *SlidingWindow) snapshotLocked() playlist.Snapshot {
	snap := metaSnapshot(w.meta)
	snap.TargetDuration = w.targetDuration
	snap.MediaSequence = w.mediaSequence
	snap.DiscontinuitySequence = w.discontinuitySequence
	snap.Segments = make([]playlist.SegmentEntry, len(w.segments))
	for i, s := range w.segments {
		snap.Segments[i] = playlist.SegmentEntry{Segment: s}
	}
	return snap
}

func (w *SlidingWindow) UpdateMetadata(meta Metadata) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meta = meta
}

func (w *SlidingWindow) Subscribe(t EventType, cb Callback) { w.bus.subscribe(t, cb) }
func (w *SlidingWindow) SubscribeAll(cb Callback) { w.bus.subscribeAll(cb) }

func (w *SlidingWindow) MediaSequence() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mediaSequence
}

func (w *SlidingWindow) DiscontinuitySequence() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.discontinuitySequence
}

func (w *SlidingWindow) SegmentCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.segments)
}

// Segments returns a copy of the currently retained segments, oldest first.
func (w *SlidingWindow) Segments() []model.LiveSegment {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.LiveSegment, len(w.segments))
	copy(out, w.segments)
	return out
}
