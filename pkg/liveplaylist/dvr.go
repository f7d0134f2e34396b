package liveplaylist

import (
	"math"
	"sync"

	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// DVR retains segments whose combined duration fits within windowDuration
// seconds, evicting the oldest until back under budget.
type DVR struct {
	mu             sync.RWMutex
	windowDuration float64
	bus            *eventBus

	segments              []model.LiveSegment
	totalDuration         float64
	mediaSequence         uint64
	discontinuitySequence uint64
	targetDuration        int
	meta                  Metadata
}

// NewDVR creates a time-shift playlist retaining at most windowDuration
// seconds of segments.
func NewDVR(windowDuration float64) *DVR {
	return &DVR{windowDuration: windowDuration, bus: newEventBus()}
}

func (d *DVR) AddSegment(seg model.LiveSegment) {
	d.mu.Lock()
	d.segments = append(d.segments, seg)
	d.totalDuration += seg.Duration
	if seg.Duration > 0 {
		if dd := int(math.Ceil(seg.Duration)); dd > d.targetDuration {
			d.targetDuration = dd
		}
	}

	var evicted []model.LiveSegment
	for d.windowDuration > 0 && d.totalDuration > d.windowDuration && len(d.segments) > 1 {
		e := d.segments[0]
		d.segments = d.segments[1:]
		d.totalDuration -= e.Duration
		d.mediaSequence++
		if e.Discontinuity {
			d.discontinuitySequence++
		}
		evicted = append(evicted, e)
	}
	if len(evicted) > 0 {
		d.targetDuration = 0
		for _, s := range d.segments {
			if dd := int(math.Ceil(s.Duration)); dd > d.targetDuration {
				d.targetDuration = dd
			}
		}
	}
	d.mu.Unlock()

	d.bus.publish(Event{Type: EventSegmentAdded, Segment: &seg})
	for i := range evicted {
		d.bus.publish(Event{Type: EventSegmentEvicted, Segment: &evicted[i]})
	}
}

func (d *DVR) Render() string {
	d.mu.RLock()
	snap := metaSnapshot(d.meta)
	snap.TargetDuration = d.targetDuration
	snap.MediaSequence = d.mediaSequence
	snap.DiscontinuitySequence = d.discontinuitySequence
	snap.Segments = make([]playlist.SegmentEntry, len(d.segments))
	for i, s := range d.segments {
		snap.Segments[i] = playlist.SegmentEntry{Segment: s}
	}
	d.mu.RUnlock()

	out := playlist.Render(snap)
	d.bus.publish(Event{Type: EventPlaylistRendered})
	return out
}

func (d *DVR) UpdateMetadata(meta Metadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta = meta
}

func (d *DVR) Subscribe(t EventType, cb Callback) { d.bus.subscribe(t, cb) }
func (d *DVR) SubscribeAll(cb Callback) { d.bus.subscribeAll(cb) }

func (d *DVR) MediaSequence() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mediaSequence
}

func (d *DVR) DiscontinuitySequence() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.discontinuitySequence
}

func (d *DVR) SegmentCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.segments)
}

// TotalDuration returns the current retained window's combined duration.
func (d *DVR) TotalDuration() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalDuration
}
