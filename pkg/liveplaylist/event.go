package liveplaylist

import (
	"math"
	"sync"

	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// EventPlaylist is an append-only playlist that never evicts segments and
// renders EXT-X-PLAYLIST-TYPE:EVENT, terminating with EXT-X-ENDLIST once
// End is called.
type EventPlaylist struct {
	mu  sync.RWMutex
	bus *eventBus

	segments       []model.LiveSegment
	targetDuration int
	hasEndList     bool
	meta           Metadata
}

// NewEvent creates an event (never-evicting) playlist.
func NewEvent() *EventPlaylist {
	return &EventPlaylist{bus: newEventBus()}
}

func (e *EventPlaylist) AddSegment(seg model.LiveSegment) {
	e.mu.Lock()
	e.segments = append(e.segments, seg)
	if seg.Duration > 0 {
		if d := int(math.Ceil(seg.Duration)); d > e.targetDuration {
			e.targetDuration = d
		}
	}
	e.mu.Unlock()
	e.bus.publish(Event{Type: EventSegmentAdded, Segment: &seg})
}

func (e *EventPlaylist) Render() string {
	e.mu.RLock()
	snap := metaSnapshot(e.meta)
	snap.TargetDuration = e.targetDuration
	snap.PlaylistType = "EVENT"
	snap.HasEndList = e.hasEndList
	snap.Segments = make([]playlist.SegmentEntry, len(e.segments))
	for i, s := range e.segments {
		snap.Segments[i] = playlist.SegmentEntry{Segment: s}
	}
	e.mu.RUnlock()

	out := playlist.Render(snap)
	e.bus.publish(Event{Type: EventPlaylistRendered})
	return out
}

func (e *EventPlaylist) UpdateMetadata(meta Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta = meta
}

// End marks the playlist as terminated; the next Render emits EXT-X-ENDLIST.
func (e *EventPlaylist) End() {
	e.mu.Lock()
	e.hasEndList = true
	e.mu.Unlock()
	e.bus.publish(Event{Type: EventEnded})
}

func (e *EventPlaylist) Subscribe(t EventType, cb Callback) { e.bus.subscribe(t, cb) }
func (e *EventPlaylist) SubscribeAll(cb Callback) { e.bus.subscribeAll(cb) }

func (e *EventPlaylist) MediaSequence() uint64 { return 0 }

func (e *EventPlaylist) DiscontinuitySequence() uint64 { return 0 }

func (e *EventPlaylist) SegmentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.segments)
}
