// Package liveplaylist maintains the three live-playlist retention
// strategies (sliding window, DVR, event) that sit between the segmenter
// and the M3U8 renderer.
package liveplaylist

import (
	"sync"

	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// EventType enumerates LivePlaylistEvent kinds published on a Playlist's
// event bus.
type EventType int

const (
	EventSegmentAdded EventType = iota
	EventSegmentEvicted
	EventPlaylistRendered
	EventEnded
)

// Event is delivered to subscribers on Subscribe/SubscribeAll.
type Event struct {
	Type    EventType
	Segment *model.LiveSegment
}

// Callback receives Events published by a Playlist.
type Callback func(Event)

// Metadata carries the header-level options a Playlist renders with.
type Metadata struct {
	IndependentSegments bool
	StartOffset         *float64
	CustomTags          []string
}

// Playlist is the shared contract all three retention strategies
// implement.
type Playlist interface {
	AddSegment(seg model.LiveSegment)
	Render() string
	UpdateMetadata(meta Metadata)
	Subscribe(t EventType, cb Callback)
	SubscribeAll(cb Callback)
	MediaSequence() uint64
	DiscontinuitySequence() uint64
	SegmentCount() int
}

// eventBus is a minimal per-instance publisher, generalized from the
// room-level event bus into a playlist-scoped one.
type eventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Callback
	all      []Callback
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[EventType][]Callback)}
}

func (b *eventBus) subscribe(t EventType, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], cb)
}

func (b *eventBus) subscribeAll(cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, cb)
}

func (b *eventBus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, cb := range b.handlers[e.Type] {
		go cb(e)
	}
	for _, cb := range b.all {
		go cb(e)
	}
}

func metaSnapshot(meta Metadata) playlist.Snapshot {
	s := playlist.Snapshot{
		Independent: meta.IndependentSegments,
		StartOffset: meta.StartOffset,
		CustomTags:  append([]string(nil), meta.CustomTags...),
	}
	return s
}
