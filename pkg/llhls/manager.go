// Package llhls aggregates a sliding-window playlist, a partial-segment
// manager, server-control, and rendition reports into the single owner
// state machine that answers LL-HLS playlist requests.
package llhls

import (
	"context"
	"math"
	"time"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/liveplaylist"
	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/partial"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// Config tunes a Manager at construction time. The part target duration
// lives on PartialConfig, which also governs retention and URI shaping.
type Config struct {
	MaxSegments   int
	PartialConfig partial.Config
	ServerControl model.ServerControl
}

// Notification is delivered to Subscribe callbacks whenever a new
// (segment, partial) pair is announced, letting a blocking-request
// coordinator learn of progress without polling the Manager's actor loop.
type Notification struct {
	SegmentIndex uint64
	PartialIndex int
	// SegmentComplete is true when this notification corresponds to a
	// completed segment (partial index is moot for satisfaction checks).
	SegmentComplete bool
}

// Manager is the single-owner LL-HLS state machine. All mutation requests
// are funneled onto one goroutine via chReq; Render/RenderDelta go through
// the same channel since they must reflect a consistent snapshot of
// in-flight partials.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	chReq  chan func(*managerState)

	onNotify func(Notification)
}

type managerState struct {
	window           *liveplaylist.SlidingWindow
	partials         *partial.Manager
	serverControl    model.ServerControl
	renditionReports []model.RenditionReport
	dateRanges       []model.DateRange
	customTags       []string
	ended            bool
}

// New creates and starts a Manager. Call EndStream when the stream ends.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{ctx: ctx, cancel: cancel, chReq: make(chan func(*managerState))}

	st := &managerState{
		window:        liveplaylist.NewSlidingWindow(cfg.MaxSegments),
		partials:      partial.New(cfg.PartialConfig, nil),
		serverControl: cfg.ServerControl,
	}
	go m.run(st)
	return m
}

// OnNotify registers the callback invoked (synchronously, on the actor
// goroutine) every time AddPartial or CompleteSegment makes new content
// available. Intended for a blocking.Coordinator to wire itself in.
func (m *Manager) OnNotify(cb func(Notification)) {
	m.do(func(st *managerState) { m.onNotify = cb })
}

func (m *Manager) run(st *managerState) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case req := <-m.chReq:
			req(st)
		}
	}
}

func (m *Manager) do(f func(*managerState)) {
	done := make(chan struct{})
	select {
	case <-m.ctx.Done():
		return
	case m.chReq <- func(st *managerState) { f(st); close(done) }:
		<-done
	}
}

// AddPartial delegates to the partial-segment manager and notifies waiters
// that (activeSegmentIndex, returned partial index) is now available.
func (m *Manager) AddPartial(duration float64, uri string, isIndependent, isGap bool, byteRange *model.ByteRange) (model.PartialSegment, error) {
	var out model.PartialSegment
	var err error
	m.do(func(st *managerState) {
		if st.ended {
			err = errors.NewStreamAlreadyEndedError()
			return
		}
		out, err = st.partials.AddPartial(duration, uri, isIndependent, isGap, byteRange)
		if err == nil && m.onNotify != nil {
			m.onNotify(Notification{SegmentIndex: out.ID.SegmentIndex, PartialIndex: out.ID.PartialIndex})
		}
	})
	return out, err
}

// CompleteSegment finalizes the in-progress partial group into a
// LiveSegment, appends it to the sliding window, and notifies waiters that
// the segment is now complete.
func (m *Manager) CompleteSegment(duration float64, uri string, hasDiscontinuity bool, programDateTime *time.Time) (model.LiveSegment, error) {
	var out model.LiveSegment
	var err error
	m.do(func(st *managerState) {
		if st.ended {
			err = errors.NewStreamAlreadyEndedError()
			return
		}
		completedIndex := st.partials.ActiveSegmentIndex()
		parts := st.partials.CompleteSegment()
		seg := model.LiveSegment{
			Index:           completedIndex,
			Duration:        duration,
			Filename:        uri,
			Discontinuity:   hasDiscontinuity,
			ProgramDateTime: programDateTime,
		}
		st.window.AddSegment(seg)
		out = seg

		if m.onNotify != nil {
			m.onNotify(Notification{SegmentIndex: completedIndex, PartialIndex: len(parts) - 1, SegmentComplete: true})
		}
	})
	return out, err
}

// SetRenditionReports replaces the rendition-report list rendered with
// every playlist.
func (m *Manager) SetRenditionReports(reports []model.RenditionReport) {
	m.do(func(st *managerState) { st.renditionReports = reports })
}

// SetCustomTags replaces the custom header tag lines rendered with every
// playlist.
func (m *Manager) SetCustomTags(tags []string) {
	m.do(func(st *managerState) { st.customTags = tags })
}

// AddDateRange records a date range so a v2 delta update can name it in
// RECENTLY-REMOVED-DATERANGES once it falls inside the skipped window.
func (m *Manager) AddDateRange(dr model.DateRange) {
	m.do(func(st *managerState) { st.dateRanges = append(st.dateRanges, dr) })
}

// ServerControl returns a copy of the current server-control configuration.
func (m *Manager) ServerControl() model.ServerControl {
	var out model.ServerControl
	m.do(func(st *managerState) { out = st.serverControl })
	return out
}

// RenderPlaylist produces a full LL-HLS playlist snapshot.
func (m *Manager) RenderPlaylist() string {
	var out string
	m.do(func(st *managerState) { out = playlist.Render(m.snapshot(st)) })
	return out
}

// RenderDeltaPlaylist produces a delta update, or ("", false) if delta
// updates are not configured or nothing is skippable.
func (m *Manager) RenderDeltaPlaylist(req playlist.SkipRequest) (string, bool) {
	var out string
	var ok bool
	m.do(func(st *managerState) { out, ok = playlist.RenderDelta(m.snapshot(st), req) })
	return out, ok
}

func (m *Manager) snapshot(st *managerState) playlist.Snapshot {
	segments := st.window.Segments()
	groups, inProgress := st.partials.PartialsForRendering()
	byIndex := make(map[uint64][]model.PartialSegment, len(groups))
	for _, g := range groups {
		byIndex[g.SegmentIndex] = g.Partials
	}

	entries := make([]playlist.SegmentEntry, len(segments))
	for i, seg := range segments {
		entries[i] = playlist.SegmentEntry{Segment: seg, Partials: byIndex[seg.Index]}
	}

	snap := playlist.Snapshot{
		TargetDuration:        ceilMaxDuration(segments),
		MediaSequence:         st.window.MediaSequence(),
		DiscontinuitySequence: st.window.DiscontinuitySequence(),
		Segments:              entries,
		InProgressPartials:    inProgress,
		PartTargetDuration:    st.partials.TargetDuration(),
		RenditionReports:      st.renditionReports,
		DateRanges:            st.dateRanges,
		CustomTags:            st.customTags,
		HasEndList:            st.ended,
	}
	sc := st.serverControl
	snap.ServerControl = &sc
	if !st.ended {
		snap.PreloadHint = st.partials.CurrentPreloadHint()
	}
	return snap
}

func ceilMaxDuration(segments []model.LiveSegment) int {
	max := 0.0
	for _, s := range segments {
		if s.Duration > max {
			max = s.Duration
		}
	}
	return int(math.Ceil(max))
}

// EndStream marks the LL-HLS stream as ended; subsequent renders carry
// EXT-X-ENDLIST and no preload hint, and mutations fail with
// StreamAlreadyEnded.
func (m *Manager) EndStream() {
	m.do(func(st *managerState) {
		st.ended = true
		st.partials.End()
	})
}

// Close stops the actor goroutine. All calls become no-ops afterwards;
// call only once no further renders are needed.
func (m *Manager) Close() {
	m.cancel()
}

// MediaSequence reports the playlist's current media sequence number.
func (m *Manager) MediaSequence() uint64 {
	var out uint64
	m.do(func(st *managerState) { out = st.window.MediaSequence() })
	return out
}
