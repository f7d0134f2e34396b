// Package partial owns the append-only log of partial segments that backs
// LL-HLS: one group of partials per segment index, retained up to a
// configurable window, plus the "current preload hint" derivation.
package partial

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
)

// Group is one segment's worth of partials, completed or in-progress.
type Group struct {
	SegmentIndex uint64
	Partials     []model.PartialSegment
}

// Config tunes a Manager at construction time.
type Config struct {
	PartTargetDuration  float64
	MaxRetainedSegments int
	URITemplate         string // placeholders: {segment}, {part}, {ext}
	Extension           string
}

// DefaultConfig returns defaults tuned for sub-second partials under a
// typical 2-6s segment duration.
func DefaultConfig() Config {
	return Config{
		PartTargetDuration:  0.5,
		MaxRetainedSegments: 5,
		URITemplate:         "{segment}.{part}.{ext}",
		Extension:           "mp4",
	}
}

// Manager is a single-owner state machine; callers serialize through its
// exported methods, each of which takes the internal mutex for the
// duration of the mutation.
type Manager struct {
	mu sync.Mutex

	cfg Config
	log logger.Logger

	activeSegmentIndex uint64
	current            []model.PartialSegment
	retained           []Group
	evicted            uint64
	ended              bool
}

// New creates a partial-segment manager. log may be nil, in which case a
// no-op logger is used.
func New(cfg Config, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	return &Manager{cfg: cfg, log: log}
}

func (m *Manager) uri(segment uint64, part int) string {
	r := strings.NewReplacer(
		"{segment}", strconv.FormatUint(segment, 10),
		"{part}", strconv.Itoa(part),
		"{ext}", m.cfg.Extension,
	)
	return r.Replace(m.cfg.URITemplate)
}

// AddPartial appends a partial to the in-progress segment's group.
func (m *Manager) AddPartial(duration float64, uri string, isIndependent, isGap bool, byteRange *model.ByteRange) (model.PartialSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return model.PartialSegment{}, errors.NewStreamAlreadyEndedError()
	}
	if len(m.current) == 0 && !isIndependent {
		return model.PartialSegment{}, errors.NewFirstPartialMustBeIndependentError()
	}
	if duration > m.cfg.PartTargetDuration*1.01 {
		return model.PartialSegment{}, errors.NewPartialDurationExceedsTargetError(duration, m.cfg.PartTargetDuration)
	}

	partIndex := len(m.current)
	if uri == "" {
		uri = m.uri(m.activeSegmentIndex, partIndex)
	}
	p := model.PartialSegment{
		ID:            model.PartialID{SegmentIndex: m.activeSegmentIndex, PartialIndex: partIndex},
		Duration:      duration,
		URI:           uri,
		IsIndependent: isIndependent,
		IsGap:         isGap,
		ByteRange:     byteRange,
	}
	m.current = append(m.current, p)
	m.log.Debug("partial added", logger.Any("id", p.ID.String()), logger.Any("duration", duration))
	return p, nil
}

// CompleteSegment freezes the current group, advances the active segment
// index, runs retention eviction, and returns the completed group (which
// may be empty if no partials were ever added for it).
func (m *Manager) CompleteSegment() []model.PartialSegment {
	m.mu.Lock()
	defer m.mu.Unlock()

	completed := m.current
	m.retained = append(m.retained, Group{SegmentIndex: m.activeSegmentIndex, Partials: completed})
	m.current = nil
	m.activeSegmentIndex++

	if m.cfg.MaxRetainedSegments > 0 && len(m.retained) > m.cfg.MaxRetainedSegments {
		drop := len(m.retained) - m.cfg.MaxRetainedSegments
		m.retained = m.retained[drop:]
		m.evicted += uint64(drop)
	}

	return completed
}

// PartialsForRendering returns the retained completed groups followed by
// the in-progress group (which may be empty).
func (m *Manager) PartialsForRendering() ([]Group, []model.PartialSegment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	retained := make([]Group, len(m.retained))
	copy(retained, m.retained)
	current := make([]model.PartialSegment, len(m.current))
	copy(current, m.current)
	return retained, current
}

// CurrentPreloadHint returns the URI the next AddPartial call would assign,
// or nil once the stream has ended.
func (m *Manager) CurrentPreloadHint() *model.PreloadHint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return nil
	}
	return &model.PreloadHint{URI: m.uri(m.activeSegmentIndex, len(m.current))}
}

// End marks the partial stream ended; subsequent AddPartial calls fail.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = true
}

// ActiveSegmentIndex reports the index of the segment currently accepting
// partials.
func (m *Manager) ActiveSegmentIndex() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSegmentIndex
}

// TargetDuration reports the configured part target duration, used by the
// renderer's #EXT-X-PART-INF tag.
func (m *Manager) TargetDuration() float64 {
	return m.cfg.PartTargetDuration
}

func (g Group) String() string {
	return fmt.Sprintf("segment %d (%d partials)", g.SegmentIndex, len(g.Partials))
}
