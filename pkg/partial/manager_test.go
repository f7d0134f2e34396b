package partial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminofox/hlspack/pkg/errors"
)

func newTestManager() *Manager {
	return New(Config{
		PartTargetDuration:  0.5,
		MaxRetainedSegments: 2,
		URITemplate:         "seg{segment}.{part}.{ext}",
		Extension:           "mp4",
	}, nil)
}

func TestAddPartialAssignsTemplateURIs(t *testing.T) {
	m := newTestManager()

	p0, err := m.AddPartial(0.5, "", true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "seg0.0.mp4", p0.URI)
	assert.Equal(t, "0.0", p0.ID.String())

	p1, err := m.AddPartial(0.5, "", false, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "seg0.1.mp4", p1.URI)
	assert.False(t, p1.IsIndependent)
}

func TestAddPartialHonorsURIOverride(t *testing.T) {
	m := newTestManager()

	p, err := m.AddPartial(0.5, "custom/part.mp4", true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom/part.mp4", p.URI)
}

func TestFirstPartialMustBeIndependent(t *testing.T) {
	m := newTestManager()

	_, err := m.AddPartial(0.5, "", false, false, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFirstPartialMustBeIndependent, errors.GetErrorCode(err))

	// After an independent first partial the constraint is lifted.
	_, err = m.AddPartial(0.5, "", true, false, nil)
	require.NoError(t, err)
	_, err = m.AddPartial(0.5, "", false, false, nil)
	require.NoError(t, err)
}

func TestAddPartialRejectsOversizedDuration(t *testing.T) {
	m := newTestManager()

	_, err := m.AddPartial(0.6, "", true, false, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePartialDurationExceedsTarget, errors.GetErrorCode(err))

	// One percent of slack is allowed for encoder jitter.
	_, err = m.AddPartial(0.505, "", true, false, nil)
	require.NoError(t, err)
}

func TestCompleteSegmentAdvancesAndReturnsGroup(t *testing.T) {
	m := newTestManager()

	_, err := m.AddPartial(0.5, "", true, false, nil)
	require.NoError(t, err)
	_, err = m.AddPartial(0.5, "", false, false, nil)
	require.NoError(t, err)

	group := m.CompleteSegment()
	require.Len(t, group, 2)
	assert.Equal(t, uint64(1), m.ActiveSegmentIndex())

	// Completing with no partials still advances and returns empty.
	assert.Empty(t, m.CompleteSegment())
	assert.Equal(t, uint64(2), m.ActiveSegmentIndex())
}

func TestRetentionEvictsOldestGroups(t *testing.T) {
	m := newTestManager()

	for i := 0; i < 4; i++ {
		_, err := m.AddPartial(0.5, "", true, false, nil)
		require.NoError(t, err)
		m.CompleteSegment()
	}

	groups, current := m.PartialsForRendering()
	require.Len(t, groups, 2, "retention keeps the two newest groups")
	assert.Equal(t, uint64(2), groups[0].SegmentIndex)
	assert.Equal(t, uint64(3), groups[1].SegmentIndex)
	assert.Empty(t, current)
}

func TestCurrentPreloadHintTracksNextPartial(t *testing.T) {
	m := newTestManager()

	hint := m.CurrentPreloadHint()
	require.NotNil(t, hint)
	assert.Equal(t, "seg0.0.mp4", hint.URI)

	_, err := m.AddPartial(0.5, "", true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "seg0.1.mp4", m.CurrentPreloadHint().URI)

	m.CompleteSegment()
	assert.Equal(t, "seg1.0.mp4", m.CurrentPreloadHint().URI)
}

func TestEndStopsPartialsAndHints(t *testing.T) {
	m := newTestManager()
	m.End()

	assert.Nil(t, m.CurrentPreloadHint())

	_, err := m.AddPartial(0.5, "", true, false, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamAlreadyEnded, errors.GetErrorCode(err))
}
