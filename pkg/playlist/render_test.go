package playlist

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aminofox/hlspack/pkg/model"
)

func TestRenderSlidingWindowBasic(t *testing.T) {
	entries := []SegmentEntry{
		{Segment: model.LiveSegment{Index: 2, Duration: 5.9, Filename: "seg2.ts"}},
		{Segment: model.LiveSegment{Index: 3, Duration: 6.0, Filename: "seg3.ts"}},
		{Segment: model.LiveSegment{Index: 4, Duration: 5.8, Filename: "seg4.ts"}},
	}
	out := Render(Snapshot{
		TargetDuration: 6,
		MediaSequence:  2,
		Segments:       entries,
	})

	require.Contains(t, out, "#EXT-X-TARGETDURATION:6\n")
	require.Contains(t, out, "#EXT-X-MEDIA-SEQUENCE:2\n")
	require.Equal(t, 3, strings.Count(out, "#EXTINF"))
	require.NotContains(t, out, "#EXT-X-ENDLIST")
}

func TestRenderLLHLSPartialsThenSegment(t *testing.T) {
	hint := &model.PreloadHint{URI: "seg1.0.mp4"}
	out := Render(Snapshot{
		TargetDuration:     2,
		PartTargetDuration: 0.33334,
		PreloadHint:        hint,
		ServerControl:      &model.ServerControl{CanBlockReload: true},
		Segments: []SegmentEntry{
			{
				Segment: model.LiveSegment{Index: 0, Duration: 2.0, Filename: "seg0.m4s"},
				Partials: []model.PartialSegment{
					{ID: model.PartialID{SegmentIndex: 0, PartialIndex: 0}, Duration: 0.33, IsIndependent: true, URI: "seg0.0.mp4"},
					{ID: model.PartialID{SegmentIndex: 0, PartialIndex: 1}, Duration: 0.33, URI: "seg0.1.mp4"},
				},
			},
		},
	})

	require.Contains(t, out, "#EXT-X-PART-INF:PART-TARGET=0.33334\n")
	require.Equal(t, 2, strings.Count(out, "#EXT-X-PART:"))
	require.Contains(t, out, "#EXT-X-PART:DURATION=0.33000,URI=\"seg0.0.mp4\",INDEPENDENT=YES\n")
	require.Contains(t, out, "#EXTINF:2.00000,\n")
	require.Contains(t, out, "seg0.m4s")
	require.Equal(t, 1, strings.Count(out, "#EXT-X-PRELOAD-HINT"))
	require.Contains(t, out, "#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"seg1.0.mp4\"\n")
}

func TestRenderDeltaSkip(t *testing.T) {
	var entries []SegmentEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, SegmentEntry{Segment: model.LiveSegment{Index: uint64(i), Duration: 2.0, Filename: "seg.ts"}})
	}
	canSkip := 6.0
	snap := Snapshot{
		TargetDuration: 2,
		Segments:       entries,
		ServerControl:  &model.ServerControl{CanSkipUntil: &canSkip},
	}

	out, ok := RenderDelta(snap, SkipRequest{Mode: model.SkipYes})
	require.True(t, ok)
	require.Contains(t, out, "#EXT-X-SKIP:SKIPPED-SEGMENTS=7")
	require.NotContains(t, out, "RECENTLY-REMOVED-DATERANGES")
}

func TestRenderDeltaV2NamesRemovedDateranges(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var entries []SegmentEntry
	for i := 0; i < 10; i++ {
		pdt := base.Add(time.Duration(i) * 2 * time.Second)
		entries = append(entries, SegmentEntry{Segment: model.LiveSegment{
			Index:           uint64(i),
			Duration:        2.0,
			Filename:        "seg.ts",
			ProgramDateTime: &pdt,
		}})
	}
	adEnd := base.Add(4 * time.Second) // inside the skipped window
	lateEnd := base.Add(60 * time.Second)
	canSkip := 6.0
	snap := Snapshot{
		TargetDuration: 2,
		Segments:       entries,
		ServerControl:  &model.ServerControl{CanSkipUntil: &canSkip},
		DateRanges: []model.DateRange{
			{ID: "ad-1", Start: base, End: &adEnd},
			{ID: "ad-2", Start: base, End: &lateEnd},
		},
	}

	out, ok := RenderDelta(snap, SkipRequest{Mode: model.SkipV2})
	require.True(t, ok)
	require.Contains(t, out, "RECENTLY-REMOVED-DATERANGES=\"ad-1\"")
	require.NotContains(t, out, "ad-2")

	// Rendering twice with no intervening mutation is byte-identical.
	again, ok := RenderDelta(snap, SkipRequest{Mode: model.SkipV2})
	require.True(t, ok)
	require.Equal(t, out, again)
}

func TestRenderDeltaNotConfigured(t *testing.T) {
	_, ok := RenderDelta(Snapshot{}, SkipRequest{Mode: model.SkipYes})
	require.False(t, ok)
}
