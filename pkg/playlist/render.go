package playlist

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aminofox/hlspack/pkg/model"
)

// minVersion picks the lowest HLS protocol version implied by the features
// a snapshot actually uses. Features this renderer does not model
// (KEYFORMAT, HDCP-LEVEL, variable definitions, content steering) are
// omitted from the table rather than guessed at.
func minVersion(s Snapshot) int {
	version := 3 // decimal segment durations
	if s.PartTargetDuration > 0 || s.PreloadHint != nil || s.ServerControl != nil {
		version = 9
	} else {
		for _, entry := range s.Segments {
			if entry.Segment.ByteRange != nil {
				if version < 4 {
					version = 4
				}
			}
			if entry.Segment.MapURI != "" {
				if version < 6 {
					version = 6
				}
			}
		}
	}
	return version
}

// Render serializes a full playlist snapshot to M3U8 text.
func Render(s Snapshot) string {
	var buf bytes.Buffer

	writeHeader(&buf, s)
	writeSegments(&buf, s.Segments, 0)
	writePartials(&buf, s.InProgressPartials)

	if !s.HasEndList && s.PreloadHint != nil {
		fmt.Fprintf(&buf, "#EXT-X-PRELOAD-HINT:TYPE=PART,URI=%q\n", s.PreloadHint.URI)
	}
	for _, rr := range s.RenditionReports {
		writeRenditionReport(&buf, rr)
	}
	if s.HasEndList {
		buf.WriteString("#EXT-X-ENDLIST\n")
	}

	return buf.String()
}

// RenderDelta renders a delta update: the first K segments are replaced by
// a single #EXT-X-SKIP tag, chosen so the retained suffix holds at least
// ServerControl.CanSkipUntil seconds of playback. It
// returns ("", false) when delta updates aren't configured or nothing can
// be skipped.
func RenderDelta(s Snapshot, req SkipRequest) (string, bool) {
	if req.Mode == model.SkipNone || s.ServerControl == nil || s.ServerControl.CanSkipUntil == nil {
		return "", false
	}
	k := skippableCount(s.Segments, *s.ServerControl.CanSkipUntil)
	if k <= 0 {
		return "", false
	}

	var buf bytes.Buffer
	writeHeader(&buf, s)

	skipTag := fmt.Sprintf("#EXT-X-SKIP:SKIPPED-SEGMENTS=%d", k)
	if req.Mode == model.SkipV2 {
		if ids := recentlyRemovedDateranges(s.DateRanges, s.Segments, k); ids != "" {
			skipTag += fmt.Sprintf(",RECENTLY-REMOVED-DATERANGES=%q", ids)
		}
	}
	buf.WriteString(skipTag)
	buf.WriteString("\n")

	writeSegments(&buf, s.Segments, k)
	writePartials(&buf, s.InProgressPartials)

	if !s.HasEndList && s.PreloadHint != nil {
		fmt.Fprintf(&buf, "#EXT-X-PRELOAD-HINT:TYPE=PART,URI=%q\n", s.PreloadHint.URI)
	}
	for _, rr := range s.RenditionReports {
		writeRenditionReport(&buf, rr)
	}
	if s.HasEndList {
		buf.WriteString("#EXT-X-ENDLIST\n")
	}

	return buf.String(), true
}

// writeHeader emits the shared leading tag block of full and delta
// playlists, through the caller-injected custom tags.
func writeHeader(buf *bytes.Buffer, s Snapshot) {
	buf.WriteString("#EXTM3U\n")
	fmt.Fprintf(buf, "#EXT-X-VERSION:%d\n", minVersion(s))
	if s.Independent {
		buf.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}
	if s.StartOffset != nil {
		fmt.Fprintf(buf, "#EXT-X-START:TIME-OFFSET=%s\n", formatDecimal(*s.StartOffset))
	}
	fmt.Fprintf(buf, "#EXT-X-TARGETDURATION:%d\n", s.TargetDuration)
	fmt.Fprintf(buf, "#EXT-X-MEDIA-SEQUENCE:%d\n", s.MediaSequence)
	if s.DiscontinuitySequence != 0 {
		fmt.Fprintf(buf, "#EXT-X-DISCONTINUITY-SEQUENCE:%d\n", s.DiscontinuitySequence)
	}
	if s.PlaylistType != "" {
		fmt.Fprintf(buf, "#EXT-X-PLAYLIST-TYPE:%s\n", s.PlaylistType)
	}
	writeServerControl(buf, s.ServerControl, s.TargetDuration, s.PartTargetDuration)
	if s.PartTargetDuration > 0 {
		fmt.Fprintf(buf, "#EXT-X-PART-INF:PART-TARGET=%.5f\n", s.PartTargetDuration)
	}
	for _, tag := range s.CustomTags {
		buf.WriteString(tag)
		buf.WriteString("\n")
	}
}

// skippableCount walks the segment list from newest to oldest, summing
// durations until the retained suffix reaches canSkipUntil seconds, and
// returns the number of segments that fall before that suffix (K).
func skippableCount(segments []SegmentEntry, canSkipUntil float64) int {
	total := len(segments)
	sum := 0.0
	retained := 0
	for i := total - 1; i >= 0; i-- {
		sum += segments[i].Segment.Duration
		retained++
		if sum >= canSkipUntil {
			break
		}
	}
	return total - retained
}

func recentlyRemovedDateranges(ranges []model.DateRange, segments []SegmentEntry, k int) string {
	if len(ranges) == 0 || k <= 0 || k > len(segments) {
		return ""
	}
	windowEnd := segments[k-1].Segment.ProgramDateTime
	if windowEnd == nil {
		return ""
	}
	var ids []string
	for _, dr := range ranges {
		if dr.End != nil && !dr.End.After(*windowEnd) {
			ids = append(ids, dr.ID)
		}
	}
	return strings.Join(ids, "\t")
}

func writeServerControl(buf *bytes.Buffer, sc *model.ServerControl, targetDuration int, partTarget float64) {
	if sc == nil {
		return
	}
	var attrs []string
	if sc.CanBlockReload {
		attrs = append(attrs, "CAN-BLOCK-RELOAD=YES")
	}
	holdBack := sc.HoldBack
	if holdBack == nil && targetDuration > 0 {
		v := 3 * float64(targetDuration)
		holdBack = &v
	}
	if holdBack != nil {
		attrs = append(attrs, fmt.Sprintf("HOLD-BACK=%s", formatDecimal(*holdBack)))
	}
	partHoldBack := sc.PartHoldBack
	if partHoldBack == nil && partTarget > 0 {
		v := 3 * partTarget
		partHoldBack = &v
	}
	if partHoldBack != nil {
		attrs = append(attrs, fmt.Sprintf("PART-HOLD-BACK=%s", formatDecimal(*partHoldBack)))
	}
	if sc.CanSkipUntil != nil {
		attrs = append(attrs, fmt.Sprintf("CAN-SKIP-UNTIL=%s", formatDecimal(*sc.CanSkipUntil)))
		if sc.CanSkipDateranges {
			attrs = append(attrs, "CAN-SKIP-DATERANGES=YES")
		}
	}
	fmt.Fprintf(buf, "#EXT-X-SERVER-CONTROL:%s\n", strings.Join(attrs, ","))
}

func writeRenditionReport(buf *bytes.Buffer, rr model.RenditionReport) {
	var attrs []string
	attrs = append(attrs, fmt.Sprintf("URI=%q", rr.URI))
	if rr.LastMediaSequence != nil {
		attrs = append(attrs, fmt.Sprintf("LAST-MSN=%d", *rr.LastMediaSequence))
	}
	if rr.LastPartIndex != nil {
		attrs = append(attrs, fmt.Sprintf("LAST-PART=%d", *rr.LastPartIndex))
	}
	fmt.Fprintf(buf, "#EXT-X-RENDITION-REPORT:%s\n", strings.Join(attrs, ","))
}

// writeSegments emits the segment block, skipping the first `skip` entries
// (used by RenderDelta) and tracking key/map/bitrate change-detection across
// the whole list regardless of how many are skipped, so that a carried-over
// key from a skipped segment still suppresses a redundant #EXT-X-KEY.
func writeSegments(buf *bytes.Buffer, entries []SegmentEntry, skip int) {
	lastKey, lastMap := "", ""
	lastBitrate := -1
	for i, entry := range entries {
		seg := entry.Segment
		keyChanged := seg.KeyURI != lastKey
		mapChanged := seg.MapURI != lastMap
		bitrateChanged := seg.Bitrate != 0 && seg.Bitrate != lastBitrate
		lastKey = seg.KeyURI
		lastMap = seg.MapURI
		if seg.Bitrate != 0 {
			lastBitrate = seg.Bitrate
		}
		if i < skip {
			continue
		}

		writePartials(buf, entry.Partials)

		if seg.KeyURI != "" && keyChanged {
			fmt.Fprintf(buf, "#EXT-X-KEY:METHOD=AES-128,URI=%q\n", seg.KeyURI)
		}
		if seg.MapURI != "" && mapChanged {
			fmt.Fprintf(buf, "#EXT-X-MAP:URI=%q\n", seg.MapURI)
		}
		if seg.ProgramDateTime != nil {
			fmt.Fprintf(buf, "#EXT-X-PROGRAM-DATE-TIME:%s\n", seg.ProgramDateTime.Format("2006-01-02T15:04:05.000Z07:00"))
		}
		if seg.Discontinuity {
			buf.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if seg.IsGap {
			buf.WriteString("#EXT-X-GAP\n")
		}
		if bitrateChanged {
			fmt.Fprintf(buf, "#EXT-X-BITRATE:%d\n", seg.Bitrate)
		}
		if seg.ByteRange != nil {
			buf.WriteString("#EXT-X-BYTERANGE:")
			buf.WriteString(formatByteRange(seg.ByteRange))
			buf.WriteString("\n")
		}
		fmt.Fprintf(buf, "#EXTINF:%.5f,\n", seg.Duration)
		fmt.Fprintf(buf, "%s\n", seg.Filename)
	}
}

func writePartials(buf *bytes.Buffer, partials []model.PartialSegment) {
	for _, p := range partials {
		var attrs []string
		attrs = append(attrs, fmt.Sprintf("DURATION=%.5f", p.Duration))
		attrs = append(attrs, fmt.Sprintf("URI=%q", p.URI))
		if p.IsIndependent {
			attrs = append(attrs, "INDEPENDENT=YES")
		}
		if p.IsGap {
			attrs = append(attrs, "GAP=YES")
		}
		if p.ByteRange != nil {
			attrs = append(attrs, fmt.Sprintf("BYTERANGE=%q", formatByteRange(p.ByteRange)))
		}
		fmt.Fprintf(buf, "#EXT-X-PART:%s\n", strings.Join(attrs, ","))
	}
}

func formatByteRange(br *model.ByteRange) string {
	if br.Offset != nil {
		return fmt.Sprintf("%d@%d", br.Length, *br.Offset)
	}
	return fmt.Sprintf("%d", br.Length)
}

func formatDecimal(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return s
}
