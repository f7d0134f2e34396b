package playlist

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// RenderMaster emits a master playlist referencing one #EXT-X-STREAM-INF
// line per rendition, sorted by descending bandwidth.
func RenderMaster(renditions []Rendition) string {
	sorted := make([]Rendition, len(renditions))
	copy(sorted, renditions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})

	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")
	buf.WriteString("#EXT-X-VERSION:3\n")

	for _, r := range sorted {
		var attrs []string
		attrs = append(attrs, fmt.Sprintf("BANDWIDTH=%d", r.Bandwidth))
		if r.AverageBandwidth > 0 {
			attrs = append(attrs, fmt.Sprintf("AVERAGE-BANDWIDTH=%d", r.AverageBandwidth))
		}
		if r.Codecs != "" {
			attrs = append(attrs, fmt.Sprintf("CODECS=%q", r.Codecs))
		}
		if r.Resolution != "" {
			attrs = append(attrs, fmt.Sprintf("RESOLUTION=%s", r.Resolution))
		}
		if r.FrameRate > 0 {
			attrs = append(attrs, fmt.Sprintf("FRAME-RATE=%.3f", r.FrameRate))
		}
		fmt.Fprintf(&buf, "#EXT-X-STREAM-INF:%s\n", strings.Join(attrs, ","))
		fmt.Fprintf(&buf, "%s\n", r.URI)
	}

	return buf.String()
}
