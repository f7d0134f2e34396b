package blocking

import (
	"strconv"

	"github.com/aminofox/hlspack/pkg/model"
)

// ParseRequest parses the _HLS_msn/_HLS_part/_HLS_skip query parameters of
// an LL-HLS playlist reload request. ok is false when msn is missing (not a
// blocking request at all) or either value fails to parse as an unsigned
// integer.
func ParseRequest(msn, part, skip string) (Request, bool) {
	if msn == "" {
		return Request{}, false
	}

	mediaSequence, err := strconv.ParseUint(msn, 10, 64)
	if err != nil {
		return Request{}, false
	}

	req := Request{MediaSequence: mediaSequence, Skip: parseSkip(skip)}
	if part != "" {
		p, err := strconv.Atoi(part)
		if err != nil || p < 0 {
			return Request{}, false
		}
		req.PartIndex = &p
	}
	return req, true
}

func parseSkip(skip string) model.SkipMode {
	switch skip {
	case "YES":
		return model.SkipYes
	case "v2":
		return model.SkipV2
	default:
		return model.SkipNone
	}
}
