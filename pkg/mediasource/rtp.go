// Package mediasource adapts an RTP packet stream into the encoded-frame
// stream the segmenter consumes. It covers the "media source" collaborator
// boundary for hosts that receive already-encoded H.264 or AAC over RTP.
package mediasource

import (
	"sync"

	"github.com/pion/rtp"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
)

// FormatDescription describes the media a source produces.
type FormatDescription struct {
	Codec      model.CodecTag
	Width      int
	Height     int
	SampleRate int
	Channels   int
}

// Config tunes an RTPSource.
type Config struct {
	Codec     model.CodecTag
	ClockRate uint32
	Format    FormatDescription
	// BufferSize bounds the frame channel; IngestPacket drops frames (and
	// counts them) once the consumer falls this far behind.
	BufferSize int
}

// Stats counts an RTPSource's packet and frame activity.
type Stats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	FramesProduced  uint64
	FramesDropped   uint64
}

// RTPSource depacketizes RTP payloads into EncodedFrames. One RTPSource
// handles one track; create one per codec.
type RTPSource struct {
	mu      sync.Mutex
	cfg     Config
	log     logger.Logger
	frames  chan model.EncodedFrame
	stats   Stats
	started bool
	stopped bool

	lastTimestamp uint32
	haveTimestamp bool
}

// NewRTPSource creates an RTP-backed media source. log may be nil.
func NewRTPSource(cfg Config, log logger.Logger) *RTPSource {
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.ClockRate == 0 {
		if cfg.Codec == model.CodecAAC {
			cfg.ClockRate = 48000
		} else {
			cfg.ClockRate = 90000
		}
	}
	return &RTPSource{
		cfg:    cfg,
		log:    log,
		frames: make(chan model.EncodedFrame, cfg.BufferSize),
	}
}

// Start makes the source accept packets.
func (s *RTPSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.NewStreamAlreadyEndedError()
	}
	s.started = true
	return nil
}

// Stop closes the frame stream. Subsequent IngestPacket calls fail.
func (s *RTPSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.frames)
}

// Frames returns the stream of depacketized frames. The channel closes on
// Stop.
func (s *RTPSource) Frames() <-chan model.EncodedFrame {
	return s.frames
}

// FormatDescription reports the configured media format.
func (s *RTPSource) FormatDescription() FormatDescription {
	return s.cfg.Format
}

// Stats returns a snapshot of the source's counters.
func (s *RTPSource) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// IngestPacket depacketizes one RTP packet into a frame on the stream. The
// frame's duration is derived from the RTP timestamp delta to the previous
// packet, so the first frame of a stream carries zero duration.
func (s *RTPSource) IngestPacket(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.NewStreamAlreadyEndedError()
	}
	if !s.started || len(pkt.Payload) == 0 {
		return nil
	}

	s.stats.PacketsReceived++
	s.stats.BytesReceived += uint64(len(pkt.Payload))

	var durationTicks uint32
	if s.haveTimestamp {
		durationTicks = pkt.Timestamp - s.lastTimestamp
	}
	s.lastTimestamp = pkt.Timestamp
	s.haveTimestamp = true

	keyframe := s.isKeyframe(pkt.Payload)
	frame := model.EncodedFrame{
		Payload:       append([]byte(nil), pkt.Payload...),
		Codec:         s.cfg.Codec,
		PTS:           model.Rational{Num: int64(pkt.Timestamp), Denom: int64(s.cfg.ClockRate)},
		Duration:      model.Rational{Num: int64(durationTicks), Denom: int64(s.cfg.ClockRate)},
		IsKeyframe:    keyframe,
		IsIndependent: keyframe,
	}

	select {
	case s.frames <- frame:
		s.stats.FramesProduced++
	default:
		s.stats.FramesDropped++
		s.log.Warn("frame dropped, consumer too slow",
			logger.Any("codec", string(s.cfg.Codec)),
			logger.Any("dropped_total", s.stats.FramesDropped),
		)
	}
	return nil
}

// isKeyframe inspects the payload's leading NAL unit for H.264/HEVC. Audio
// frames are always independently decodable.
func (s *RTPSource) isKeyframe(payload []byte) bool {
	switch s.cfg.Codec {
	case model.CodecH264:
		return h264PayloadHasIDR(payload)
	case model.CodecHEVC:
		return hevcPayloadHasIRAP(payload)
	default:
		return true
	}
}

// h264PayloadHasIDR reports whether an RTP H.264 payload starts or carries
// an IDR slice, handling single NAL units, STAP-A aggregates, and FU-A
// fragments.
func h264PayloadHasIDR(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	nalType := payload[0] & 0x1F
	switch {
	case nalType == 5:
		return true
	case nalType == 24: // STAP-A: scan aggregated NAL units
		i := 1
		for i+2 < len(payload) {
			size := int(payload[i])<<8 | int(payload[i+1])
			i += 2
			if i >= len(payload) || size == 0 {
				break
			}
			if payload[i]&0x1F == 5 {
				return true
			}
			i += size
		}
		return false
	case nalType == 28 && len(payload) >= 2: // FU-A: only the start fragment counts
		startBit := payload[1]&0x80 != 0
		return startBit && payload[1]&0x1F == 5
	default:
		return false
	}
}

// hevcPayloadHasIRAP reports whether an HEVC payload's leading NAL unit is
// an IRAP picture (types 16-23).
func hevcPayloadHasIRAP(payload []byte) bool {
	if len(payload) < 2 {
		return false
	}
	nalType := (payload[0] >> 1) & 0x3F
	return nalType >= 16 && nalType <= 23
}
