// Package eventsink streams pipeline events to an already-established
// WebSocket connection, so a host process can feed a monitoring dashboard
// without this module acting as an HTTP server. The HTTP upgrade is the
// host's concern; the sink only frames and writes messages.
package eventsink

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/pipeline"
)

// Envelope is the JSON wire form of one pipeline event.
type Envelope struct {
	Type         string  `json:"type"`
	State        string  `json:"state,omitempty"`
	SegmentIndex uint64  `json:"segment_index,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	ByteSize     int64   `json:"byte_size,omitempty"`
	Destination  string  `json:"destination,omitempty"`
	Latency      float64 `json:"latency,omitempty"`
	Message      string  `json:"message,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// Stats counts a sink's delivery activity.
type Stats struct {
	MessagesSent uint64
	WriteErrors  uint64
}

// WebSocketSink serializes pipeline events as JSON text messages onto one
// connection. Writes are serialized by an internal mutex since the
// underlying connection supports only one concurrent writer.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	log          logger.Logger
	writeTimeout time.Duration
	stats        Stats
	closed       bool
}

// NewWebSocketSink wraps an established connection. log may be nil.
func NewWebSocketSink(conn *websocket.Conn, log logger.Logger) *WebSocketSink {
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	return &WebSocketSink{
		conn:         conn,
		log:          log,
		writeTimeout: 10 * time.Second,
	}
}

// Attach subscribes the sink to every event the pipeline publishes.
func (s *WebSocketSink) Attach(p *pipeline.Pipeline) {
	p.SubscribeAll(func(e pipeline.Event) {
		if err := s.Send(e); err != nil {
			s.log.Warn("event sink write failed", logger.Any("error", err.Error()))
		}
	})
}

// Send writes one event to the connection as a JSON text message.
func (s *WebSocketSink) Send(e pipeline.Event) error {
	payload, err := json.Marshal(envelope(e))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.stats.WriteErrors++
		return err
	}
	s.stats.MessagesSent++
	return nil
}

// Stats returns a snapshot of the sink's counters.
func (s *WebSocketSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func envelope(e pipeline.Event) Envelope {
	env := Envelope{
		Type:         eventTypeName(e.Type),
		SegmentIndex: e.SegmentIndex,
		Duration:     e.Duration,
		ByteSize:     e.ByteSize,
		Destination:  e.Destination,
		Latency:      e.Latency,
		Message:      e.Message,
		Timestamp:    time.Now().Unix(),
	}
	if e.Type == pipeline.EventStateChanged {
		env.State = e.State.String()
	}
	if e.Message == "" && e.ErrorMsg != "" {
		env.Message = e.ErrorMsg
	}
	return env
}

func eventTypeName(t pipeline.EventType) string {
	switch t {
	case pipeline.EventStateChanged:
		return "state_changed"
	case pipeline.EventSegmentProduced:
		return "segment_produced"
	case pipeline.EventPushCompleted:
		return "push_completed"
	case pipeline.EventPushFailed:
		return "push_failed"
	case pipeline.EventMetadataInserted:
		return "metadata_inserted"
	case pipeline.EventMetadataInjected:
		return "metadata_injected"
	case pipeline.EventInterstitialScheduled:
		return "interstitial_scheduled"
	case pipeline.EventScte35Inserted:
		return "scte35_inserted"
	case pipeline.EventDiscontinuityInserted:
		return "discontinuity_inserted"
	case pipeline.EventRecordingSegmentSaved:
		return "recording_segment_saved"
	case pipeline.EventRecordingFinalized:
		return "recording_finalized"
	case pipeline.EventSilenceDetected:
		return "silence_detected"
	case pipeline.EventLoudnessUpdate:
		return "loudness_update"
	case pipeline.EventWarning:
		return "warning"
	case pipeline.EventComponentWarning:
		return "component_warning"
	default:
		return "unknown"
	}
}
