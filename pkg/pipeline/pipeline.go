package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aminofox/hlspack/pkg/blocking"
	"github.com/aminofox/hlspack/pkg/config"
	"github.com/aminofox/hlspack/pkg/encryption"
	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/liveplaylist"
	"github.com/aminofox/hlspack/pkg/llhls"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/partial"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// Pipeline is the supervised state machine wiring a live playlist, an
// optional LL-HLS manager, a blocking-reload coordinator, and zero or more
// push destinations. Every exported method serializes through a single
// goroutine's request channel, the same single-owner-actor idiom used by
// llhls.Manager.
type Pipeline struct {
	log   logger.Logger
	chReq chan func(*pipelineState)
}

type pipelineState struct {
	cfg     *config.PipelineConfig
	state   State
	lastErr error
	log     logger.Logger
	bus     *eventBus
	stats   statisticsAccumulator

	window   liveplaylist.Playlist
	llMgr    *llhls.Manager
	blocking *blocking.Coordinator
	keys     *encryption.KeyManager

	destinations       map[string]destinationEntry
	recording          RecordingSink
	recordingFilenames []string

	pendingDiscontinuity bool
	pendingMetadata      []model.PlaylistMetadata
}

// New creates a Pipeline in the idle state. log may be nil, in which case a
// no-op-at-error-level logger is used, matching the rest of this module's
// constructors.
func New(log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	p := &Pipeline{log: log, chReq: make(chan func(*pipelineState))}
	st := &pipelineState{
		state:        StateIdle,
		log:          log,
		bus:          newEventBus(),
		destinations: make(map[string]destinationEntry),
	}
	go p.run(st)
	return p
}

func (p *Pipeline) run(st *pipelineState) {
	for req := range p.chReq {
		req(st)
	}
}

func (p *Pipeline) do(f func(*pipelineState)) {
	done := make(chan struct{})
	p.chReq <- func(st *pipelineState) { f(st); close(done) }
	<-done
}

func (p *Pipeline) transition(st *pipelineState, to State) {
	if !canTransition(st.state, to) {
		p.log.Error("invalid pipeline state transition",
			logger.String("from", st.state.String()),
			logger.String("to", to.String()),
		)
		return
	}
	st.state = to
	st.log.Info("pipeline state changed", logger.String("state", to.String()))
	st.bus.publish(Event{Type: EventStateChanged, State: to})
}

// Start validates cfg, wires the configured components, and transitions
// idle -> starting -> running. Returns InvalidConfiguration without
// changing state if cfg fails validation, or AlreadyRunning if the
// pipeline is not idle.
func (p *Pipeline) Start(cfg *config.PipelineConfig) error {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var startErr error
	p.do(func(st *pipelineState) {
		// A failed pipeline is reset to idle by the next Start attempt.
		if st.state == StateFailed {
			p.transition(st, StateIdle)
			st.lastErr = nil
		}
		if st.state != StateIdle {
			startErr = errors.NewAlreadyRunningError()
			return
		}
		p.transition(st, StateStarting)

		st.cfg = cfg
		st.stats = statisticsAccumulator{startedAt: time.Now()}
		st.recordingFilenames = nil
		st.pendingDiscontinuity = false
		st.pendingMetadata = nil

		switch {
		case cfg.Playlist.Type == config.PlaylistEvent:
			st.window = liveplaylist.NewEvent()
		case cfg.Playlist.EnableDVR:
			st.window = liveplaylist.NewDVR(cfg.Playlist.DVRWindowDuration)
		default:
			st.window = liveplaylist.NewSlidingWindow(cfg.Playlist.WindowSize)
		}

		st.llMgr = nil
		st.blocking = nil
		if cfg.LowLatency != nil && lowLatencyEnabled(cfg.LowLatency) {
			partHoldBack := cfg.LowLatency.PartTargetDuration * 3
			st.llMgr = llhls.New(llhls.Config{
				MaxSegments: cfg.Playlist.WindowSize,
				PartialConfig: partial.Config{
					PartTargetDuration:  cfg.LowLatency.PartTargetDuration,
					MaxRetainedSegments: cfg.Playlist.WindowSize,
					URITemplate:         "seg{segment}.{part}.mp4",
					Extension:           "mp4",
				},
				ServerControl: model.ServerControl{
					CanBlockReload: cfg.LowLatency.EnableBlockingReload,
					PartHoldBack:   &partHoldBack,
				},
			})
			if cfg.LowLatency.EnableBlockingReload {
				mgr := st.llMgr
				coord := blocking.New(func(blocking.Request) string {
					return mgr.RenderPlaylist()
				}, 5*time.Second)
				mgr.OnNotify(func(n llhls.Notification) {
					coord.Notify(n.SegmentIndex, n.PartialIndex, n.SegmentComplete)
				})
				st.blocking = coord
			}
		}

		st.keys = nil
		if cfg.Encryption.Enabled {
			st.keys = encryption.NewKeyManager(cfg.Encryption.KeyRotationPeriod)
			if _, err := st.keys.GenerateKey("key0", "keys/key0.bin"); err != nil {
				st.keys = nil
				st.bus.publish(Event{Type: EventWarning, Message: "segment encryption disabled: " + err.Error()})
			}
		}

		if cfg.Recording.Enabled && st.recording == nil {
			st.bus.publish(Event{Type: EventComponentWarning, Message: "recording enabled but no recording components registered"})
		}
		if cfg.LowLatency != nil && st.llMgr == nil {
			st.bus.publish(Event{Type: EventComponentWarning, Message: "low-latency configured but no LL-HLS components enabled"})
		}
		if len(cfg.Destinations) > 0 && len(st.destinations) == 0 {
			st.bus.publish(Event{Type: EventComponentWarning, Message: "push destinations configured but no push components registered"})
		}

		p.transition(st, StateRunning)
	})
	return startErr
}

// Stop produces a Summary and transitions running -> stopping -> stopped ->
// idle (so the Pipeline can be reused). Returns NotRunning if the pipeline
// isn't running.
func (p *Pipeline) Stop(reason StopReason) (Summary, error) {
	var summary Summary
	var stopErr error
	p.do(func(st *pipelineState) {
		if st.state != StateRunning {
			stopErr = errors.NewNotRunningError()
			return
		}
		p.transition(st, StateStopping)

		summary = Summary{
			Duration:         time.Since(st.stats.startedAt).Seconds(),
			SegmentsProduced: st.stats.segmentsProduced,
			TotalBytes:       st.stats.totalBytes,
			StartDate:        st.stats.startedAt.Unix(),
			StopDate:         time.Now().Unix(),
			Reason:           reason,
		}

		if st.blocking != nil {
			st.blocking.NotifyStreamEnded()
		}
		if st.llMgr != nil {
			st.llMgr.EndStream()
			st.llMgr.Close()
		}

		// Stopping drops every owned component so the next Start begins
		// from a clean slate.
		st.window = nil
		st.llMgr = nil
		st.blocking = nil
		st.keys = nil
		st.recording = nil
		st.destinations = make(map[string]destinationEntry)

		p.transition(st, StateStopped)
		p.transition(st, StateIdle)
	})
	return summary, stopErr
}

// Fail reports a fatal component error: the pipeline transitions to failed,
// parked blocking requests are cancelled, and owned components are dropped.
// A no-op when the pipeline is idle or already failed/stopped. The failure
// is not fatal to the process; the next Start resets the pipeline to idle.
func (p *Pipeline) Fail(err error) {
	p.do(func(st *pipelineState) {
		switch st.state {
		case StateStarting, StateRunning, StateStopping:
		default:
			return
		}
		st.lastErr = err
		p.log.Error("pipeline failed", logger.Err(err))

		if st.blocking != nil {
			st.blocking.NotifyStreamEnded()
		}
		if st.llMgr != nil {
			st.llMgr.EndStream()
			st.llMgr.Close()
		}
		st.window = nil
		st.llMgr = nil
		st.blocking = nil
		st.keys = nil
		st.recording = nil
		st.destinations = make(map[string]destinationEntry)

		p.transition(st, StateFailed)
	})
}

// Err returns the error that moved the pipeline to failed, or nil.
func (p *Pipeline) Err() error {
	var out error
	p.do(func(st *pipelineState) { out = st.lastErr })
	return out
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	var out State
	p.do(func(st *pipelineState) { out = st.state })
	return out
}

// lowLatencyEnabled reports whether the low-latency configuration actually
// enables any LL-HLS component; a section with every feature off provisions
// nothing and draws a compatibility warning instead.
func lowLatencyEnabled(ll *config.LowLatencyConfig) bool {
	return ll.EnablePreloadHints || ll.EnableDeltaUpdates || ll.EnableBlockingReload
}

func (p *Pipeline) whileRunning(f func(*pipelineState)) {
	p.do(func(st *pipelineState) {
		if st.state != StateRunning {
			return
		}
		f(st)
	})
}

// ProcessSegment accounts a completed segment's statistics, pushes it to
// every registered destination, and emits SegmentProduced. A no-op unless
// running.
func (p *Pipeline) ProcessSegment(data []byte, duration float64, filename string) {
	p.whileRunning(func(st *pipelineState) {
		index := uint64(st.stats.segmentsProduced)
		discontinuity := st.pendingDiscontinuity
		st.pendingDiscontinuity = false

		// The packager is the PDT authority: segments are stamped here when
		// enabled, and everything downstream (playlist, recorder) copies
		// that stamp rather than inventing its own.
		var programDateTime *time.Time
		if st.cfg.Metadata.EnableProgramDateTime {
			now := time.Now()
			programDateTime = &now
		}

		keyURI := ""
		if st.keys != nil {
			data, keyURI = p.encryptSegment(st, data, index)
		}

		st.stats.recordSegment(duration, int64(len(data)))
		if st.llMgr != nil {
			// The LL-HLS manager owns its own window: it folds the
			// accumulated partials into the segment and notifies blocked
			// reload requests.
			if _, err := st.llMgr.CompleteSegment(duration, filename, discontinuity, programDateTime); err != nil {
				st.bus.publish(Event{Type: EventWarning, Message: "segment rejected: " + err.Error()})
			}
		} else if st.window != nil {
			st.window.AddSegment(model.LiveSegment{
				Index:           index,
				Duration:        duration,
				Filename:        filename,
				Discontinuity:   discontinuity,
				ProgramDateTime: programDateTime,
				KeyURI:          keyURI,
			})
		}
		if discontinuity {
			st.stats.discontinuities++
			st.bus.publish(Event{Type: EventDiscontinuityInserted})
		}

		st.bus.publish(Event{Type: EventSegmentProduced, SegmentIndex: index, Duration: duration, ByteSize: int64(len(data))})

		if st.recording != nil {
			st.stats.recordedSegments++
			st.recordingFilenames = append(st.recordingFilenames, filename)
			if err := st.recording.WriteSegment(context.Background(), filename, data, duration, programDateTime); err != nil {
				st.bus.publish(Event{Type: EventWarning, Message: "recording write failed: " + err.Error()})
			} else {
				st.bus.publish(Event{Type: EventRecordingSegmentSaved, Filename: filename})
			}
		}

		for id, dest := range st.destinations {
			go func(id string, dest destinationEntry) {
				start := time.Now()
				if err := dest.pusher.Push(context.Background(), filename, data); err != nil {
					p.do(func(st *pipelineState) {
						st.stats.pushErrors++
						st.bus.publish(Event{Type: EventPushFailed, Destination: id, ErrorMsg: err.Error()})
					})
					return
				}
				latency := time.Since(start).Seconds()
				p.do(func(st *pipelineState) {
					st.stats.bytesSent += int64(len(data))
					st.bus.publish(Event{Type: EventPushCompleted, Destination: id, SegmentIndex: index, Latency: latency})
				})
			}(id, dest)
		}
	})
}

// encryptSegment encrypts a segment with the current key, rotating first
// when the configured rotation period is due. The IV is derived from the
// segment's media sequence number. On any failure the segment is passed
// through in the clear with a Warning event rather than lost.
func (p *Pipeline) encryptSegment(st *pipelineState, data []byte, index uint64) ([]byte, string) {
	keyID := fmt.Sprintf("key%d", index)
	if _, err := st.keys.RotateIfDue(keyID, "keys/"+keyID+".bin"); err != nil {
		st.bus.publish(Event{Type: EventWarning, Message: "key rotation failed: " + err.Error()})
	}
	key, err := st.keys.CurrentKey()
	if err != nil {
		st.bus.publish(Event{Type: EventWarning, Message: "segment not encrypted: " + err.Error()})
		return data, ""
	}

	iv := encryption.DeriveIVFromMediaSequence(index)
	var out []byte
	if st.cfg.Encryption.Method == config.EncryptionSampleAES {
		out, err = encryption.EncryptSample(data, key.Key, iv)
	} else {
		out, err = encryption.EncryptSegment(data, key.Key, iv)
	}
	if err != nil {
		st.bus.publish(Event{Type: EventWarning, Message: "segment not encrypted: " + err.Error()})
		return data, ""
	}
	return out, key.URI
}

// ProcessPartial accounts a completed partial segment and announces it to
// the LL-HLS manager, waking any blocking reload request it satisfies. A
// no-op unless running with LL-HLS enabled.
func (p *Pipeline) ProcessPartial(duration float64, isIndependent bool) {
	p.whileRunning(func(st *pipelineState) {
		if st.llMgr == nil {
			return
		}
		if _, err := st.llMgr.AddPartial(duration, "", isIndependent, false, nil); err != nil {
			st.bus.publish(Event{Type: EventWarning, Message: "partial rejected: " + err.Error()})
			return
		}
		st.stats.partialsProduced++
	})
}

// InsertDiscontinuity flags the next segment ProcessSegment emits as
// starting a discontinuity.
func (p *Pipeline) InsertDiscontinuity() {
	p.whileRunning(func(st *pipelineState) { st.pendingDiscontinuity = true })
}

// AddDestination registers a push destination. Idempotent: re-registering
// the same id replaces it.
func (p *Pipeline) AddDestination(id string, pusher Pusher) {
	p.whileRunning(func(st *pipelineState) {
		st.destinations[id] = destinationEntry{id: id, pusher: pusher}
		st.stats.activeDestinations = len(st.destinations)
	})
}

// RemoveDestination unregisters a push destination. Idempotent.
func (p *Pipeline) RemoveDestination(id string) {
	p.whileRunning(func(st *pipelineState) {
		delete(st.destinations, id)
		st.stats.activeDestinations = len(st.destinations)
	})
}

// SetRecordingSink registers where finalize_recording persists to.
func (p *Pipeline) SetRecordingSink(sink RecordingSink) {
	p.whileRunning(func(st *pipelineState) {
		st.recording = sink
		st.stats.recordingActive = sink != nil
	})
}

// InjectMetadata schedules a custom playlist tag for the next render.
func (p *Pipeline) InjectMetadata(meta model.PlaylistMetadata) {
	p.whileRunning(func(st *pipelineState) {
		st.pendingMetadata = append(st.pendingMetadata, meta)
		st.bus.publish(Event{Type: EventMetadataInserted, MetadataType: meta.Type})
		st.bus.publish(Event{Type: EventMetadataInjected})
	})
}

// InsertInterstitial schedules an ad/interstitial break.
func (p *Pipeline) InsertInterstitial(i model.Interstitial) {
	p.whileRunning(func(st *pipelineState) {
		st.bus.publish(Event{Type: EventInterstitialScheduled, InterstitialID: i.ID})
	})
}

// InsertScte35 surfaces an SCTE-35 cue as a pipeline event.
func (p *Pipeline) InsertScte35(marker model.Scte35Marker) {
	p.whileRunning(func(st *pipelineState) {
		st.bus.publish(Event{Type: EventScte35Inserted})
	})
}

// ReportSilence records a detected silence gap.
func (p *Pipeline) ReportSilence(duration float64) {
	p.whileRunning(func(st *pipelineState) {
		st.bus.publish(Event{Type: EventSilenceDetected, SilenceDuration: duration})
	})
}

// ReportLoudness records a loudness measurement.
func (p *Pipeline) ReportLoudness(lufs float64) {
	p.whileRunning(func(st *pipelineState) {
		v := lufs
		st.stats.loudnessLUFS = &v
		st.bus.publish(Event{Type: EventLoudnessUpdate, LUFS: lufs})
	})
}

// RenderPlaylist renders the current media playlist, or "" if not running.
func (p *Pipeline) RenderPlaylist() string {
	var out string
	p.whileRunning(func(st *pipelineState) {
		if len(st.pendingMetadata) > 0 {
			tags := make([]string, 0, len(st.pendingMetadata))
			for _, m := range st.pendingMetadata {
				tags = append(tags, "#EXT-X-"+m.Type+":"+m.Value)
			}
			if st.llMgr != nil {
				st.llMgr.SetCustomTags(tags)
			} else if st.window != nil {
				st.window.UpdateMetadata(liveplaylist.Metadata{CustomTags: tags})
			}
		}
		if st.llMgr != nil {
			out = st.llMgr.RenderPlaylist()
			return
		}
		out = st.window.Render()
	})
	return out
}

// RenderDeltaPlaylist renders a delta update when the pipeline is running
// LL-HLS with delta updates enabled; ok is false otherwise.
func (p *Pipeline) RenderDeltaPlaylist(req playlist.SkipRequest) (out string, ok bool) {
	p.whileRunning(func(st *pipelineState) {
		if st.llMgr == nil || st.cfg.LowLatency == nil || !st.cfg.LowLatency.EnableDeltaUpdates {
			return
		}
		out, ok = st.llMgr.RenderDeltaPlaylist(req)
	})
	return out, ok
}

// AwaitBlockingPlaylist parks until the requested (msn, part) is announced,
// the timeout elapses, or the stream ends. Returns ComponentNotConfigured
// if blocking reload was not enabled at Start.
func (p *Pipeline) AwaitBlockingPlaylist(ctx context.Context, req blocking.Request) (string, error) {
	var coord *blocking.Coordinator
	p.do(func(st *pipelineState) {
		if st.state == StateRunning {
			coord = st.blocking
		}
	})
	if coord == nil {
		return "", errors.NewComponentNotConfiguredError("blocking reload")
	}
	return coord.AwaitPlaylist(ctx, req)
}

// FinalizeRecording closes out the recording sink and returns its VOD
// playlist. Returns ComponentNotConfigured if no recording sink is set.
func (p *Pipeline) FinalizeRecording(ctx context.Context) (string, error) {
	var sink RecordingSink
	p.do(func(st *pipelineState) {
		if st.state == StateRunning {
			sink = st.recording
		}
	})
	if sink == nil {
		return "", errors.NewComponentNotConfiguredError("recording")
	}
	out, err := sink.Finalize(ctx)
	if err != nil {
		return "", err
	}
	p.do(func(st *pipelineState) {
		st.stats.recordingActive = false
		st.bus.publish(Event{Type: EventRecordingFinalized})
	})
	return out, nil
}

// Stats returns a snapshot of the pipeline's current counters.
func (p *Pipeline) Stats() Statistics {
	var out Statistics
	p.do(func(st *pipelineState) { out = st.stats.snapshot() })
	return out
}

// Subscribe registers cb for events of type t.
func (p *Pipeline) Subscribe(t EventType, cb Callback) {
	p.do(func(st *pipelineState) { st.bus.subscribe(t, cb) })
}

// SubscribeAll registers cb for every event type.
func (p *Pipeline) SubscribeAll(cb Callback) {
	p.do(func(st *pipelineState) { st.bus.subscribeAll(cb) })
}
