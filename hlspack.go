// Package hlspack is the top-level entry point: construct a Pipeline,
// Start it with a PipelineConfig, feed it segments, and render playlists.
package hlspack

import (
	"context"

	"github.com/aminofox/hlspack/pkg/blocking"
	"github.com/aminofox/hlspack/pkg/config"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/pipeline"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// Pipeline is the facade's public handle on a running (or idle) live
// packaging pipeline.
type Pipeline struct {
	inner *pipeline.Pipeline
}

// New creates an idle Pipeline. log may be nil for a default logger.
func New(log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, logger.FormatJSON)
	}
	return &Pipeline{inner: pipeline.New(log)}
}

// Start validates cfg and transitions the pipeline to running.
func (p *Pipeline) Start(cfg *config.PipelineConfig) error {
	return p.inner.Start(cfg)
}

// Stop produces a Summary and returns the pipeline to idle.
func (p *Pipeline) Stop() (pipeline.Summary, error) {
	return p.inner.Stop(pipeline.ReasonUserRequested)
}

// Fail reports a fatal component error and moves the pipeline to failed.
func (p *Pipeline) Fail(err error) {
	p.inner.Fail(err)
}

// Err returns the error that moved the pipeline to failed, or nil.
func (p *Pipeline) Err() error {
	return p.inner.Err()
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() pipeline.State {
	return p.inner.State()
}

// ProcessSegment accounts a completed segment and pushes it downstream.
func (p *Pipeline) ProcessSegment(data []byte, duration float64, filename string) {
	p.inner.ProcessSegment(data, duration, filename)
}

// ProcessPartial announces a completed LL-HLS partial segment.
func (p *Pipeline) ProcessPartial(duration float64, isIndependent bool) {
	p.inner.ProcessPartial(duration, isIndependent)
}

// InsertDiscontinuity flags the next processed segment as discontinuous.
func (p *Pipeline) InsertDiscontinuity() {
	p.inner.InsertDiscontinuity()
}

// AddDestination registers a push destination.
func (p *Pipeline) AddDestination(id string, pusher pipeline.Pusher) {
	p.inner.AddDestination(id, pusher)
}

// RemoveDestination unregisters a push destination.
func (p *Pipeline) RemoveDestination(id string) {
	p.inner.RemoveDestination(id)
}

// SetRecordingSink registers where finalize_recording persists to.
func (p *Pipeline) SetRecordingSink(sink pipeline.RecordingSink) {
	p.inner.SetRecordingSink(sink)
}

// InjectMetadata schedules a custom playlist tag for the next render.
func (p *Pipeline) InjectMetadata(meta model.PlaylistMetadata) {
	p.inner.InjectMetadata(meta)
}

// InsertInterstitial schedules an ad/interstitial break.
func (p *Pipeline) InsertInterstitial(i model.Interstitial) {
	p.inner.InsertInterstitial(i)
}

// InsertScte35 surfaces an SCTE-35 cue.
func (p *Pipeline) InsertScte35(marker model.Scte35Marker) {
	p.inner.InsertScte35(marker)
}

// RenderPlaylist renders the current media playlist.
func (p *Pipeline) RenderPlaylist() string {
	return p.inner.RenderPlaylist()
}

// RenderDeltaPlaylist renders a delta update when LL-HLS delta updates are
// enabled.
func (p *Pipeline) RenderDeltaPlaylist(req playlist.SkipRequest) (string, bool) {
	return p.inner.RenderDeltaPlaylist(req)
}

// AwaitBlockingPlaylist parks until the requested (msn, part) is announced,
// the timeout elapses, or the stream ends.
func (p *Pipeline) AwaitBlockingPlaylist(ctx context.Context, req blocking.Request) (string, error) {
	return p.inner.AwaitBlockingPlaylist(ctx, req)
}

// FinalizeRecording closes out the recording sink and returns its VOD
// playlist.
func (p *Pipeline) FinalizeRecording(ctx context.Context) (string, error) {
	return p.inner.FinalizeRecording(ctx)
}

// Stats returns a snapshot of the pipeline's current counters.
func (p *Pipeline) Stats() pipeline.Statistics {
	return p.inner.Stats()
}

// Subscribe registers cb for events of type t.
func (p *Pipeline) Subscribe(t pipeline.EventType, cb pipeline.Callback) {
	p.inner.Subscribe(t, cb)
}

// SubscribeAll registers cb for every event type.
func (p *Pipeline) SubscribeAll(cb pipeline.Callback) {
	p.inner.SubscribeAll(cb)
}

// Version reports the module's semantic version.
func Version() string {
	return "1.0.0"
}
