package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aminofox/hlspack/pkg/blocking"
	"github.com/aminofox/hlspack/pkg/config"
)

type fakePusher struct {
	pushed chan string
	fail   bool
}

func (f *fakePusher) Push(ctx context.Context, filename string, data []byte) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.pushed <- filename
	return nil
}

func (f *fakePusher) PushPlaylist(ctx context.Context, data []byte) error { return nil }

func TestStartThenStopReturnsToIdle(t *testing.T) {
	p := New(nil)
	require.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Start(config.DefaultPipelineConfig()))
	require.Equal(t, StateRunning, p.State())

	_, err := p.Stop(ReasonUserRequested)
	require.NoError(t, err)
	require.Equal(t, StateIdle, p.State())
}

func TestProcessSegmentPushesToDestinations(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Start(config.DefaultPipelineConfig()))
	defer p.Stop(ReasonUserRequested)

	fp := &fakePusher{pushed: make(chan string, 1)}
	p.AddDestination("dest-1", fp)

	p.ProcessSegment([]byte("abcd"), 6.0, "seg0.mp4")

	select {
	case name := <-fp.pushed:
		require.Equal(t, "seg0.mp4", name)
	case <-time.After(time.Second):
		t.Fatal("destination never received the segment")
	}

	stats := p.Stats()
	require.Equal(t, 1, stats.SegmentsProduced)
	require.EqualValues(t, 4, stats.TotalBytes)
}

func TestInsertDiscontinuityFlagsNextSegment(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Start(config.DefaultPipelineConfig()))
	defer p.Stop(ReasonUserRequested)

	p.InsertDiscontinuity()
	p.ProcessSegment([]byte("x"), 6.0, "seg0.mp4")

	require.Contains(t, p.RenderPlaylist(), "#EXT-X-DISCONTINUITY")
	require.Equal(t, 1, p.Stats().Discontinuities)
}

func TestRuntimeOperationsAreNoOpsWhenNotRunning(t *testing.T) {
	p := New(nil)
	p.ProcessSegment([]byte("x"), 6.0, "seg0.mp4")
	require.Equal(t, 0, p.Stats().SegmentsProduced)
	require.Empty(t, p.RenderPlaylist())
}

func TestProcessSegmentEncryptsWhenConfigured(t *testing.T) {
	p := New(nil)
	cfg := config.DefaultPipelineConfig()
	cfg.Encryption = config.EncryptionConfig{Enabled: true, Method: config.EncryptionAES128, KeyRotationPeriod: 0}
	require.NoError(t, p.Start(cfg))
	defer p.Stop(ReasonUserRequested)

	p.ProcessSegment([]byte("abcd"), 6.0, "seg0.mp4")

	out := p.RenderPlaylist()
	require.Contains(t, out, `#EXT-X-KEY:METHOD=AES-128,URI="keys/key0.bin"`)
	// AES-128 pads the 4 input bytes up to one full block.
	require.EqualValues(t, 16, p.Stats().TotalBytes)
}

func TestLowLatencyPipelineRendersPartialsAndSegments(t *testing.T) {
	p := New(nil)
	cfg := config.DefaultPipelineConfig()
	cfg.Segmentation.SegmentDuration = 2.0
	cfg.LowLatency = &config.LowLatencyConfig{
		PartTargetDuration:   0.5,
		EnablePreloadHints:   true,
		EnableBlockingReload: true,
	}
	require.NoError(t, p.Start(cfg))
	defer p.Stop(ReasonUserRequested)

	p.ProcessPartial(0.5, true)
	p.ProcessPartial(0.5, false)
	p.ProcessSegment([]byte("abcd"), 2.0, "seg0.mp4")

	out := p.RenderPlaylist()
	require.Equal(t, 2, strings.Count(out, "#EXT-X-PART:"))
	require.Contains(t, out, "seg0.mp4")
	require.Contains(t, out, "#EXT-X-PRELOAD-HINT:TYPE=PART")
	require.Equal(t, 2, p.Stats().PartialsProduced)

	// A blocking reload for already-published content resolves immediately.
	text, err := p.AwaitBlockingPlaylist(context.Background(), blocking.Request{MediaSequence: 0})
	require.NoError(t, err)
	require.Contains(t, text, "#EXTM3U")
}

func TestAwaitBlockingPlaylistFailsWithoutLowLatencyConfigured(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Start(config.DefaultPipelineConfig()))
	defer p.Stop(ReasonUserRequested)

	_, err := p.AwaitBlockingPlaylist(context.Background(), blocking.Request{MediaSequence: 0})
	require.Error(t, err)
}

func TestFailTransitionsRunningToFailed(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Start(config.DefaultPipelineConfig()))

	changes := make(chan State, 8)
	p.Subscribe(EventStateChanged, func(e Event) { changes <- e.State })

	cause := context.DeadlineExceeded
	p.Fail(cause)
	require.Equal(t, StateFailed, p.State())
	require.Equal(t, cause, p.Err())
	require.Equal(t, StateFailed, <-changes)

	// Runtime operations are no-ops while failed.
	p.ProcessSegment([]byte("x"), 6.0, "seg0.mp4")
	require.Equal(t, 0, p.Stats().SegmentsProduced)

	_, err := p.Stop(ReasonError)
	require.Error(t, err)

	// The next Start resets a failed pipeline and clears the error.
	require.NoError(t, p.Start(config.DefaultPipelineConfig()))
	require.Equal(t, StateRunning, p.State())
	require.NoError(t, p.Err())
	_, err = p.Stop(ReasonUserRequested)
	require.NoError(t, err)
}

func TestFailIsANoOpWhileIdle(t *testing.T) {
	p := New(nil)
	p.Fail(context.DeadlineExceeded)
	require.Equal(t, StateIdle, p.State())
	require.NoError(t, p.Err())
}

func TestStartEmitsComponentCompatibilityWarnings(t *testing.T) {
	p := New(nil)

	warnings := make(chan string, 8)
	p.Subscribe(EventComponentWarning, func(e Event) { warnings <- e.Message })

	cfg := config.DefaultPipelineConfig()
	cfg.Recording = config.RecordingConfig{Enabled: true, Directory: "/tmp/rec"}
	cfg.Destinations = []config.Destination{config.HTTPDestination{URL: "http://origin.example/live"}}
	// Low latency configured, but with every LL-HLS feature disabled no
	// component is provisioned.
	cfg.LowLatency = &config.LowLatencyConfig{PartTargetDuration: 0.5}

	require.NoError(t, p.Start(cfg))
	defer p.Stop(ReasonUserRequested)

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-warnings:
			got[msg] = true
		case <-time.After(time.Second):
			t.Fatalf("expected 3 component warnings, got %d: %v", len(got), got)
		}
	}
	require.Contains(t, got, "recording enabled but no recording components registered")
	require.Contains(t, got, "low-latency configured but no LL-HLS components enabled")
	require.Contains(t, got, "push destinations configured but no push components registered")
}

func TestSubscribeReceivesStateChanged(t *testing.T) {
	p := New(nil)

	changes := make(chan State, 8)
	p.Subscribe(EventStateChanged, func(e Event) { changes <- e.State })

	require.NoError(t, p.Start(config.DefaultPipelineConfig()))
	require.Equal(t, StateStarting, <-changes)
	require.Equal(t, StateRunning, <-changes)

	_, err := p.Stop(ReasonUserRequested)
	require.NoError(t, err)
	require.Equal(t, StateStopping, <-changes)
	require.Equal(t, StateStopped, <-changes)
	require.Equal(t, StateIdle, <-changes)
}
