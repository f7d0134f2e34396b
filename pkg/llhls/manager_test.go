package llhls

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aminofox/hlspack/pkg/blocking"
	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/partial"
	"github.com/aminofox/hlspack/pkg/playlist"
)

func newTestManager() *Manager {
	return New(Config{
		MaxSegments: 10,
		PartialConfig: partial.Config{
			PartTargetDuration:  0.5,
			MaxRetainedSegments: 5,
			URITemplate:         "seg{segment}.{part}.{ext}",
			Extension:           "mp4",
		},
		ServerControl: model.ServerControl{CanBlockReload: true},
	})
}

func TestManagerAddPartialThenCompleteSegment(t *testing.T) {
	m := newTestManager()
	defer m.EndStream()

	p0, err := m.AddPartial(0.33, "", true, false, nil)
	require.NoError(t, err)
	require.Equal(t, "seg0.0.mp4", p0.URI)

	_, err = m.AddPartial(0.33, "", false, false, nil)
	require.NoError(t, err)

	seg, err := m.CompleteSegment(1.0, "seg1.mp4", false, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), seg.Index)

	out := m.RenderPlaylist()
	require.Contains(t, out, "seg0.0.mp4")
	require.Contains(t, out, "seg1.mp4")
	require.Equal(t, uint64(0), m.MediaSequence())
}

func TestManagerNotifiesOnNewPartial(t *testing.T) {
	m := newTestManager()
	defer m.EndStream()

	notified := make(chan Notification, 4)
	m.OnNotify(func(n Notification) { notified <- n })

	_, err := m.AddPartial(0.33, "", true, false, nil)
	require.NoError(t, err)

	n := <-notified
	require.Equal(t, uint64(0), n.SegmentIndex)
	require.Equal(t, 0, n.PartialIndex)
}

func TestManagerRejectsAfterEnd(t *testing.T) {
	m := newTestManager()
	m.EndStream()

	_, err := m.AddPartial(0.33, "", true, false, nil)
	require.Error(t, err)
}

func TestBlockingReloadResolvesWhenContentArrives(t *testing.T) {
	m := newTestManager()
	defer m.EndStream()

	coord := blocking.New(func(blocking.Request) string {
		return m.RenderPlaylist()
	}, 5*time.Second)
	m.OnNotify(func(n Notification) {
		coord.Notify(n.SegmentIndex, n.PartialIndex, n.SegmentComplete)
	})

	out := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		playlistText, err := coord.AwaitPlaylist(context.Background(), blocking.Request{MediaSequence: 0})
		out <- playlistText
		errCh <- err
	}()

	for coord.PendingRequestCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, coord.PendingRequestCount())

	_, err := m.AddPartial(0.33, "", true, false, nil)
	require.NoError(t, err)

	require.Contains(t, <-out, "#EXTM3U")
	require.NoError(t, <-errCh)
}

func TestManagerRenderDeltaRequiresCanSkipUntil(t *testing.T) {
	m := New(Config{
		MaxSegments: 20,
		PartialConfig: partial.Config{
			PartTargetDuration:  2.0,
			MaxRetainedSegments: 5,
			URITemplate:         "seg{segment}.{part}.{ext}",
			Extension:           "mp4",
		},
		ServerControl: model.ServerControl{CanBlockReload: true},
	})
	defer m.EndStream()

	for i := 0; i < 10; i++ {
		_, err := m.AddPartial(1.0, "", true, false, nil)
		require.NoError(t, err)
		_, err = m.CompleteSegment(2.0, "seg.mp4", false, nil)
		require.NoError(t, err)
	}

	out, ok := m.RenderDeltaPlaylist(playlist.SkipRequest{Mode: model.SkipYes})
	require.False(t, ok, "no delta without server control carrying CanSkipUntil")
	require.Empty(t, out)
	require.Equal(t, 10, strings.Count(m.RenderPlaylist(), "#EXTINF"))
}
