package blocking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aminofox/hlspack/pkg/errors"
)

func TestParseRequestMissingMSNIsNotBlocking(t *testing.T) {
	_, ok := ParseRequest("", "", "")
	require.False(t, ok)
}

func TestParseRequestWithPartAndSkip(t *testing.T) {
	req, ok := ParseRequest("5", "2", "v2")
	require.True(t, ok)
	require.Equal(t, uint64(5), req.MediaSequence)
	require.NotNil(t, req.PartIndex)
	require.Equal(t, 2, *req.PartIndex)
}

func TestAwaitPlaylistRendersImmediatelyWhenAlreadySatisfied(t *testing.T) {
	c := New(func(Request) string { return "playlist" }, time.Second)
	c.Notify(5, 0, false)

	out, err := c.AwaitPlaylist(context.Background(), Request{MediaSequence: 3})
	require.NoError(t, err)
	require.Equal(t, "playlist", out)
}

func TestAwaitPlaylistParksThenWakesOnNotify(t *testing.T) {
	c := New(func(Request) string { return "playlist" }, time.Second)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := c.AwaitPlaylist(context.Background(), Request{MediaSequence: 10})
		resultCh <- out
		errCh <- err
	}()

	for c.PendingRequestCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Notify(10, 0, false)

	require.Equal(t, "playlist", <-resultCh)
	require.NoError(t, <-errCh)
}

func TestAwaitPlaylistTimesOut(t *testing.T) {
	c := New(func(Request) string { return "playlist" }, 20*time.Millisecond)

	_, err := c.AwaitPlaylist(context.Background(), Request{MediaSequence: 99})
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeRequestTimeout, errors.GetErrorCode(err))
}

func TestAwaitPlaylistFailsImmediatelyAfterStreamEnded(t *testing.T) {
	c := New(func(Request) string { return "playlist" }, time.Second)
	c.NotifyStreamEnded()

	_, err := c.AwaitPlaylist(context.Background(), Request{MediaSequence: 1})
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeStreamAlreadyEnded, errors.GetErrorCode(err))
}

func TestAwaitPlaylistFailsWhenStreamEndsWhileParked(t *testing.T) {
	c := New(func(Request) string { return "playlist" }, time.Second)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.AwaitPlaylist(context.Background(), Request{MediaSequence: 10})
		errCh <- err
	}()

	for c.PendingRequestCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	c.NotifyStreamEnded()

	err := <-errCh
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeStreamAlreadyEnded, errors.GetErrorCode(err))
}

func TestSegmentCompleteSatisfiesAnyPartIndexOfThatSegment(t *testing.T) {
	c := New(func(Request) string { return "playlist" }, time.Second)
	c.Notify(4, 7, true) // segment 4 completed regardless of how many partials it had

	partIdx := 99
	require.True(t, c.IsRequestSatisfied(Request{MediaSequence: 4, PartIndex: &partIdx}))
}
