package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hlsconfig "github.com/aminofox/hlspack/pkg/config"
	"github.com/aminofox/hlspack/pkg/errors"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	cfg := DefaultStorageConfig()
	cfg.BasePath = t.TempDir()
	cfg.RetryDelay = time.Millisecond
	store, err := NewLocalStorage(cfg, nil)
	require.NoError(t, err)
	return store
}

func TestLocalStorageUploadDownloadRoundTrip(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	data := []byte("segment bytes")
	require.NoError(t, store.Upload(ctx, "seg0.mp4", bytes.NewReader(data), int64(len(data)), ContentTypeMP4))

	exists, err := store.Exists(ctx, "seg0.mp4")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Download(ctx, "seg0.mp4")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalStorageDownloadMissingObject(t *testing.T) {
	store := newLocal(t)
	_, err := store.Download(context.Background(), "nope.mp4")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageConfinesEscapingKeys(t *testing.T) {
	store := newLocal(t)
	err := store.Upload(context.Background(), "../outside.mp4", strings.NewReader("x"), 1, ContentTypeMP4)
	require.NoError(t, err, "cleaned key must stay inside the base path")

	exists, err := store.Exists(context.Background(), "outside.mp4")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorageListByPrefix(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"a/seg0.ts", "a/seg1.ts", "b/seg0.ts"} {
		require.NoError(t, store.Upload(ctx, key, strings.NewReader("x"), 1, ContentTypeMPEGTS))
	}

	objects, err := store.List(ctx, "a/", 0)
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	for _, obj := range objects {
		assert.Equal(t, ContentTypeMPEGTS, obj.ContentType)
	}
}

func TestStoragePusherDeliversSegmentsAndPlaylists(t *testing.T) {
	store := newLocal(t)
	pusher := NewStoragePusher(store)
	ctx := context.Background()

	require.NoError(t, pusher.Push(ctx, "seg0.mp4", []byte("seg")))
	require.NoError(t, pusher.PushPlaylist(ctx, []byte("#EXTM3U\n")))

	exists, err := store.Exists(ctx, PlaylistFilename)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHTTPPusherPutsWithHeaders(t *testing.T) {
	type received struct {
		path        string
		contentType string
		auth        string
	}
	got := make(chan received, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- received{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), auth: r.Header.Get("Authorization")}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	pusher := NewHTTPPusher(srv.URL, map[string]string{"Authorization": "Bearer token"}, srv.Client(), nil)

	require.NoError(t, pusher.Push(context.Background(), "seg0.ts", []byte("seg")))
	r := <-got
	assert.Equal(t, "/seg0.ts", r.path)
	assert.Equal(t, ContentTypeMPEGTS, r.contentType)
	assert.Equal(t, "Bearer token", r.auth)

	require.NoError(t, pusher.PushPlaylist(context.Background(), []byte("#EXTM3U\n")))
	r = <-got
	assert.Equal(t, "/"+PlaylistFilename, r.path)
	assert.Equal(t, ContentTypePlaylist, r.contentType)
}

func TestHTTPPusherFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	pusher := NewHTTPPusher(srv.URL, nil, srv.Client(), nil)
	err := pusher.Push(context.Background(), "seg0.mp4", []byte("seg"))
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestNewPusherForDestinationVariants(t *testing.T) {
	local, err := NewPusherForDestination(hlsconfig.LocalDestination{Directory: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StoragePusher{}, local)

	httpPusher, err := NewPusherForDestination(hlsconfig.HTTPDestination{URL: "http://example.invalid/live"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPPusher{}, httpPusher)
}

func TestRecorderLifecycle(t *testing.T) {
	store := newLocal(t)
	rec := NewHLSRecorder(RecorderConfig{}, store, nil)
	ctx := context.Background()

	require.NoError(t, rec.WriteSegment(ctx, "seg0.mp4", []byte("aaaa"), 6.0, nil))
	require.NoError(t, rec.WriteSegment(ctx, "seg1.mp4", []byte("bbbb"), 5.5, nil))
	assert.Equal(t, 2, rec.SegmentCount())
	assert.EqualValues(t, 8, rec.TotalBytesWritten())

	out, err := rec.Finalize(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "#EXT-X-PLAYLIST-TYPE:VOD")
	assert.Contains(t, out, "#EXT-X-TARGETDURATION:6")
	assert.Contains(t, out, "#EXT-X-ENDLIST")
	assert.Contains(t, out, "seg1.mp4")

	exists, err := store.Exists(ctx, "recording.m3u8")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecorderCopiesProgramDateTime(t *testing.T) {
	rec := NewHLSRecorder(RecorderConfig{}, newLocal(t), nil)
	ctx := context.Background()

	pdt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rec.WriteSegment(ctx, "seg0.mp4", []byte("a"), 6.0, &pdt))
	require.NoError(t, rec.WriteSegment(ctx, "seg1.mp4", []byte("b"), 6.0, nil))

	out, err := rec.Finalize(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "#EXT-X-PROGRAM-DATE-TIME:2025-06-01T12:00:00.000Z")
	// Only the segment that carried a PDT gets one.
	assert.Equal(t, 1, strings.Count(out, "#EXT-X-PROGRAM-DATE-TIME"))
}

// A recording whose segments never carried PDT yields a VOD playlist with
// no PDT anchor; the recorder never fabricates one.
func TestRecorderWithoutProgramDateTimeHasNoAnchor(t *testing.T) {
	rec := NewHLSRecorder(RecorderConfig{}, newLocal(t), nil)
	ctx := context.Background()

	require.NoError(t, rec.WriteSegment(ctx, "seg0.mp4", []byte("a"), 6.0, nil))
	require.NoError(t, rec.WriteSegment(ctx, "seg1.mp4", []byte("b"), 6.0, nil))

	out, err := rec.Finalize(ctx)
	require.NoError(t, err)
	assert.NotContains(t, out, "#EXT-X-PROGRAM-DATE-TIME")
}

func TestRecorderFinalizeTwiceFails(t *testing.T) {
	rec := NewHLSRecorder(RecorderConfig{}, newLocal(t), nil)
	_, err := rec.Finalize(context.Background())
	require.NoError(t, err)

	_, err = rec.Finalize(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRecordingAlreadyFinalized, errors.GetErrorCode(err))
}

func TestRecorderMaxDuration(t *testing.T) {
	rec := NewHLSRecorder(RecorderConfig{MaxDuration: 10 * time.Second}, newLocal(t), nil)
	ctx := context.Background()

	require.NoError(t, rec.WriteSegment(ctx, "seg0.mp4", []byte("a"), 6.0, nil))
	require.NoError(t, rec.WriteSegment(ctx, "seg1.mp4", []byte("b"), 6.0, nil))

	err := rec.WriteSegment(ctx, "seg2.mp4", []byte("c"), 6.0, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRecordingMaxDurationReached, errors.GetErrorCode(err))
}

func TestRecorderCancelBlocksWrites(t *testing.T) {
	rec := NewHLSRecorder(RecorderConfig{}, newLocal(t), nil)
	rec.Cancel()

	err := rec.WriteSegment(context.Background(), "seg0.mp4", []byte("a"), 6.0, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRecordingCancelled, errors.GetErrorCode(err))
}
