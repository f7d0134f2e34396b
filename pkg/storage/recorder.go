package storage

import (
	"bytes"
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/playlist"
)

// RecorderConfig tunes an HLSRecorder.
type RecorderConfig struct {
	// PlaylistName is the VOD playlist's object key. Defaults to
	// "recording.m3u8".
	PlaylistName string
	// MaxDuration bounds the recording's total duration; 0 disables the
	// limit.
	MaxDuration time.Duration
}

// HLSRecorder archives a live run's segments into a Storage backend and, on
// finalization, renders the VOD playlist that references them.
type HLSRecorder struct {
	mu        sync.Mutex
	id        string
	cfg       RecorderConfig
	store     Storage
	log       logger.Logger
	startedAt time.Time

	entries      []recordedSegment
	totalSeconds float64
	bytesWritten int64
	finalized    bool
	cancelled    bool
}

type recordedSegment struct {
	filename        string
	duration        float64
	programDateTime *time.Time
}

// NewHLSRecorder creates a recorder writing into store. log may be nil.
func NewHLSRecorder(cfg RecorderConfig, store Storage, log logger.Logger) *HLSRecorder {
	if cfg.PlaylistName == "" {
		cfg.PlaylistName = "recording.m3u8"
	}
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	return &HLSRecorder{
		id:        uuid.New().String(),
		cfg:       cfg,
		store:     store,
		log:       log,
		startedAt: time.Now(),
	}
}

// ID returns the recording session's unique identifier.
func (r *HLSRecorder) ID() string {
	return r.id
}

// WriteSegment persists one completed segment and tracks it for the VOD
// playlist. programDateTime is the PDT the live segment already carries
// and may be nil; it is copied as-is, never synthesized. Fails once the
// configured duration budget is exhausted or the recording has been
// finalized or cancelled.
func (r *HLSRecorder) WriteSegment(ctx context.Context, filename string, data []byte, duration float64, programDateTime *time.Time) error {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return errors.NewRecordingAlreadyFinalizedError()
	}
	if r.cancelled {
		r.mu.Unlock()
		return errors.NewRecordingCancelledError()
	}
	if r.cfg.MaxDuration > 0 && r.totalSeconds >= r.cfg.MaxDuration.Seconds() {
		r.mu.Unlock()
		return errors.NewRecordingMaxDurationReachedError()
	}
	r.mu.Unlock()

	if err := r.store.Upload(ctx, filename, bytes.NewReader(data), int64(len(data)), contentTypeFor(filename)); err != nil {
		return err
	}

	r.mu.Lock()
	r.entries = append(r.entries, recordedSegment{filename: filename, duration: duration, programDateTime: programDateTime})
	r.totalSeconds += duration
	r.bytesWritten += int64(len(data))
	r.mu.Unlock()

	r.log.Debug("recording segment saved",
		logger.Any("recording_id", r.id),
		logger.Any("filename", filename),
		logger.Any("duration", duration),
	)
	return nil
}

// WritePlaylist persists an intermediate playlist snapshot alongside the
// segments, so an in-progress recording stays playable.
func (r *HLSRecorder) WritePlaylist(ctx context.Context, data []byte) error {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return errors.NewRecordingAlreadyFinalizedError()
	}
	if r.cancelled {
		r.mu.Unlock()
		return errors.NewRecordingCancelledError()
	}
	r.mu.Unlock()

	return r.store.Upload(ctx, r.cfg.PlaylistName, bytes.NewReader(data), int64(len(data)), ContentTypePlaylist)
}

// Finalize renders the VOD playlist from the recorded segments, persists
// it, and returns its text. A second call fails with an
// already-finalized error.
func (r *HLSRecorder) Finalize(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return "", errors.NewRecordingAlreadyFinalizedError()
	}
	if r.cancelled {
		r.mu.Unlock()
		return "", errors.NewRecordingCancelledError()
	}
	r.finalized = true
	snap := r.vodSnapshotLocked()
	name := r.cfg.PlaylistName
	total := r.totalSeconds
	r.mu.Unlock()

	out := playlist.Render(snap)
	if err := r.store.Upload(ctx, name, bytes.NewReader([]byte(out)), int64(len(out)), ContentTypePlaylist); err != nil {
		return "", err
	}

	r.log.Info("recording finalized",
		logger.Any("recording_id", r.id),
		logger.Any("segments", len(snap.Segments)),
		logger.Any("duration", total),
	)
	return out, nil
}

// Cancel abandons the recording; subsequent writes and Finalize fail.
func (r *HLSRecorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

// TotalBytesWritten reports the cumulative segment bytes persisted.
func (r *HLSRecorder) TotalBytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesWritten
}

// SegmentCount reports how many segments have been recorded.
func (r *HLSRecorder) SegmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// vodSnapshotLocked builds the VOD playlist snapshot. Program date times
// are copied from what each segment already carries and never synthesized.
func (r *HLSRecorder) vodSnapshotLocked() playlist.Snapshot {
	target := 0
	entries := make([]playlist.SegmentEntry, len(r.entries))
	for i, e := range r.entries {
		if d := int(math.Ceil(e.duration)); d > target {
			target = d
		}
		entries[i] = playlist.SegmentEntry{Segment: model.LiveSegment{
			Index:           uint64(i),
			Duration:        e.duration,
			Filename:        e.filename,
			ProgramDateTime: e.programDateTime,
		}}
	}

	return playlist.Snapshot{
		TargetDuration: target,
		PlaylistType:   "VOD",
		HasEndList:     true,
		Segments:       entries,
	}
}
