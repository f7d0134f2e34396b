package pipeline

import (
	"context"
	"time"
)

// Pusher is the "segment pusher" collaborator contract: something that can
// take ownership of completed segment and playlist bytes for one
// destination. Implementations (HTTP, local disk, S3, ...) live outside
// this package.
type Pusher interface {
	Push(ctx context.Context, filename string, data []byte) error
	PushPlaylist(ctx context.Context, data []byte) error
}

// RecordingSink is the "recording storage" collaborator contract backing
// finalize_recording. Finalize returns the VOD playlist text.
// programDateTime is the PDT the live segment already carries, nil when the
// segment has none; the sink copies it as-is.
type RecordingSink interface {
	WriteSegment(ctx context.Context, filename string, data []byte, duration float64, programDateTime *time.Time) error
	WritePlaylist(ctx context.Context, data []byte) error
	Finalize(ctx context.Context) (string, error)
}

type destinationEntry struct {
	id     string
	pusher Pusher
}
