package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	hlsconfig "github.com/aminofox/hlspack/pkg/config"
	"github.com/aminofox/hlspack/pkg/logger"
)

// Pusher delivers completed segment and playlist bytes to one destination.
// It mirrors the pipeline's push contract so a Pusher built here can be
// registered directly with AddDestination.
type Pusher interface {
	Push(ctx context.Context, filename string, data []byte) error
	PushPlaylist(ctx context.Context, data []byte) error
}

// PlaylistFilename is the object key playlists are pushed under.
const PlaylistFilename = "live.m3u8"

// StoragePusher pushes segments and playlists through any Storage backend.
type StoragePusher struct {
	store Storage
}

// NewStoragePusher wraps a Storage backend as a push destination.
func NewStoragePusher(store Storage) *StoragePusher {
	return &StoragePusher{store: store}
}

// Push uploads one segment.
func (p *StoragePusher) Push(ctx context.Context, filename string, data []byte) error {
	return p.store.Upload(ctx, filename, bytes.NewReader(data), int64(len(data)), contentTypeFor(filename))
}

// PushPlaylist uploads the current playlist.
func (p *StoragePusher) PushPlaylist(ctx context.Context, data []byte) error {
	return p.store.Upload(ctx, PlaylistFilename, bytes.NewReader(data), int64(len(data)), ContentTypePlaylist)
}

// HTTPPusher PUTs segments and playlists to an HTTP(S) endpoint, one
// request per object, with the configured headers on every request.
type HTTPPusher struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	logger  logger.Logger
}

// NewHTTPPusher creates an HTTP push destination. client may be nil for
// http.DefaultClient; log may be nil.
func NewHTTPPusher(baseURL string, headers map[string]string, client *http.Client, log logger.Logger) *HTTPPusher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefaultLogger(logger.ErrorLevel, logger.FormatText)
	}
	return &HTTPPusher{baseURL: baseURL, headers: headers, client: client, logger: log}
}

// Push uploads one segment.
func (p *HTTPPusher) Push(ctx context.Context, filename string, data []byte) error {
	return p.put(ctx, filename, data, contentTypeFor(filename))
}

// PushPlaylist uploads the current playlist.
func (p *HTTPPusher) PushPlaylist(ctx context.Context, data []byte) error {
	return p.put(ctx, PlaylistFilename, data, ContentTypePlaylist)
}

func (p *HTTPPusher) put(ctx context.Context, filename string, data []byte, contentType string) error {
	url := p.baseURL
	if url != "" && url[len(url)-1] != '/' {
		url += "/"
	}
	url += filename

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d for %s", ErrUploadFailed, resp.StatusCode, url)
	}
	return nil
}

// NewPusherForDestination maps one configured destination variant onto a
// concrete Pusher.
func NewPusherForDestination(dest hlsconfig.Destination, log logger.Logger) (Pusher, error) {
	switch d := dest.(type) {
	case hlsconfig.HTTPDestination:
		return NewHTTPPusher(d.URL, d.Headers, nil, log), nil
	case hlsconfig.LocalDestination:
		cfg := DefaultStorageConfig()
		cfg.BasePath = d.Directory
		store, err := NewLocalStorage(cfg, log)
		if err != nil {
			return nil, err
		}
		return NewStoragePusher(store), nil
	case hlsconfig.S3Destination:
		cfg := DefaultStorageConfig()
		cfg.Type = StorageTypeS3
		cfg.Bucket = d.Bucket
		cfg.Prefix = d.Prefix
		cfg.Region = d.Region
		store, err := NewS3Storage(cfg, log)
		if err != nil {
			return nil, err
		}
		return NewStoragePusher(store), nil
	default:
		return nil, fmt.Errorf("unsupported destination type %T", dest)
	}
}
