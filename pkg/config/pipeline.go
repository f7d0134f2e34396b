// Package config defines the pipeline configuration tree, its validation
// rules, and YAML loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	hlserrors "github.com/aminofox/hlspack/pkg/errors"
)

// AudioConfig tunes the audio segmenter.
type AudioConfig struct {
	Bitrate    int `yaml:"bitrate"`
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// VideoConfig tunes the video segmenter. It is ignored entirely when
// Enabled is false.
type VideoConfig struct {
	Enabled   bool `yaml:"enabled"`
	Bitrate   int  `yaml:"bitrate"`
	Width     int  `yaml:"width"`
	Height    int  `yaml:"height"`
	FrameRate int  `yaml:"frame_rate"`
}

// ContainerFormat names the segment container the encoder produces.
type ContainerFormat string

const (
	ContainerFMP4   ContainerFormat = "fmp4"
	ContainerMPEGTS ContainerFormat = "mpegts"
	ContainerCMAF   ContainerFormat = "cmaf"
)

// SegmentationConfig tunes the segmenter.
type SegmentationConfig struct {
	SegmentDuration float64         `yaml:"segment_duration"`
	ContainerFormat ContainerFormat `yaml:"container_format"`
	// RingBufferSize bounds the segmenter's own retention of completed
	// segments, independent of playlist eviction. 0 disables it.
	RingBufferSize int `yaml:"ring_buffer_size"`
}

// PlaylistKind selects which liveplaylist strategy backs the pipeline.
type PlaylistKind string

const (
	PlaylistSlidingWindow PlaylistKind = "sliding_window"
	PlaylistEvent         PlaylistKind = "event"
)

// PlaylistConfig tunes the live playlist manager.
type PlaylistConfig struct {
	Type              PlaylistKind `yaml:"playlist_type"`
	WindowSize        int          `yaml:"window_size"`
	EnableDVR         bool         `yaml:"enable_dvr"`
	DVRWindowDuration float64      `yaml:"dvr_window_duration"`
}

// LowLatencyConfig tunes LL-HLS behavior. A nil *LowLatencyConfig in
// PipelineConfig disables LL-HLS entirely.
type LowLatencyConfig struct {
	PartTargetDuration   float64 `yaml:"part_target_duration"`
	EnablePreloadHints   bool    `yaml:"enable_preload_hints"`
	EnableDeltaUpdates   bool    `yaml:"enable_delta_updates"`
	EnableBlockingReload bool    `yaml:"enable_blocking_reload"`
}

// Destination is a tagged union of push/recording targets. The private
// marker method mirrors the variant-config idiom this module's storage
// configuration already uses for per-backend settings.
type Destination interface {
	isDestination()
}

// HTTPDestination pushes segments/playlists to an HTTP(S) endpoint.
type HTTPDestination struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

func (HTTPDestination) isDestination() {}

// LocalDestination writes segments/playlists to a local directory.
type LocalDestination struct {
	Directory string `yaml:"directory"`
}

func (LocalDestination) isDestination() {}

// S3Destination pushes segments/playlists to an S3-compatible bucket.
type S3Destination struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

func (S3Destination) isDestination() {}

// RecordingConfig tunes whether/where completed segments are archived to a
// VOD recording alongside the live pipeline.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enable_recording"`
	Directory string `yaml:"recording_directory"`
}

// MetadataConfig tunes PROGRAM-DATE-TIME emission.
type MetadataConfig struct {
	EnableProgramDateTime   bool    `yaml:"enable_program_date_time"`
	ProgramDateTimeInterval float64 `yaml:"program_date_time_interval"`
}

// EncryptionMethod names the HLS segment-encryption scheme.
type EncryptionMethod string

const (
	EncryptionAES128    EncryptionMethod = "AES-128"
	EncryptionSampleAES EncryptionMethod = "SAMPLE-AES"
)

// EncryptionConfig tunes segment/sample encryption.
type EncryptionConfig struct {
	Enabled           bool             `yaml:"enable_segment_encryption"`
	KeyRotationPeriod int              `yaml:"key_rotation_period"`
	Method            EncryptionMethod `yaml:"method"`
}

// PipelineConfig is the full configuration tree for a pipeline instance.
type PipelineConfig struct {
	Audio        AudioConfig        `yaml:"audio"`
	Video        VideoConfig        `yaml:"video"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Playlist     PlaylistConfig     `yaml:"playlist"`
	LowLatency   *LowLatencyConfig  `yaml:"low_latency"`
	Destinations []Destination      `yaml:"-"`
	Recording    RecordingConfig    `yaml:"recording"`
	Metadata     MetadataConfig     `yaml:"metadata"`
	Encryption   EncryptionConfig   `yaml:"encryption"`
}

// DefaultPipelineConfig returns a minimal, valid configuration: audio-only,
// 6-second sliding-window segments, no low-latency, no destinations.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Audio: AudioConfig{Bitrate: 128_000, SampleRate: 48_000, Channels: 2},
		Video: VideoConfig{Enabled: false},
		Segmentation: SegmentationConfig{
			SegmentDuration: 6.0,
			ContainerFormat: ContainerFMP4,
			RingBufferSize:  10,
		},
		Playlist: PlaylistConfig{
			Type:       PlaylistSlidingWindow,
			WindowSize: 5,
		},
		Metadata: MetadataConfig{EnableProgramDateTime: true},
	}
}

// Validate returns the first offending field's explanation as a typed
// configuration error, or nil if the configuration is well-formed.
func (c *PipelineConfig) Validate() error {
	if c.Audio.Bitrate <= 0 {
		return hlserrors.NewInvalidConfigurationError("audio.bitrate must be greater than 0")
	}
	if c.Audio.SampleRate <= 0 {
		return hlserrors.NewInvalidConfigurationError("audio.sampleRate must be greater than 0")
	}
	if c.Audio.Channels < 1 {
		return hlserrors.NewInvalidConfigurationError("audio.channels must be at least 1")
	}
	if c.Video.Enabled {
		if c.Video.Bitrate <= 0 {
			return hlserrors.NewInvalidConfigurationError("video.bitrate must be greater than 0")
		}
		if c.Video.Width <= 0 || c.Video.Height <= 0 {
			return hlserrors.NewInvalidConfigurationError("video.width and video.height must be greater than 0")
		}
		if c.Video.FrameRate <= 0 {
			return hlserrors.NewInvalidConfigurationError("video.frameRate must be greater than 0")
		}
	}
	if c.Segmentation.SegmentDuration <= 0 {
		return hlserrors.NewInvalidConfigurationError("segmentDuration must be greater than 0")
	}
	switch c.Segmentation.ContainerFormat {
	case ContainerFMP4, ContainerMPEGTS, ContainerCMAF:
	default:
		return hlserrors.NewInvalidConfigurationError("containerFormat must be one of fmp4, mpegts, cmaf")
	}
	if c.Segmentation.RingBufferSize < 0 {
		return hlserrors.NewInvalidConfigurationError("segmentation.ringBufferSize must not be negative")
	}
	switch c.Playlist.Type {
	case PlaylistSlidingWindow, PlaylistEvent:
	default:
		return hlserrors.NewInvalidConfigurationError("playlistType must be one of sliding_window, event")
	}
	if c.Playlist.EnableDVR && c.Playlist.Type != PlaylistSlidingWindow {
		return hlserrors.NewInvalidConfigurationError("enableDvr requires playlistType sliding_window")
	}
	if c.LowLatency != nil {
		if c.LowLatency.PartTargetDuration <= 0 {
			return hlserrors.NewInvalidConfigurationError("lowLatency.partTargetDuration must be greater than 0")
		}
		if c.LowLatency.PartTargetDuration >= c.Segmentation.SegmentDuration {
			return hlserrors.NewInvalidConfigurationError("lowLatency.partTargetDuration must be less than segmentDuration")
		}
	}
	for _, d := range c.Destinations {
		switch dest := d.(type) {
		case HTTPDestination:
			if dest.URL == "" {
				return hlserrors.NewInvalidConfigurationError("destination.url must not be empty")
			}
		case LocalDestination:
			if dest.Directory == "" {
				return hlserrors.NewInvalidConfigurationError("destination.directory must not be empty")
			}
		case S3Destination:
			if dest.Bucket == "" {
				return hlserrors.NewInvalidConfigurationError("destination.bucket must not be empty")
			}
		}
	}
	if c.Recording.Enabled && c.Recording.Directory == "" {
		return hlserrors.NewInvalidConfigurationError("recording.directory is required when recording is enabled")
	}
	if c.Encryption.Enabled {
		switch c.Encryption.Method {
		case EncryptionAES128, EncryptionSampleAES:
		default:
			return hlserrors.NewInvalidConfigurationError("encryption.method must be one of AES-128, SAMPLE-AES")
		}
	}
	return nil
}

// LoadPipelineConfig reads and validates a PipelineConfig from a YAML file,
// starting from DefaultPipelineConfig so unset fields keep their defaults.
func LoadPipelineConfig(filename string) (*PipelineConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config file: %w", err)
	}

	cfg := DefaultPipelineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
