package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aminofox/hlspack"
	"github.com/aminofox/hlspack/pkg/config"
	"github.com/aminofox/hlspack/pkg/logger"
	"github.com/aminofox/hlspack/pkg/model"
	"github.com/aminofox/hlspack/pkg/pipeline"
	"github.com/aminofox/hlspack/pkg/segmenter"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse flags
	configFile := flag.String("config", "", "Path to pipeline config file (optional)")
	segmentDuration := flag.Float64("segment-duration", 2.0, "Segment duration in seconds")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlspack-demo %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	log := logger.NewDefaultLogger(logger.InfoLevel, logger.FormatText)

	// Load configuration
	cfg := config.DefaultPipelineConfig()
	if *configFile != "" {
		loaded, err := config.LoadPipelineConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Segmentation.SegmentDuration = *segmentDuration

	// Create and start the pipeline
	p := hlspack.New(log)
	p.Subscribe(pipeline.EventSegmentProduced, func(e pipeline.Event) {
		log.Info("segment produced",
			logger.Any("index", e.SegmentIndex),
			logger.Any("duration", e.Duration),
			logger.Int64("bytes", e.ByteSize),
		)
	})

	if err := p.Start(cfg); err != nil {
		log.Error("Failed to start pipeline", logger.Err(err))
		os.Exit(1)
	}
	log.Info("Pipeline started", logger.String("version", hlspack.Version()))

	// Drive a synthetic audio source through the segmenter; each completed
	// segment is handed to the pipeline as an encoder would.
	seg := segmenter.NewAudio(
		segmenter.Config{
			TargetDuration: cfg.Segmentation.SegmentDuration,
			RingBufferSize: cfg.Segmentation.RingBufferSize,
		},
		segmenter.Callbacks{OnSegment: func(s segmenter.CompletedSegment) {
			filename := fmt.Sprintf("seg%d.mp4", s.Index)
			p.ProcessSegment(s.Payload, s.Duration, filename)
		}},
		log,
	)

	stop := make(chan struct{})
	go func() {
		frameDuration := 1024.0 / 48000.0 // one AAC frame at 48 kHz
		payload := make([]byte, 256)
		ticker := time.NewTicker(time.Duration(frameDuration * float64(time.Second)))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				frame := model.EncodedFrame{
					Payload:       payload,
					Codec:         model.CodecAAC,
					Duration:      model.Rational{Num: 1024, Denom: 48000},
					IsKeyframe:    true,
					IsIndependent: true,
				}
				if err := seg.Ingest(frame); err != nil {
					// A segmenter error is fatal to the pipeline, not to the
					// process.
					p.Fail(err)
					return
				}
			}
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	log.Info("Press Ctrl+C to stop...")
	<-sigChan

	close(stop)
	if final := seg.Finish(); final != nil {
		p.ProcessSegment(final.Payload, final.Duration, fmt.Sprintf("seg%d.mp4", final.Index))
	}
	log.Info("Segmenter ring buffer", logger.Int("retained", len(seg.RetainedSegments())))

	fmt.Println(p.RenderPlaylist())

	summary, err := p.Stop()
	if err != nil {
		log.Error("Failed to stop pipeline", logger.Err(err))
		os.Exit(1)
	}
	log.Info("Pipeline stopped",
		logger.Int("segments", summary.SegmentsProduced),
		logger.Int64("bytes", summary.TotalBytes),
		logger.Any("duration", summary.Duration),
	)
}
