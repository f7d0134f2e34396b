package pipeline

import "time"

// Statistics is a point-in-time snapshot of a running pipeline's counters.
type Statistics struct {
	Uptime                 float64
	StartDate              int64
	SegmentsProduced       int
	AverageSegmentDuration float64
	LastSegmentDuration    float64
	LastSegmentBytes       int64
	TotalBytes             int64
	EstimatedBitrate       float64
	BytesSent              int64
	PushErrors             int
	ActiveDestinations     int
	AudioPeakDB            *float64
	LoudnessLUFS           *float64
	PartialsProduced       int
	RecordingActive        bool
	RecordedSegments       int
	Discontinuities        int
	DroppedSegments        int
	AverageBytesPerSegment float64
}

// statisticsAccumulator is the mutable counter set the pipeline's actor
// updates as runtime operations fire; snapshot derives the public
// Statistics view (including the three derived fields: average segment
// duration, estimated bitrate, average bytes per segment) from it on demand.
type statisticsAccumulator struct {
	startedAt          time.Time
	segmentsProduced   int
	durationSum        float64
	lastSegmentDur     float64
	lastSegmentBytes   int64
	totalBytes         int64
	bytesSent          int64
	pushErrors         int
	activeDestinations int
	audioPeakDB        *float64
	loudnessLUFS       *float64
	partialsProduced   int
	recordingActive    bool
	recordedSegments   int
	discontinuities    int
	droppedSegments    int
}

func (a *statisticsAccumulator) snapshot() Statistics {
	uptime := time.Since(a.startedAt).Seconds()
	var avgDur, bitrate, avgBytes float64
	if a.segmentsProduced > 0 {
		avgDur = a.durationSum / float64(a.segmentsProduced)
		avgBytes = float64(a.totalBytes) / float64(a.segmentsProduced)
	}
	if uptime > 0 {
		bitrate = 8 * float64(a.totalBytes) / uptime
	}
	return Statistics{
		Uptime:                 uptime,
		StartDate:              a.startedAt.Unix(),
		SegmentsProduced:       a.segmentsProduced,
		AverageSegmentDuration: avgDur,
		LastSegmentDuration:    a.lastSegmentDur,
		LastSegmentBytes:       a.lastSegmentBytes,
		TotalBytes:             a.totalBytes,
		EstimatedBitrate:       bitrate,
		BytesSent:              a.bytesSent,
		PushErrors:             a.pushErrors,
		ActiveDestinations:     a.activeDestinations,
		AudioPeakDB:            a.audioPeakDB,
		LoudnessLUFS:           a.loudnessLUFS,
		PartialsProduced:       a.partialsProduced,
		RecordingActive:        a.recordingActive,
		RecordedSegments:       a.recordedSegments,
		Discontinuities:        a.discontinuities,
		DroppedSegments:        a.droppedSegments,
		AverageBytesPerSegment: avgBytes,
	}
}

func (a *statisticsAccumulator) recordSegment(duration float64, byteSize int64) {
	a.segmentsProduced++
	a.durationSum += duration
	a.lastSegmentDur = duration
	a.lastSegmentBytes = byteSize
	a.totalBytes += byteSize
}
