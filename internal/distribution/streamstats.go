package distribution

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aria-media/aria/internal/demux"
	"github.com/aria-media/aria/internal/media"
)

// Compile-time interface check.
var _ demux.StatsRecorder = (*DemuxStats)(nil)

// AudioTrackStats holds per-track audio metrics for a stream, serialized as
// JSON in stats snapshots sent to viewers over the control stream.
type AudioTrackStats struct {
	TrackIndex      int     `json:"trackIndex"`
	SampleRate      int     `json:"sampleRate"`
	Channels        int     `json:"channels"`
	BitDepth        int     `json:"bitDepth"`
	Emphasis        bool    `json:"emphasis,omitempty"`
	Frames          int64   `json:"frames"`
	BitrateKbps     float64 `json:"bitrateKbps"`
	PTSErrors       int64   `json:"ptsErrors"`
	Discontinuities int64   `json:"discontinuities"`
	TotalBytes      int64   `json:"totalBytes"`
}

// ViewerStats captures per-viewer delivery metrics including frame counts
// and drop rates, used for diagnostics and the stats overlay.
type ViewerStats struct {
	ID            string `json:"id"`
	AudioSent     int64  `json:"audioSent"`
	AudioDropped  int64  `json:"audioDropped"`
	BytesSent     int64  `json:"bytesSent"`
	LastAudioTsMS int64  `json:"lastAudioTsMs,omitempty"`
}

// StreamSnapshot is the top-level stats payload sent periodically to viewers
// over the control stream.
type StreamSnapshot struct {
	Timestamp   int64             `json:"ts"`
	UptimeMs    int64             `json:"uptimeMs"`
	Protocol    string            `json:"protocol"`
	Audio       []AudioTrackStats `json:"audio"`
	ViewerCount int               `json:"viewerCount"`
	Viewers     []ViewerStats     `json:"viewers,omitempty"`
}

// PipelineDebugStats holds low-level forwarding counters for diagnostics.
type PipelineDebugStats struct {
	AudioForwarded  int64         `json:"audioForwarded"`
	InfoForwarded   int64         `json:"infoForwarded"`
	LastAudioFwdPTS time.Duration `json:"lastAudioFwdPts"`
	AudioChanDepth  int           `json:"audioChanDepth"`
}

// DemuxStats accumulates stream telemetry from the demuxer in a
// concurrency-safe manner. It implements the demux.StatsRecorder interface
// and produces point-in-time Snapshots for the stats API.
type DemuxStats struct {
	mu         sync.RWMutex
	audioStats map[int]*audioTrackAccum
}

// audioTrackAccum is a per-track accumulator for audio frame statistics,
// using atomic counters for concurrent updates from the demuxer goroutine.
type audioTrackAccum struct {
	Frames          atomic.Int64
	Bytes           atomic.Int64
	PTSErrors       atomic.Int64
	Discontinuities atomic.Int64
	LastPTS         atomic.Int64
	AccumDuration   atomic.Int64

	infoMu sync.RWMutex
	info   media.AudioInfo
}

// ptsGapLimit is the PTS jump between consecutive frames treated as an
// error. DVD LPCM packets are ~10ms apart, so half a second is generous.
const ptsGapLimit = 500 * time.Millisecond

// NewDemuxStats creates a DemuxStats ready for use as a StatsRecorder.
func NewDemuxStats() *DemuxStats {
	return &DemuxStats{
		audioStats: make(map[int]*audioTrackAccum),
	}
}

func (ds *DemuxStats) track(trackIdx int) *audioTrackAccum {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	acc, ok := ds.audioStats[trackIdx]
	if !ok {
		acc = &audioTrackAccum{}
		ds.audioStats[trackIdx] = acc
	}
	return acc
}

// RecordPCMFrame records a PCM frame for the given track, creating the
// per-track accumulator on first use.
func (ds *DemuxStats) RecordPCMFrame(trackIdx int, bytes int64, pts time.Duration, sampleRate, channels, bitDepth int) {
	acc := ds.track(trackIdx)
	acc.Frames.Add(1)
	acc.Bytes.Add(bytes)

	stride := int64(channels * bitDepth / 8)
	if stride > 0 && sampleRate > 0 {
		frames := bytes / stride
		acc.AccumDuration.Add(frames * int64(time.Second) / int64(sampleRate))
	}

	lastPTS := acc.LastPTS.Swap(int64(pts))
	if lastPTS > 0 && pts > 0 {
		delta := pts - time.Duration(lastPTS)
		if delta < 0 || delta > ptsGapLimit {
			acc.PTSErrors.Add(1)
		}
	}
}

// RecordTrackFormat stores the latest announced format for a track.
func (ds *DemuxStats) RecordTrackFormat(trackIdx int, info media.AudioInfo) {
	acc := ds.track(trackIdx)
	acc.infoMu.Lock()
	acc.info = info
	acc.infoMu.Unlock()
}

// RecordDiscontinuity counts a dropped or undecodable packet on a track.
func (ds *DemuxStats) RecordDiscontinuity(trackIdx int) {
	ds.track(trackIdx).Discontinuities.Add(1)
}

// Snapshot produces a consistent point-in-time view of all track statistics.
func (ds *DemuxStats) Snapshot() []AudioTrackStats {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	tracks := make([]AudioTrackStats, 0, len(ds.audioStats))
	for idx, acc := range ds.audioStats {
		acc.infoMu.RLock()
		info := acc.info
		acc.infoMu.RUnlock()

		totalBytes := acc.Bytes.Load()
		var bitrateKbps float64
		if sec := time.Duration(acc.AccumDuration.Load()).Seconds(); sec > 0 {
			bitrateKbps = float64(totalBytes) * 8 / sec / 1000
		}

		tracks = append(tracks, AudioTrackStats{
			TrackIndex:      idx,
			SampleRate:      info.SampleRate,
			Channels:        info.Channels,
			BitDepth:        info.BitDepth,
			Emphasis:        info.Emphasis,
			Frames:          acc.Frames.Load(),
			BitrateKbps:     bitrateKbps,
			PTSErrors:       acc.PTSErrors.Load(),
			Discontinuities: acc.Discontinuities.Load(),
			TotalBytes:      totalBytes,
		})
	}
	return tracks
}
