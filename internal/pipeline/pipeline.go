// Package pipeline orchestrates the demux-to-distribution data flow for a
// single stream, forwarding format announcements and PCM frames from the
// Demuxer to the Relay while collecting telemetry.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aria-media/aria/internal/demux"
	"github.com/aria-media/aria/internal/distribution"
	"github.com/aria-media/aria/internal/media"
)

// Broadcaster is the subset of distribution.Relay that the pipeline uses to
// fan out frames to viewers. Accepting an interface here decouples the
// pipeline from the concrete Relay type, making it testable with stubs.
type Broadcaster interface {
	BroadcastAudio(frame *media.PCMFrame)
	SetAudioInfo(info media.AudioInfo)
	SetAudioTrackCount(count int)
	AudioTrackCount() int
	ViewerCount() int
	ViewerStatsAll() []distribution.ViewerStats
}

// Pipeline bridges a single stream's Demuxer and Relay. It reads format
// announcements and PCM frames from the demuxer's output channels and
// broadcasts them to all viewers via the relay, while accumulating
// statistics for the control-stream stats overlay.
type Pipeline struct {
	log        *slog.Logger
	demuxer    *demux.Demuxer
	relay      Broadcaster
	streamKey  string
	demuxStats *distribution.DemuxStats
	startTime  time.Time
	protocol   string

	audioForwarded  atomic.Int64
	infoForwarded   atomic.Int64
	lastAudioFwdPTS atomic.Int64
	audioChanDepth  atomic.Int32
}

// New creates a Pipeline that reads demuxed frames from input and
// broadcasts them to all viewers via the relay.
func New(streamKey string, input io.Reader, relay Broadcaster) *Pipeline {
	p := &Pipeline{
		log:       slog.With("stream", streamKey),
		relay:     relay,
		streamKey: streamKey,
	}

	p.demuxer = demux.NewDemuxer(input, slog.With("component", "demuxer", "stream", streamKey))
	p.demuxStats = distribution.NewDemuxStats()
	p.demuxer.SetStats(p.demuxStats)
	p.startTime = time.Now()

	return p
}

// SetProtocol records the ingest protocol name (e.g. "SRT") for inclusion
// in the stats overlay sent to viewers.
func (p *Pipeline) SetProtocol(proto string) {
	p.protocol = proto
}

// StreamSnapshot returns a point-in-time snapshot of stream health metrics,
// suitable for JSON serialization and delivery over the control stream.
func (p *Pipeline) StreamSnapshot() distribution.StreamSnapshot {
	return distribution.StreamSnapshot{
		Timestamp:   time.Now().UnixMilli(),
		UptimeMs:    time.Since(p.startTime).Milliseconds(),
		Protocol:    p.protocol,
		Audio:       p.demuxStats.Snapshot(),
		ViewerCount: p.relay.ViewerCount(),
		Viewers:     p.relay.ViewerStatsAll(),
	}
}

// PipelineDebug returns low-level forwarding counters and channel depths.
func (p *Pipeline) PipelineDebug() distribution.PipelineDebugStats {
	return distribution.PipelineDebugStats{
		AudioForwarded:  p.audioForwarded.Load(),
		InfoForwarded:   p.infoForwarded.Load(),
		LastAudioFwdPTS: time.Duration(p.lastAudioFwdPTS.Load()),
		AudioChanDepth:  int(p.audioChanDepth.Load()),
	}
}

// DemuxStats returns the underlying DemuxStats collector.
func (p *Pipeline) DemuxStats() *distribution.DemuxStats {
	return p.demuxStats
}

// Run starts the demuxer and frame-forwarding loop. It blocks until the
// context is cancelled, the demuxer finishes, or the channels close.
func (p *Pipeline) Run(ctx context.Context) error {
	demuxErr := make(chan error, 1)
	go func() {
		err := p.demuxer.Run(ctx)
		p.log.Info("demuxer goroutine exited", "error", err)
		demuxErr <- err
	}()

	select {
	case <-p.demuxer.TracksReady():
		tracks := p.demuxer.AudioTracks()
		p.relay.SetAudioTrackCount(len(tracks))
		p.log.Info("audio tracks", "count", len(tracks))
	case err := <-demuxErr:
		p.log.Info("demuxer finished before track discovery", "error", err)
		return err
	case <-ctx.Done():
		return nil
	}

	lastTrackCount := p.relay.AudioTrackCount()

	audioCh := p.demuxer.Audio()
	infoCh := p.demuxer.Info()

	for {
		p.audioChanDepth.Store(int32(len(audioCh)))

		// Priority drain: format announcements must reach the relay before
		// the frames they describe, so the info channel wins over audio
		// under Go's random select scheduling.
		select {
		case info, ok := <-infoCh:
			if !ok {
				infoCh = nil
				continue
			}
			p.forwardInfo(info)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil

		case info, ok := <-infoCh:
			if !ok {
				infoCh = nil
				continue
			}
			p.forwardInfo(info)

		case frame, ok := <-audioCh:
			if !ok {
				err := <-demuxErr
				p.log.Info("audio channel closed", "error", err)
				return err
			}
			if newCount := len(p.demuxer.AudioTracks()); newCount > lastTrackCount {
				p.relay.SetAudioTrackCount(newCount)
				p.log.Info("audio tracks updated", "count", newCount)
				lastTrackCount = newCount
			}
			// The demuxer publishes a track's announcement before the frames
			// it applies to, so anything already buffered on the info channel
			// must reach the relay before this frame.
			p.drainInfo(infoCh)
			p.relay.BroadcastAudio(frame)
			p.audioForwarded.Add(1)
			p.lastAudioFwdPTS.Store(int64(frame.PTS))

		case err := <-demuxErr:
			p.log.Info("demuxer finished", "error", err)
			return err
		}
	}
}

func (p *Pipeline) forwardInfo(info media.AudioInfo) {
	p.relay.SetAudioInfo(info)
	p.infoForwarded.Add(1)
}

func (p *Pipeline) drainInfo(infoCh <-chan media.AudioInfo) {
	if infoCh == nil {
		return
	}
	for {
		select {
		case info, ok := <-infoCh:
			if !ok {
				return
			}
			p.forwardInfo(info)
		default:
			return
		}
	}
}
