// Package demux splits a DVD program stream into PCM audio frames. It drives
// the MPEG-PS demuxer, peels the private_stream_1 substream framing, and runs
// one LPCM decoder per discovered audio track.
package demux

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aria-media/aria/internal/lpcm"
	"github.com/aria-media/aria/internal/media"
	"github.com/aria-media/aria/internal/mpegps"
)

// DVD-Video substream ID range for linear PCM audio within private_stream_1.
const (
	substreamLPCMFirst = 0xA0
	substreamLPCMLast  = 0xA7
)

// AudioTrackInfo associates a DVD substream ID with its zero-based track
// index, used to distinguish the up-to-eight LPCM streams a title can carry.
type AudioTrackInfo struct {
	SubstreamID uint8
	TrackIndex  int
}

// StatsRecorder is the interface accepted by Demuxer for recording stream
// telemetry. The distribution layer's DemuxStats implements this interface.
type StatsRecorder interface {
	RecordPCMFrame(trackIdx int, bytes int64, pts time.Duration, sampleRate, channels, bitDepth int)
	RecordTrackFormat(trackIdx int, info media.AudioInfo)
	RecordDiscontinuity(trackIdx int)
}

// Demuxer splits an MPEG program stream into LPCM audio frames, one decoder
// per substream. Parsed output is delivered through the channels obtained
// via the Audio and Info methods.
type Demuxer struct {
	log         *slog.Logger
	reader      io.Reader
	audioCh     chan *media.PCMFrame
	infoCh      chan media.AudioInfo
	decoders    map[uint8]*lpcm.Decoder
	tracks      map[uint8]int
	trackOrder  []AudioTrackInfo
	tracksReady chan struct{}
	readyDone   bool
	stats       StatsRecorder

	// runCtx is Run's context, held so decoder announce callbacks can
	// bail out of a blocked info send when Run is cancelled.
	runCtx context.Context
}

// NewDemuxer creates a Demuxer that reads an MPEG program stream from r.
// Call Run to begin demuxing and read from the Audio and Info channels.
// If log is nil, slog.Default() is used.
func NewDemuxer(r io.Reader, log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Demuxer{
		log:         log.With("component", "demux"),
		reader:      r,
		audioCh:     make(chan *media.PCMFrame, media.PCMBufferSize),
		infoCh:      make(chan media.AudioInfo, 8),
		decoders:    make(map[uint8]*lpcm.Decoder),
		tracks:      make(map[uint8]int),
		tracksReady: make(chan struct{}),
	}
}

// Audio returns the channel on which decoded PCM frames are delivered.
func (d *Demuxer) Audio() <-chan *media.PCMFrame {
	return d.audioCh
}

// Info returns the channel on which track format announcements are
// delivered. An announcement for a track always precedes that track's
// first frame, and precedes the next frame after any format change.
func (d *Demuxer) Info() <-chan media.AudioInfo {
	return d.infoCh
}

// AudioTracks returns metadata for all discovered audio tracks.
func (d *Demuxer) AudioTracks() []AudioTrackInfo {
	return d.trackOrder
}

// TracksReady returns a channel that is closed once the first LPCM
// substream has been discovered.
func (d *Demuxer) TracksReady() <-chan struct{} {
	return d.tracksReady
}

// SetStats attaches a StatsRecorder that receives telemetry callbacks for
// every frame and format change processed.
func (d *Demuxer) SetStats(s StatsRecorder) {
	d.stats = s
}

// Run starts the demuxing loop, reading the program stream until EOF or
// context cancellation. Run closes the output channels on return.
func (d *Demuxer) Run(ctx context.Context) error {
	defer close(d.audioCh)
	defer close(d.infoCh)

	d.runCtx = ctx
	dmx := mpegps.NewDemuxer(ctx, d.reader)

	for {
		data, err := dmx.NextData()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if data.PES == nil || data.PES.Header.StreamID != mpegps.StreamIDPrivateStream1 {
			continue
		}
		d.handlePrivateStream1(ctx, data.PES)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handlePrivateStream1 peels the DVD substream framing: one substream ID
// byte, one frame count byte, then the framed LPCM packet.
func (d *Demuxer) handlePrivateStream1(ctx context.Context, pes *mpegps.PESData) {
	if len(pes.Data) < 2 {
		return
	}
	sub := pes.Data[0]
	if sub < substreamLPCMFirst || sub > substreamLPCMLast {
		return
	}
	packet := pes.Data[2:]

	trackIdx, ok := d.tracks[sub]
	if !ok {
		trackIdx = d.registerTrack(sub)
	}

	pts := lpcm.NoTimestamp
	if pes.Header.OptionalHeader != nil && pes.Header.OptionalHeader.PTS != nil {
		pts = pes.Header.OptionalHeader.PTS.Duration()
	}

	bufs, err := d.decoders[sub].DecodeFramed(packet, pts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.log.Warn("dropping undecodable packet", "substream", sub, "error", err)
		if d.stats != nil {
			d.stats.RecordDiscontinuity(trackIdx)
		}
		return
	}

	for _, buf := range bufs {
		frame := &media.PCMFrame{
			PTS:        buf.Timestamp,
			Duration:   buf.Duration,
			Data:       buf.Data,
			SampleRate: int(buf.Format.SampleRate),
			Channels:   int(buf.Format.Channels),
			BitDepth:   int(buf.Format.OutWidth),
			TrackIndex: trackIdx,
		}

		if d.stats != nil {
			d.stats.RecordPCMFrame(trackIdx, int64(len(frame.Data)), frame.PTS,
				frame.SampleRate, frame.Channels, frame.BitDepth)
		}

		select {
		case d.audioCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// registerTrack allocates a track index for a newly seen substream and
// wires up its decoder. The decoder's announce callback publishes format
// changes on the info channel before the frames they apply to.
func (d *Demuxer) registerTrack(sub uint8) int {
	trackIdx := len(d.trackOrder)
	d.tracks[sub] = trackIdx
	d.trackOrder = append(d.trackOrder, AudioTrackInfo{
		SubstreamID: sub,
		TrackIndex:  trackIdx,
	})
	d.log.Info("found LPCM substream", "substream", sub, "trackIndex", trackIdx)

	d.decoders[sub] = lpcm.NewDecoder(func(f lpcm.Format) error {
		info := media.AudioInfo{
			TrackIndex:   trackIdx,
			SampleRate:   int(f.SampleRate),
			Channels:     int(f.Channels),
			BitDepth:     int(f.OutWidth),
			Emphasis:     f.Emphasis,
			Mute:         f.Mute,
			DynamicRange: f.DynamicRange,
		}
		d.log.Info("track format",
			"trackIndex", trackIdx,
			"sampleRate", info.SampleRate,
			"channels", info.Channels,
			"bitDepth", info.BitDepth)
		if d.stats != nil {
			d.stats.RecordTrackFormat(trackIdx, info)
		}
		select {
		case d.infoCh <- info:
		case <-d.runCtx.Done():
			return d.runCtx.Err()
		}
		return nil
	})

	if !d.readyDone {
		d.readyDone = true
		close(d.tracksReady)
	}
	return trackIdx
}
