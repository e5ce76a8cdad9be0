package distribution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aria-media/aria/internal/media"
)

// Viewer is the interface that a viewer session must implement to receive
// frames from a Relay.
type Viewer interface {
	ID() string
	SendAudio(frame *media.PCMFrame)
	SendInfo(info media.AudioInfo)
	Stats() ViewerStats
}

// audioCacheSize is the number of recent PCM frames cached per track for
// replay to late-joining subscribers (~1 second at ~10ms per DVD packet).
const audioCacheSize = 100

// Relay is the fan-out hub for a single stream. It distributes PCM frames
// from the pipeline to all connected viewers, holds the current format of
// every track so new viewers can configure themselves immediately, and
// caches recent frames so new subscribers can pre-fill their buffers.
type Relay struct {
	log            *slog.Logger
	mu             sync.RWMutex
	sessions       map[string]Viewer
	trackCount     int
	trackInfo      map[int]media.AudioInfo
	trackInfoReady chan struct{}
	infoSet        bool

	audioMu    sync.RWMutex
	audioCache map[int][]*media.PCMFrame
}

// NewRelay creates a Relay with no viewers.
func NewRelay() *Relay {
	return &Relay{
		log:            slog.With("component", "relay"),
		sessions:       make(map[string]Viewer),
		trackInfo:      make(map[int]media.AudioInfo),
		trackInfoReady: make(chan struct{}),
		audioCache:     make(map[int][]*media.PCMFrame),
	}
}

// SetAudioTrackCount sets the number of audio tracks discovered by the
// demuxer, used to advertise available tracks during viewer setup.
func (r *Relay) SetAudioTrackCount(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackCount = count
	if count == 0 {
		r.trackCount = 1
	}
}

// AudioTrackCount returns the number of audio tracks, defaulting to 1.
func (r *Relay) AudioTrackCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.trackCount == 0 {
		return 1
	}
	return r.trackCount
}

// SetAudioInfo stores a track's format and forwards the announcement to
// every connected viewer. Called by the pipeline for the initial format and
// again on every mid-stream format change.
func (r *Relay) SetAudioInfo(info media.AudioInfo) {
	r.mu.Lock()
	r.trackInfo[info.TrackIndex] = info
	if !r.infoSet {
		r.infoSet = true
		close(r.trackInfoReady)
	}
	sessions := make([]Viewer, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	r.log.Debug("audio info set",
		"trackIndex", info.TrackIndex,
		"sampleRate", info.SampleRate,
		"channels", info.Channels,
		"bitDepth", info.BitDepth)

	for _, s := range sessions {
		s.SendInfo(info)
	}
}

// AudioInfo returns the stored format for a track, or sensible DVD defaults
// if no announcement has been seen yet.
func (r *Relay) AudioInfo(trackIndex int) media.AudioInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.trackInfo[trackIndex]; ok {
		return info
	}
	return media.AudioInfo{TrackIndex: trackIndex, SampleRate: 48000, Channels: 2, BitDepth: 16}
}

// WaitAudioInfo blocks until the first real format announcement arrives, or
// until ctx is cancelled. Returns true if info is ready.
func (r *Relay) WaitAudioInfo(ctx context.Context) bool {
	r.mu.RLock()
	if r.infoSet {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	select {
	case <-r.trackInfoReady:
		return true
	case <-ctx.Done():
		return false
	}
}

// AddViewer sends the viewer the current format of every known track, then
// registers it for live frame delivery. Announcements happen before
// registration so SetAudioInfo cannot interleave a duplicate.
func (r *Relay) AddViewer(session Viewer) {
	r.mu.Lock()
	for _, info := range r.trackInfo {
		session.SendInfo(info)
	}
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	r.log.Info("viewer added", "session", session.ID(), "viewers", r.ViewerCount())
}

// RemoveViewer unregisters a viewer by ID.
func (r *Relay) RemoveViewer(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.log.Info("viewer removed", "session", id, "viewers", r.ViewerCount())
}

// BroadcastAudio sends a PCM frame to all connected viewers and updates the
// per-track cache for late-joining subscriber replay.
func (r *Relay) BroadcastAudio(frame *media.PCMFrame) {
	r.audioMu.Lock()
	cache := r.audioCache[frame.TrackIndex]
	if len(cache) >= audioCacheSize {
		copy(cache, cache[1:])
		cache[len(cache)-1] = frame
	} else {
		cache = append(cache, frame)
	}
	r.audioCache[frame.TrackIndex] = cache
	r.audioMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		session.SendAudio(frame)
	}
}

// ReplayAudioToChannel sends the cached recent frames for the given track
// into a channel, pre-filling the subscriber's buffer so playback can start
// without waiting for the live edge. Returns the number of frames replayed.
func (r *Relay) ReplayAudioToChannel(trackIndex int, ch chan<- *media.PCMFrame) int {
	r.audioMu.RLock()
	defer r.audioMu.RUnlock()

	replayed := 0
	for _, frame := range r.audioCache[trackIndex] {
		select {
		case ch <- frame:
			replayed++
		default:
			return replayed
		}
	}
	return replayed
}

// ViewerCount returns the number of currently connected viewers.
func (r *Relay) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ViewerStatsAll returns delivery metrics for every connected viewer.
func (r *Relay) ViewerStatsAll() []ViewerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ViewerStats, 0, len(r.sessions))
	for _, s := range r.sessions {
		stats = append(stats, s.Stats())
	}
	return stats
}
