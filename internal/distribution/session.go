package distribution

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aria-media/aria/internal/media"
	"github.com/aria-media/aria/internal/pcmwire"
)

// statsInterval is how often per-viewer stats snapshots are sent over the
// control stream.
const statsInterval = 1 * time.Second

// SessionConfig holds the wiring for a single viewer session. Control is
// the already-accepted bidirectional control stream (the server has read
// the CLIENT_HELLO from it); OpenTrackStream opens a fresh unidirectional
// stream for each subscribed track. ControlReader, when set, is the
// buffered reader the server already used for the hello exchange; the
// session must keep reading through it so bytes buffered during the hello
// are not lost.
type SessionConfig struct {
	ID              string
	Control         io.ReadWriter
	ControlReader   io.Reader
	OpenTrackStream func(ctx context.Context) (io.WriteCloser, error)
	Relay           *Relay
	StreamKey       string
	StatsProvider   func(streamKey string) StatsProvider
}

// subscription is one subscribed track within a session. Frames and format
// changes are queued here by the relay fan-out and drained by the track's
// writer goroutine.
type subscription struct {
	requestID  uint64
	trackIndex int
	frames     chan *media.PCMFrame
	infos      chan media.AudioInfo
	cancel     context.CancelFunc
}

// Session is a single subscriber connection. It serves the control stream
// (subscribe/unsubscribe), runs one writer goroutine per subscribed track,
// and implements the Viewer interface for relay fan-out.
type Session struct {
	id            string
	log           *slog.Logger
	control       io.ReadWriter
	controlReader io.Reader // persistent buffered reader for the control stream
	openTrack     func(ctx context.Context) (io.WriteCloser, error)
	relay         *Relay
	streamKey     string
	statsFor      func(streamKey string) StatsProvider

	mu   sync.RWMutex
	subs map[uint64]*subscription
	wg   sync.WaitGroup

	audioSent    atomic.Int64
	audioDropped atomic.Int64
	bytesSent    atomic.Int64
	lastAudioTs  atomic.Int64
}

// NewSession creates a Session from an accepted connection.
func NewSession(cfg SessionConfig) *Session {
	controlReader := cfg.ControlReader
	if controlReader == nil {
		controlReader = bufio.NewReader(cfg.Control)
	}
	return &Session{
		id:            cfg.ID,
		log:           slog.With("component", "session", "session", cfg.ID),
		control:       cfg.Control,
		controlReader: controlReader,
		openTrack:     cfg.OpenTrackStream,
		relay:         cfg.Relay,
		streamKey:     cfg.StreamKey,
		statsFor:      cfg.StatsProvider,
		subs:          make(map[uint64]*subscription),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SendAudio queues a frame for every subscription of the frame's track.
// Slow subscribers drop frames rather than stall the relay.
func (s *Session) SendAudio(frame *media.PCMFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.trackIndex != frame.TrackIndex {
			continue
		}
		select {
		case sub.frames <- frame:
		default:
			s.audioDropped.Add(1)
		}
	}
}

// SendInfo queues a format change for every subscription of the track.
func (s *Session) SendInfo(info media.AudioInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.trackIndex != info.TrackIndex {
			continue
		}
		select {
		case sub.infos <- info:
		default:
		}
	}
}

// Stats returns delivery metrics for this session.
func (s *Session) Stats() ViewerStats {
	return ViewerStats{
		ID:            s.id,
		AudioSent:     s.audioSent.Load(),
		AudioDropped:  s.audioDropped.Load(),
		BytesSent:     s.bytesSent.Load(),
		LastAudioTsMS: time.Duration(s.lastAudioTs.Load()).Milliseconds(),
	}
}

// Run serves the control stream until the peer disconnects or ctx is
// cancelled. It blocks; the caller is responsible for relay registration.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.wg.Wait()

	if s.statsFor != nil {
		s.wg.Add(1)
		go s.statsLoop(ctx)
	}

	for {
		msgType, payload, err := pcmwire.ReadControlMsg(s.controlReader)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("control stream: %w", err)
		}

		switch msgType {
		case pcmwire.MsgSubscribe:
			sub, err := pcmwire.ParseSubscribe(payload)
			if err != nil {
				return err
			}
			s.handleSubscribe(ctx, sub)

		case pcmwire.MsgUnsubscribe:
			unsub, err := pcmwire.ParseUnsubscribe(payload)
			if err != nil {
				return err
			}
			s.handleUnsubscribe(unsub.RequestID)

		default:
			s.log.Debug("ignoring control message", "type", msgType)
		}
	}
}

func (s *Session) handleSubscribe(ctx context.Context, req pcmwire.Subscribe) {
	if int(req.TrackIndex) >= s.relay.AudioTrackCount() {
		s.log.Warn("subscribe to unknown track", "trackIndex", req.TrackIndex)
		s.writeControl(pcmwire.MsgSubscribeError, pcmwire.SerializeSubscribeError(pcmwire.SubscribeError{
			RequestID:    req.RequestID,
			ErrorCode:    pcmwire.ErrCodeUnknownTrack,
			ReasonPhrase: pcmwire.ErrUnknownTrack.Error(),
		}))
		return
	}

	info := s.relay.AudioInfo(int(req.TrackIndex))
	s.writeControl(pcmwire.MsgSubscribeOK, pcmwire.SerializeSubscribeOK(pcmwire.SubscribeOK{
		RequestID: req.RequestID,
		Format:    pcmwire.FormatFromInfo(info),
	}))

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		requestID:  req.RequestID,
		trackIndex: int(req.TrackIndex),
		frames:     make(chan *media.PCMFrame, media.PCMBufferSize),
		infos:      make(chan media.AudioInfo, 4),
		cancel:     cancel,
	}

	// Pre-fill from the relay cache before the subscription goes live so
	// playback can start immediately.
	replayed := s.relay.ReplayAudioToChannel(sub.trackIndex, sub.frames)

	s.mu.Lock()
	if _, exists := s.subs[req.RequestID]; exists {
		s.mu.Unlock()
		cancel()
		return
	}
	s.subs[req.RequestID] = sub
	s.mu.Unlock()

	s.log.Info("track subscribed",
		"trackIndex", sub.trackIndex,
		"requestID", req.RequestID,
		"replayed", replayed)

	s.wg.Add(1)
	go s.runSubscription(subCtx, sub, info)
}

func (s *Session) handleUnsubscribe(requestID uint64) {
	s.mu.Lock()
	sub, ok := s.subs[requestID]
	if ok {
		delete(s.subs, requestID)
	}
	s.mu.Unlock()
	if ok {
		sub.cancel()
		s.log.Info("track unsubscribed", "requestID", requestID)
	}
}

// runSubscription owns one track data stream: it opens the stream, writes
// the header and current format, then forwards queued frames and format
// changes until the subscription is cancelled.
func (s *Session) runSubscription(ctx context.Context, sub *subscription, info media.AudioInfo) {
	defer s.wg.Done()

	stream, err := s.openTrack(ctx)
	if err != nil {
		s.log.Warn("opening track stream", "trackIndex", sub.trackIndex, "error", err)
		sub.cancel()
		return
	}
	defer stream.Close()

	tw := pcmwire.NewTrackWriter(stream)
	if err := tw.WriteStreamHeader(uint64(sub.trackIndex)); err != nil {
		return
	}
	if err := tw.WriteFormat(pcmwire.FormatFromInfo(info)); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case info := <-sub.infos:
			if err := tw.WriteFormat(pcmwire.FormatFromInfo(info)); err != nil {
				s.log.Debug("track stream closed", "trackIndex", sub.trackIndex, "error", err)
				return
			}

		case frame := <-sub.frames:
			if err := tw.WriteFrame(frame.PTS, frame.Duration, frame.Data); err != nil {
				s.log.Debug("track stream closed", "trackIndex", sub.trackIndex, "error", err)
				return
			}
			s.audioSent.Add(1)
			s.bytesSent.Add(int64(len(frame.Data)))
			s.lastAudioTs.Store(int64(frame.PTS))
		}
	}
}

// statsMessage is the JSON payload of a MsgStats control message.
type statsMessage struct {
	Type        string         `json:"type"`
	Stats       StreamSnapshot `json:"stats"`
	ViewerStats *ViewerStats   `json:"viewerStats,omitempty"`
}

func (s *Session) statsLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			provider := s.statsFor(s.streamKey)
			if provider == nil {
				continue
			}
			vs := s.Stats()
			payload, err := json.Marshal(statsMessage{
				Type:        "stats",
				Stats:       provider.StreamSnapshot(),
				ViewerStats: &vs,
			})
			if err != nil {
				continue
			}
			if err := s.writeControl(pcmwire.MsgStats, payload); err != nil {
				return
			}
		}
	}
}

func (s *Session) writeControl(msgType uint64, payload []byte) error {
	if err := pcmwire.WriteControlMsg(s.control, msgType, payload); err != nil {
		s.log.Debug("control write failed", "error", err)
		return err
	}
	return nil
}
