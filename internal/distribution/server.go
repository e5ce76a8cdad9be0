package distribution

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/aria-media/aria/internal/certs"
	"github.com/aria-media/aria/internal/pcmwire"
)

// ALPN protocol identifier spoken by subscribers.
const ALPN = "aria-pcm"

// QUIC application error codes sent to clients via CloseWithError.
const (
	quicErrStreamNotFound quic.ApplicationErrorCode = 1
	quicErrControlStream  quic.ApplicationErrorCode = 2
	quicErrBadRequest     quic.ApplicationErrorCode = 4
	quicErrSetupFailed    quic.ApplicationErrorCode = 5
)

// StatsProvider is implemented by Pipeline to supply stream statistics for
// the viewer stats overlay.
type StatsProvider interface {
	StreamSnapshot() StreamSnapshot
}

// DebugProvider extends StatsProvider with lower-level pipeline and demuxer
// diagnostics.
type DebugProvider interface {
	StatsProvider
	PipelineDebug() PipelineDebugStats
	DemuxStats() *DemuxStats
}

// StreamInfo is the serializable summary of a live stream.
type StreamInfo struct {
	Key         string `json:"key"`
	Viewers     int    `json:"viewers"`
	AudioTracks int    `json:"audioTracks,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	UptimeMs    int64  `json:"uptimeMs,omitempty"`
}

// ServerConfig holds the configuration for the distribution Server.
type ServerConfig struct {
	Addr string
	Cert *certs.CertInfo
}

// streamResources bundles the relay and stats provider for a single live
// stream, ensuring both are registered and torn down as a unit.
type streamResources struct {
	relay    *Relay
	pipeline StatsProvider
}

// Server is the QUIC distribution server. It manages relays and pipelines
// and serves subscriber sessions speaking the pcmwire protocol.
type Server struct {
	log    *slog.Logger
	config ServerConfig

	mu      sync.RWMutex
	streams map[string]*streamResources
}

// NewServer creates a distribution Server with the given configuration.
// It returns an error if required fields are missing.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("distribution: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("distribution: Addr is required")
	}
	return &Server{
		log:     slog.With("component", "distribution"),
		config:  config,
		streams: make(map[string]*streamResources),
	}, nil
}

// RegisterStream creates a Relay for the given stream key and returns it.
// If the stream already has a relay, the existing one is returned.
func (s *Server) RegisterStream(streamKey string) *Relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	r := NewRelay()
	s.streams[streamKey] = &streamResources{relay: r}
	return r
}

// UnregisterStream removes the relay and pipeline for a stream key.
func (s *Server) UnregisterStream(streamKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamKey)
}

// SetPipeline associates a StatsProvider with a stream key. The stream
// must already be registered via RegisterStream.
func (s *Server) SetPipeline(streamKey string, p StatsProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		sr.pipeline = p
	}
}

// GetPipeline returns the StatsProvider for a stream key, or nil.
func (s *Server) GetPipeline(streamKey string) StatsProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.pipeline
	}
	return nil
}

// GetRelay returns the Relay for a stream key, or nil.
func (s *Server) GetRelay(streamKey string) *Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	return nil
}

// Streams returns summaries of all registered streams, enriched with
// pipeline snapshots where available.
func (s *Server) Streams() []StreamInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]StreamInfo, 0, len(s.streams))
	for key, sr := range s.streams {
		info := StreamInfo{
			Key:         key,
			Viewers:     sr.relay.ViewerCount(),
			AudioTracks: sr.relay.AudioTrackCount(),
		}
		if sr.pipeline != nil {
			snap := sr.pipeline.StreamSnapshot()
			info.Protocol = snap.Protocol
			info.UptimeMs = snap.UptimeMs
		}
		infos = append(infos, info)
	}
	return infos
}

// Start launches the QUIC listener and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) Start(ctx context.Context) error {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{s.config.Cert.TLSCert},
		NextProtos:   []string{ALPN},
	}

	listener, err := quic.ListenAddr(s.config.Addr, tlsConfig, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("distribution: listen %s: %w", s.config.Addr, err)
	}
	defer listener.Close()

	s.log.Info("listening", "addr", s.config.Addr, "alpn", ALPN)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn performs the hello handshake for one subscriber connection
// and runs its session until disconnect.
func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	remote := conn.RemoteAddr().String()
	s.log.Info("viewer connected", "remote", remote)

	control, err := conn.AcceptStream(ctx)
	if err != nil {
		s.log.Debug("accepting control stream", "remote", remote, "error", err)
		conn.CloseWithError(quicErrControlStream, "control stream error")
		return
	}

	// One buffered reader for the life of the control stream: a fresh
	// wrapper per read would swallow any bytes the peer pipelined behind
	// the message being read.
	controlReader := bufio.NewReader(control)

	msgType, payload, err := pcmwire.ReadControlMsg(controlReader)
	if err != nil || msgType != pcmwire.MsgClientHello {
		s.log.Warn("bad hello", "remote", remote, "error", err)
		conn.CloseWithError(quicErrBadRequest, "expected CLIENT_HELLO")
		return
	}
	hello, err := pcmwire.ParseClientHello(payload)
	if err != nil {
		s.log.Warn("malformed hello", "remote", remote, "error", err)
		conn.CloseWithError(quicErrBadRequest, "malformed CLIENT_HELLO")
		return
	}

	if !supportsVersion(hello.Versions) {
		s.log.Warn("version mismatch", "remote", remote, "versions", hello.Versions)
		conn.CloseWithError(quicErrSetupFailed, pcmwire.ErrVersionMismatch.Error())
		return
	}

	relay := s.GetRelay(hello.StreamKey)
	if relay == nil {
		s.log.Warn("stream not found", "remote", remote, "stream", hello.StreamKey)
		conn.CloseWithError(quicErrStreamNotFound, pcmwire.ErrUnknownStream.Error())
		return
	}

	if err := pcmwire.WriteControlMsg(control, pcmwire.MsgServerHello,
		pcmwire.SerializeServerHello(pcmwire.ServerHello{
			SelectedVersion: pcmwire.Version,
			TrackCount:      uint64(relay.AudioTrackCount()),
		})); err != nil {
		s.log.Debug("writing SERVER_HELLO", "remote", remote, "error", err)
		return
	}

	session := NewSession(SessionConfig{
		ID:            fmt.Sprintf("pcm-%s-%s", hello.StreamKey, remote),
		Control:       control,
		ControlReader: controlReader,
		OpenTrackStream: func(ctx context.Context) (io.WriteCloser, error) {
			return conn.OpenUniStreamSync(ctx)
		},
		Relay:         relay,
		StreamKey:     hello.StreamKey,
		StatsProvider: s.GetPipeline,
	})

	relay.AddViewer(session)
	defer relay.RemoveViewer(session.ID())

	if err := session.Run(ctx); err != nil {
		s.log.Debug("session ended", "session", session.ID(), "error", err)
	}
	conn.CloseWithError(0, "")
}

func supportsVersion(versions []uint64) bool {
	for _, v := range versions {
		if v == pcmwire.Version {
			return true
		}
	}
	return false
}
