package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aria-media/aria/internal/certs"
	"github.com/aria-media/aria/internal/distribution"
	"github.com/aria-media/aria/internal/ingest"
	srtingest "github.com/aria-media/aria/internal/ingest/srt"
	"github.com/aria-media/aria/internal/pipeline"
	"github.com/aria-media/aria/internal/stream"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cert, err := loadCert()
	if err != nil {
		slog.Error("failed to set up certificate", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate ready",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	a := &app{
		mgr: stream.NewManager(nil),
	}

	quicAddr := envOr("QUIC_ADDR", ":4443")
	srtAddr := envOr("SRT_ADDR", ":6000")

	slog.Info("aria starting",
		"version", version,
		"srt", srtAddr,
		"quic", quicAddr,
		"cert_hash", cert.FingerprintBase64(),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Create the registry after the errgroup so the stream handler captures
	// the errgroup-derived context, ensuring streams shut down when any
	// component fails.
	a.registry = ingest.NewRegistry(func(key string, input io.Reader, format ingest.InputFormat) {
		a.handleNewStream(ctx, key, input, format)
	})
	a.srtCaller = srtingest.NewCaller(a.registry, nil)

	a.distSrv, err = distribution.NewServer(distribution.ServerConfig{
		Addr: quicAddr,
		Cert: cert,
	})
	if err != nil {
		slog.Error("failed to create distribution server", "error", err)
		os.Exit(1)
	}

	srtSrv := srtingest.NewServer(srtAddr, a.registry, nil)

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		return a.distSrv.Start(ctx)
	})

	if pull := os.Getenv("SRT_PULL"); pull != "" {
		key := envOr("SRT_PULL_KEY", "default")
		g.Go(func() error {
			return a.srtCaller.Pull(ctx, srtingest.PullRequest{
				Address:   pull,
				StreamKey: key,
			})
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	mgr       *stream.Manager
	registry  *ingest.Registry
	srtCaller *srtingest.Caller
	distSrv   *distribution.Server
}

func (a *app) handleNewStream(ctx context.Context, key string, input io.Reader, format ingest.InputFormat) {
	slog.Info("new stream from ingest", "key", key, "format", format)

	if _, created := a.mgr.Create(key); !created {
		slog.Warn("rejecting duplicate stream connection", "key", key)
		return
	}
	defer a.teardownStream(key)

	relay := a.distSrv.RegisterStream(key)

	p := pipeline.New(key, input, relay)
	p.SetProtocol("SRT")
	a.distSrv.SetPipeline(key, p)

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", key, "error", err)
	}
	slog.Info("stream ended", "key", key)
}

// teardownStream removes all resources for a stream across the distribution
// server and stream manager in a single call.
func (a *app) teardownStream(key string) {
	a.distSrv.UnregisterStream(key)
	a.mgr.Remove(key)
}

// loadCert loads a PEM pair from TLS_CERT/TLS_KEY, or generates a
// self-signed certificate when unset.
func loadCert() (*certs.CertInfo, error) {
	certFile := os.Getenv("TLS_CERT")
	keyFile := os.Getenv("TLS_KEY")
	if certFile != "" && keyFile != "" {
		return certs.Load(certFile, keyFile)
	}
	slog.Info("generating self-signed certificate")
	return certs.Generate(90 * 24 * time.Hour)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
