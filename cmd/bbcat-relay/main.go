package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/guilhermesalviano/bbcat/internal/auth"
	"github.com/guilhermesalviano/bbcat/internal/camera"
	"github.com/guilhermesalviano/bbcat/internal/config"
	"github.com/guilhermesalviano/bbcat/internal/httpserver"
	"github.com/guilhermesalviano/bbcat/internal/metrics"
	"github.com/guilhermesalviano/bbcat/internal/signaling"
	"github.com/guilhermesalviano/bbcat/internal/stream"
	"github.com/guilhermesalviano/bbcat/internal/telemetry"
	"github.com/guilhermesalviano/bbcat/internal/upstream"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting bbcat-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"upstream_host", cfg.UpstreamURL.Host,
		"stream_path", cfg.StreamPath,
		"override_path", cfg.OverridePath,
		"auth_mode", cfg.AuthMode,
		"tls", cfg.TLSEnabled(),
		"camera_capture", len(cfg.CameraCommand) > 0,
	)
	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("invalid ICE server configuration; /webrtc/ice and /readyz will report 503", "err", err)
	}
	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)

	r, err := newRelay(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	if err != nil {
		logger.Error("failed to configure relay", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.run(ctx, ln); err != nil {
		logger.Error("relay exited", "err", err)
		os.Exit(1)
	}
}

// relay owns every long-lived component of one process.
type relay struct {
	cfg       config.Config
	log       *slog.Logger
	srv       *httpserver.Server
	forwarder *stream.Forwarder
	signaling *signaling.Server
}

func newRelay(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*relay, error) {
	m := metrics.New()
	srv := httpserver.New(cfg, logger, build, m)

	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("signaling auth: %w", err)
	}

	streamURL := cfg.StreamURL()
	overrideURL, err := upstream.OverrideURL(streamURL, cfg.OverridePath)
	if err != nil {
		return nil, err
	}

	client := upstream.New(upstream.Options{
		Logger:           logger.With("component", "upstream"),
		SnapshotTimeout:  cfg.SnapshotTimeout,
		SnapshotMaxBytes: cfg.SnapshotMaxBytes,
		ProbeTimeout:     cfg.ProbeTimeout,
		OverrideTimeout:  cfg.OverrideTimeout,
	})
	forwarder := stream.NewForwarder(client, stream.Options{
		Logger:      logger.With("component", "stream"),
		Metrics:     m,
		Predicate:   stream.MarkerPredicate([]byte(cfg.OverrideMarker), cfg.ScanWindowBytes),
		OverrideURL: overrideURL,
	})

	mux := srv.Mux()
	(&stream.Handlers{
		Forwarder: forwarder,
		Client:    client,
		Metrics:   m,
		Logger:    logger,
		StreamURL: streamURL,
	}).RegisterRoutes(mux)
	(&telemetry.Handler{
		Collector: telemetry.NewHostCollector(logger.With("component", "telemetry"), cfg.ThermalZonePath),
	}).RegisterRoutes(mux)
	(&camera.Handlers{
		Capturer: camera.CommandCapturer{Command: cfg.CameraCommand, Timeout: cfg.CameraTimeout},
		Logger:   logger.With("component", "camera"),
		Metrics:  m,
	}).RegisterRoutes(mux)

	hub := signaling.NewHub(logger.With("component", "signaling"), m)
	sig := signaling.NewServer(signaling.ConfigFrom(cfg, hub, verifier, logger.With("component", "signaling"), m))
	sig.RegisterRoutes(mux)
	// Hijacked sockets are not drained by http.Server.Shutdown.
	srv.RegisterOnShutdown(sig.Close)

	return &relay{
		cfg:       cfg,
		log:       logger,
		srv:       srv,
		forwarder: forwarder,
		signaling: sig,
	}, nil
}

// run serves on ln until ctx is cancelled or the server fails, then shuts
// down within cfg.ShutdownTimeout.
func (r *relay) run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := r.srv.Serve(ln); err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			r.log.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
		defer cancel()
		if err := r.srv.Shutdown(shutdownCtx); err != nil {
			// Open /stream responses never go idle.
			r.log.Warn("http server shutdown timed out; closing remaining connections", "err", err)
			_ = r.srv.Close()
		}
		r.signaling.Close()
		r.forwarder.Wait()
		return nil
	})

	return g.Wait()
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// ldflags win; fall back to VCS stamps for `go build` from a checkout.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
