package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"
	"peerlink/internal/core/session"
	"peerlink/internal/infrastructure/media"
	"peerlink/internal/infrastructure/monitoring"
	"peerlink/internal/infrastructure/repositories"
	signalclient "peerlink/internal/infrastructure/signal"
	rtc "peerlink/internal/infrastructure/webrtc"
	"peerlink/pkg/config"
	rlog "peerlink/pkg/logger"
	"peerlink/pkg/retry"
	"peerlink/pkg/tracing"

	"github.com/google/uuid"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/peerlink/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			log.Printf("Loaded config from: %s", path)
			break
		}
	}
	if err != nil {
		log.Printf("Could not load config from any path, using defaults")
		cfg = config.DefaultConfig()
	}

	logger := rlog.New(cfg.Logging.Level, cfg.Logging.Format).Sugar()
	defer logger.Sync()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "peerlink",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatalw("failed to initialize tracing", "error", err)
	}

	factory, err := repositories.NewRepositoryFactory(cfg, logger)
	if err != nil {
		logger.Fatalw("failed to initialize repositories", "error", err)
	}
	conns := factory.CreateConnectionsRepository()

	collector := monitoring.NewPrometheusCollector()

	health := monitoring.NewHealthChecker(logger)
	health.AddCheck("repositories", factory.HealthCheck, 2*time.Second)

	sendConstraints := domain.LocalTrackConstraints{
		Audio: domain.AudioConstraints{
			DeviceID: cfg.Media.Audio.DeviceID,
			Required: cfg.Media.Audio.Required,
		},
		DeviceVideo: domain.VideoConstraints{
			DeviceID: cfg.Media.DeviceVideo.DeviceID,
			Source:   domain.MediaSourceDevice,
			Width:    cfg.Media.DeviceVideo.Width,
			Height:   cfg.Media.DeviceVideo.Height,
			Required: cfg.Media.DeviceVideo.Required,
		},
		DisplayVideo: domain.VideoConstraints{
			Source: domain.MediaSourceDisplay,
			Width:  cfg.Media.DisplayVideo.Width,
			Height: cfg.Media.DisplayVideo.Height,
		},
		AudioEnabled:        cfg.Media.Audio.Enabled,
		DeviceVideoEnabled:  cfg.Media.DeviceVideo.Enabled,
		DisplayVideoEnabled: cfg.Media.DisplayVideo.Enabled,
	}
	recvConstraints := domain.RecvConstraints{
		AudioEnabled: cfg.Media.RecvAudio,
		VideoEnabled: cfg.Media.RecvVideo,
	}

	iceServers := make([]domain.IceServer, 0, len(cfg.WebRTC.ICEServers))
	for _, server := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, domain.IceServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	var mediaConns *rtc.MediaConnections
	registryFactory := func(native ports.NativeConnection, events chan<- domain.TrackEvent) ports.TrackRegistry {
		pion, ok := native.(*rtc.PionConnection)
		if !ok {
			logger.Fatalw("native connection is not pion-backed")
		}
		mc, mcErr := rtc.NewMediaConnections(pion.Pion(), sendConstraints, recvConstraints, events, logger)
		if mcErr != nil {
			logger.Fatalw("failed to build track registry", "error", mcErr)
		}
		mediaConns = mc
		return mc
	}

	sess, err := session.New(session.Config{
		ID:              domain.PeerID(uuid.New().String()),
		RemoteMember:    domain.MemberID(cfg.Member.RemoteMember),
		IceServers:      iceServers,
		ForceRelay:      cfg.WebRTC.ForceRelay,
		Native:          rtc.NewFactory(logger),
		Registry:        registryFactory,
		Media:           media.NewManager(logger),
		Connections:     conns,
		SendConstraints: sendConstraints,
		RecvConstraints: recvConstraints,
		Metrics:         collector,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalw("failed to create peer session", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Stats.Enabled {
		reporter := session.NewStatsReporter(sess, cfg.Stats.Interval, cfg.Stats.RatePerSecond, cfg.Stats.Burst)
		go reporter.Run(ctx)
	}

	var debugServer *monitoring.DebugServer
	if cfg.Monitoring.Enabled {
		debugServer = monitoring.NewDebugServer(cfg.Monitoring.Address, health, conns, logger)
		go func() {
			if err := debugServer.Start(); err != nil {
				logger.Errorw("debug server failed", "error", err)
			}
		}()
	}

	client := signalclient.NewClient(signalclient.Config{
		URL:     cfg.Signal.URL,
		Session: sess,
		Patcher: mediaConns,
		Tokens: signalclient.NewTokenMinter(
			cfg.Auth.JWTSecret,
			cfg.Auth.TokenTTL,
			domain.MemberID(cfg.Member.ID),
		),
		Retry: retry.Config{
			Enabled:      true,
			MaxAttempts:  cfg.Signal.Reconnect.MaxAttempts,
			InitialDelay: cfg.Signal.Reconnect.InitialDelay,
			MaxDelay:     cfg.Signal.Reconnect.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Logger:       logger,
		PingInterval: cfg.Signal.PingInterval,
		WriteTimeout: cfg.Signal.WriteTimeout,
	})

	clientDone := make(chan error, 1)
	go func() {
		clientDone <- client.Run(ctx)
	}()

	logger.Infow("peerlink client started",
		"member_id", cfg.Member.ID,
		"signal_url", cfg.Signal.URL,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infow("shutting down", "signal", sig)
	case err := <-clientDone:
		if err != nil && err != context.Canceled {
			logger.Errorw("signalling client exited", "error", err)
		}
	}

	cancel()
	if err := sess.Close(); err != nil {
		logger.Warnw("session close failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if debugServer != nil {
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("debug server shutdown failed", "error", err)
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("tracing shutdown failed", "error", err)
	}
	if err := factory.Close(); err != nil {
		logger.Warnw("repository close failed", "error", err)
	}
}
