package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/backend"
	"github.com/gokatarajesh/exam-paper-studio/internal/config"
	"github.com/gokatarajesh/exam-paper-studio/internal/editor"
	"github.com/gokatarajesh/exam-paper-studio/internal/export"
	"github.com/gokatarajesh/exam-paper-studio/internal/export/docx"
	"github.com/gokatarajesh/exam-paper-studio/internal/export/pdf"
	"github.com/gokatarajesh/exam-paper-studio/internal/images"
	"github.com/gokatarajesh/exam-paper-studio/internal/keepalive"
	"github.com/gokatarajesh/exam-paper-studio/internal/logging"
	"github.com/gokatarajesh/exam-paper-studio/internal/metrics"
	"github.com/gokatarajesh/exam-paper-studio/internal/server"
	"github.com/gokatarajesh/exam-paper-studio/internal/session"
	"github.com/gokatarajesh/exam-paper-studio/internal/studio"
	ws "github.com/gokatarajesh/exam-paper-studio/pkg/http/ws"
)

// Application aggregates shared infrastructure (session store, hub, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	redis     *redis.Client
	http      *http.Server
	hub       *ws.Hub
	keepalive *keepalive.Scheduler
	bgCancels []context.CancelFunc
}

// New bootstraps the logger, session store, backend client and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backendClient := backend.NewClient(backend.Config{BaseURL: cfg.Backend.URL, Timeout: cfg.Backend.Timeout}, m, logger)
	checks := []server.Check{{Name: "backend", Ping: backendClient.Ping}}

	var (
		store       session.Store
		sweeper     keepalive.Sweeper
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = session.NewRedisStore(redisClient, cfg.Session.TTL)
		checks = append(checks, server.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("sessions stored in redis")
	} else {
		mem := session.NewMemoryStore(cfg.Session.TTL)
		store, sweeper = mem, mem
		logger.Warn().Msg("REDIS_ADDR not set; sessions kept in memory")
	}

	logo, err := loadLogo(cfg.Export.LogoPath)
	if err != nil {
		return nil, err
	}

	pdfOpts := pdf.DefaultOptions()
	pdfOpts.FontFamily = cfg.Export.FontFamily
	pdfOpts.FontSize = cfg.Export.FontSize
	pdfOpts.Margin = cfg.Export.MarginMM

	hub := ws.NewHub(logger, m.WSConnected)
	svc := studio.NewService(
		backendClient,
		images.NewResolver(backendClient, m, cfg.Images.Concurrency, logger),
		export.NewService(pdfOpts, docx.DefaultOptions(), m, logger),
		session.NewManager(store, logger),
		hub,
		studio.ServiceOptions{Logo: logo},
		logger,
	)

	page, err := editor.New()
	if err != nil {
		return nil, err
	}
	handler := studio.NewHandler(svc, hub, page, studio.HandlerOptions{
		MaxUploadBytes: cfg.Backend.MaxUploadBytes,
		SessionTTL:     cfg.Session.TTL,
		SecureCookie:   cfg.Session.SecureCookie,
		Upgrader:       server.NewWSUpgrader(cfg.CORS.AllowedOrigins),
	}, logger)

	scheduler, err := keepalive.New(keepalive.Config{
		PingSchedule:  cfg.Keepalive.PingSchedule,
		SweepSchedule: cfg.Keepalive.SweepSchedule,
		PingTimeout:   cfg.Keepalive.PingTimeout,
	}, backendClient, sweeper, logger)
	if err != nil {
		return nil, fmt.Errorf("keepalive: %w", err)
	}

	apiServer := server.NewHTTPServer(cfg, logger, reg, checks, handler.Routes)

	return &Application{
		cfg:       cfg,
		logger:    logger,
		redis:     redisClient,
		http:      apiServer,
		hub:       hub,
		keepalive: scheduler,
		bgCancels: make([]context.CancelFunc, 0, 1),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	// Hijacked sockets are not tracked by Shutdown.
	a.hub.Close()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}
	a.keepalive.Stop(shutdownCtx)

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	a.keepalive.Start()

	// Wake the backend straight away; the first instructor request otherwise pays
	// for the cold start.
	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancel)
	go func() {
		if err := a.keepalive.Ping(bgCtx); err != nil && err != context.Canceled {
			a.logger.Warn().Err(err).Msg("initial backend ping failed")
		}
	}()
}

// loadLogo reads the header logo as a data URL. An empty path means no logo.
func loadLogo(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read logo: %w", err)
	}
	if _, err := images.NormalizeBytes(raw); err != nil {
		return "", fmt.Errorf("logo %s: %w", path, err)
	}
	return images.EncodeDataURL(raw), nil
}
