package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/mediagate/mediagate/internal/admission"
	"github.com/mediagate/mediagate/internal/backend"
	"github.com/mediagate/mediagate/internal/cache"
	"github.com/mediagate/mediagate/internal/config"
	"github.com/mediagate/mediagate/internal/credentials"
	"github.com/mediagate/mediagate/internal/httpapi"
	"github.com/mediagate/mediagate/internal/logstore"
	"github.com/mediagate/mediagate/internal/orchestrator"
	"github.com/mediagate/mediagate/internal/progress"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 5 * time.Minute
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	fs := afero.NewOsFs()
	logs, err := logstore.NewStore(fs, cfg.LogFile, logstore.DefaultCapacity)
	if err != nil {
		return err
	}
	defer logs.Close()
	log.AddHook(&logstore.Hook{Store: logs})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := backend.NewExecRunner(
		rate.NewLimiter(rate.Limit(cfg.SpawnPerSecond), cfg.SpawnBurst), log)
	chain := backend.DefaultChain()

	prober := &orchestrator.CredentialProber{
		Runner:   runner,
		Template: chain[0],
		Timeout:  cfg.AttemptTimeout,
	}
	creds := credentials.NewStore(fs, cfg.CookieFiles, prober, cfg.CredentialCacheTTL, log)

	var store cache.Store
	if cfg.RedisURL != "" {
		redis, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.WithField("error", err.Error()).Warn("redis unreachable, using in-memory cache")
		} else {
			defer redis.Close()
			store = redis
		}
	}
	if store == nil {
		store = cache.NewMemory(cfg.CacheTTL, cfg.CacheCapacity)
	}

	gate := admission.NewGate(cfg.AdmissionWindow, cfg.AdmissionMax)
	go sweepLoop(ctx, gate)

	hub := progress.NewHub()
	orch := orchestrator.New(runner, chain, creds, store, cfg.AttemptTimeout, log)
	api := httpapi.NewServer(orch, gate, hub, logs, cfg.AllowedOrigins, log)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("gateway listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func sweepLoop(ctx context.Context, gate *admission.Gate) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gate.Sweep()
		}
	}
}
