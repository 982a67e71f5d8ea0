package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/voxlearn/voxlearn/api/config"
	"github.com/voxlearn/voxlearn/api/server"
	"github.com/voxlearn/voxlearn/api/services"
	"github.com/voxlearn/voxlearn/api/store"
	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/audio/kb"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/prefetch"
	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/conversation"
	sharedconfig "github.com/voxlearn/voxlearn/shared/config"
	"github.com/voxlearn/voxlearn/shared/db"
	"github.com/voxlearn/voxlearn/shared/httpclient"
	"github.com/voxlearn/voxlearn/shared/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the VoxLearn API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg := config.Load()
	slog.Info("starting voxlearn backend", "host", cfg.Server.Host, "port", cfg.Server.Port)

	if sharedconfig.GetEnvBool("VOXLEARN_TRACE_STDOUT", false) {
		shutdown, err := tracing.Init(tracing.Config{
			ServiceName: "voxlearn-api",
			Environment: sharedconfig.GetEnv("VOXLEARN_ENV", "development"),
		})
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = shutdown(shutdownCtx)
			}()
			slog.Info("stdout tracing enabled")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.Connect(ctx, db.Config{URL: cfg.Database.URL, Timezone: "UTC"})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return err
	}
	defer dbPool.Close()
	slog.Info("database connected")

	st := store.New(dbPool)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		return err
	}

	audioCache := cache.New(cfg.Cache.Dir,
		cache.WithMaxSize(cfg.Cache.MaxSizeBytes),
		cache.WithDefaultTTL(cfg.Cache.TTL))
	if err := audioCache.Initialize(); err != nil {
		slog.Error("failed to initialize audio cache", "error", err)
		return err
	}
	slog.Info("audio cache ready", "dir", cfg.Cache.Dir)

	upstreams := map[provider.ID]pool.Upstream{
		provider.VibeVoice:  {URL: cfg.TTS.VibeVoiceURL, SampleRate: provider.VibeVoice.SampleRate()},
		provider.Piper:      {URL: cfg.TTS.PiperURL, SampleRate: provider.Piper.SampleRate()},
		provider.Chatterbox: {URL: cfg.TTS.ChatterboxURL, SampleRate: provider.Chatterbox.SampleRate()},
	}
	ttsPool := pool.New(pool.Config{
		Upstreams:       upstreams,
		LiveSlots:       int64(cfg.TTS.LiveSlots),
		BackgroundSlots: int64(cfg.TTS.BackgroundSlots),
		RequestTimeout:  cfg.TTS.RequestTimeout,
	})

	prefetcher := prefetch.New(audioCache, ttsPool, prefetch.WithDelay(cfg.TTS.PrefetchDelay))
	kbMgr := kb.NewManager(cfg.Paths.KBDir, ttsPool)

	profileSvc := services.NewProfileService(st, ttsPool, cfg.Paths.SamplesDir)
	engine := services.NewPregenEngine(st, ttsPool, cfg.Paths.PregenDir)
	compSvc := services.NewComparisonService(st, ttsPool, profileSvc, cfg.Paths.CompareDir)
	speechSvc := services.NewSpeechService(audioCache, ttsPool)
	sessions := conversation.NewManager()

	// Jobs left in running by a previous process are parked as paused.
	if err := engine.Recover(ctx); err != nil {
		slog.Error("failed to recover jobs", "error", err)
		return err
	}

	go maintenanceLoop(ctx, cfg, sessions, prefetcher, audioCache)

	srv := server.NewServer(cfg, server.Dependencies{
		Store:       st,
		Cache:       audioCache,
		Pool:        ttsPool,
		Prefetcher:  prefetcher,
		KB:          kbMgr,
		Speech:      speechSvc,
		Profiles:    profileSvc,
		Pregen:      engine,
		Comparisons: compSvc,
		Sessions:    sessions,
		DBPing:      dbPool.Ping,
		Upstream: map[string]func(context.Context) error{
			"tts_vibevoice":  upstreamProbe(cfg.TTS.VibeVoiceURL),
			"tts_piper":      upstreamProbe(cfg.TTS.PiperURL),
			"tts_chatterbox": upstreamProbe(cfg.TTS.ChatterboxURL),
		},
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("server error", "error", err)
		return err
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	engine.Shutdown()
	if err := audioCache.Shutdown(); err != nil {
		slog.Error("cache shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// maintenanceLoop periodically evicts inactive user sessions, ended
// conversations, and finished prefetch job records.
func maintenanceLoop(ctx context.Context, cfg *config.Config, sessions *conversation.Manager, prefetcher *prefetch.Prefetcher, audioCache *cache.Store) {
	interval := cfg.Sessions.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.CleanupInactiveUserSessions(cfg.Sessions.MaxInactive); n > 0 {
				slog.Info("evicted inactive user sessions", "count", n)
			}
			if n := sessions.CleanupEndedSessions(); n > 0 {
				slog.Info("dropped ended conversations", "count", n)
			}
			prefetcher.CleanupCompletedJobs(time.Hour)
			if n := audioCache.EvictExpired(); n > 0 {
				slog.Info("evicted expired cache entries", "count", n)
			}
		}
	}
}

// upstreamProbe reports whether a TTS backend is reachable. Any HTTP
// response counts, synthesis endpoints commonly reject GET with 405.
func upstreamProbe(url string) func(context.Context) error {
	client := httpclient.New(httpclient.WithTimeout(5 * time.Second))
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}
