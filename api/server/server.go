package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voxlearn/voxlearn/api/config"
	"github.com/voxlearn/voxlearn/api/server/handlers"
	"github.com/voxlearn/voxlearn/api/services"
	"github.com/voxlearn/voxlearn/api/store"
	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/audio/kb"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/prefetch"
	"github.com/voxlearn/voxlearn/conversation"
)

const ReadTimeout = 30 * time.Second

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

type Dependencies struct {
	Store       *store.Store
	Cache       *cache.Store
	Pool        *pool.Pool
	Prefetcher  *prefetch.Prefetcher
	KB          *kb.Manager
	Speech      *services.SpeechService
	Profiles    *services.ProfileService
	Pregen      *services.PregenEngine
	Comparisons *services.ComparisonService
	Sessions    *conversation.Manager
	DBPing      func(context.Context) error
	Upstream    map[string]func(context.Context) error
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	router := chi.NewRouter()

	router.Use(Recovery)
	router.Use(Logger)
	router.Use(Metrics)
	router.Use(CORS(cfg.Server.AllowedOrigins))

	healthH := handlers.NewHealthHandler(handlers.HealthHandlerConfig{
		DBPing:   deps.DBPing,
		Upstream: deps.Upstream,
	})
	router.Get("/health", healthH.Readiness)
	router.Get("/health/ready", healthH.Readiness)
	router.Get("/health/live", healthH.Liveness)
	router.Get("/health/full", healthH.Health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		speechH := handlers.NewSpeechHandler(deps.Speech, deps.Pool, deps.Cache)
		r.Post("/speech", speechH.Speak)
		r.Get("/speech/stats", speechH.Stats)

		cacheH := handlers.NewCacheHandler(deps.Cache)
		r.Get("/cache/stats", cacheH.Stats)
		r.Post("/cache/evict-expired", cacheH.EvictExpired)
		r.Delete("/cache", cacheH.Clear)

		prefetchH := handlers.NewPrefetchHandler(deps.Prefetcher)
		r.Post("/prefetch/topic", prefetchH.PrefetchTopic)
		r.Post("/prefetch/upcoming", prefetchH.PrefetchUpcoming)
		r.Get("/prefetch/jobs", prefetchH.List)
		r.Get("/prefetch/jobs/{id}", prefetchH.Progress)
		r.Delete("/prefetch/jobs/{id}", prefetchH.Cancel)

		kbH := handlers.NewKBHandler(deps.KB)
		r.Post("/kb/{moduleID}/prefetch", kbH.PrefetchModule)
		r.Delete("/kb/{moduleID}/prefetch", kbH.CancelModule)
		r.Get("/kb/{moduleID}/audio/{questionID}/{segment}", kbH.GetAudio)
		r.Post("/kb/{moduleID}/coverage", kbH.Coverage)
		r.Get("/kb/{moduleID}/manifest", kbH.Manifest)
		r.Get("/kb/feedback/{kind}", kbH.GetFeedbackAudio)
		r.Post("/kb/feedback/generate", kbH.GenerateFeedbackAudio)

		profilesH := handlers.NewProfilesHandler(deps.Profiles)
		r.Post("/profiles", profilesH.Create)
		r.Get("/profiles", profilesH.List)
		r.Post("/profiles/import", profilesH.Import)
		r.Get("/profiles/{id}", profilesH.Get)
		r.Patch("/profiles/{id}", profilesH.Update)
		r.Delete("/profiles/{id}", profilesH.Delete)
		r.Post("/profiles/{id}/default", profilesH.SetDefault)
		r.Post("/profiles/{id}/duplicate", profilesH.Duplicate)
		r.Get("/profiles/{id}/sample", profilesH.Sample)
		r.Get("/profiles/{id}/export", profilesH.Export)
		r.Post("/modules/{moduleID}/profile-bindings", profilesH.BindModule)
		r.Get("/modules/{moduleID}/profile-bindings", profilesH.ListBindings)
		r.Get("/modules/{moduleID}/profile", profilesH.Resolve)
		r.Delete("/profile-bindings/{bindingID}", profilesH.Unbind)

		jobsH := handlers.NewJobsHandler(deps.Pregen, deps.Store)
		r.Post("/jobs", jobsH.Create)
		r.Get("/jobs", jobsH.List)
		r.Get("/jobs/{id}", jobsH.Get)
		r.Delete("/jobs/{id}", jobsH.Delete)
		r.Post("/jobs/{id}/start", jobsH.Start)
		r.Post("/jobs/{id}/pause", jobsH.Pause)
		r.Post("/jobs/{id}/resume", jobsH.Resume)
		r.Post("/jobs/{id}/cancel", jobsH.Cancel)
		r.Post("/jobs/{id}/retry-failed", jobsH.RetryFailed)
		r.Get("/jobs/{id}/items", jobsH.Items)
		r.Get("/jobs/{id}/progress", jobsH.Progress)

		comparisonsH := handlers.NewComparisonsHandler(deps.Comparisons)
		r.Post("/comparisons", comparisonsH.Create)
		r.Get("/comparisons", comparisonsH.List)
		r.Get("/comparisons/{id}", comparisonsH.Get)
		r.Delete("/comparisons/{id}", comparisonsH.Delete)
		r.Post("/comparisons/{id}/generate", comparisonsH.Generate)
		r.Get("/comparisons/{id}/variants", comparisonsH.Variants)
		r.Get("/comparisons/{id}/summary", comparisonsH.Summary)
		r.Get("/comparison-variants/{variantID}/audio", comparisonsH.VariantAudio)
		r.Post("/comparison-variants/{variantID}/promote", comparisonsH.Promote)
		r.Post("/comparison-variants/{variantID}/rate", comparisonsH.Rate)

		sessionsH := handlers.NewSessionsHandler(deps.Sessions)
		r.Post("/sessions", sessionsH.CreateUserSession)
		r.Get("/sessions/stats", sessionsH.Stats)
		r.Get("/sessions/{userID}", sessionsH.GetUserSession)
		r.Post("/sessions/{userID}/heartbeat", sessionsH.Heartbeat)
		r.Post("/sessions/{userID}/conversations", sessionsH.StartConversation)
		r.Get("/conversations/{id}", sessionsH.GetConversation)
		r.Post("/conversations/{id}/user-turn", sessionsH.UserTurn)
		r.Post("/conversations/{id}/assistant-turn", sessionsH.AssistantTurn)
		r.Get("/conversations/{id}/messages", sessionsH.Messages)
		r.Post("/conversations/{id}/state", sessionsH.Transition)
		r.Post("/conversations/{id}/end", sessionsH.End)
		r.Get("/conversations/{id}/events", sessionsH.Events)
		r.Put("/conversations/{id}/topic", sessionsH.SetTopic)
		r.Put("/conversations/{id}/curriculum", sessionsH.SetCurriculum)
		r.Post("/conversations/{id}/signals", sessionsH.Signal)
	})

	return &Server{cfg: cfg, router: router}
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: ReadTimeout,
		// Audio payloads for long texts can take a while to stream out.
		WriteTimeout: 0,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
