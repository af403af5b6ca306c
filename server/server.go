package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"mixfm/cache"
	"mixfm/config"
	"mixfm/core/auth"
	"mixfm/core/engine"
	"mixfm/core/feedback"
	"mixfm/core/library"
	"mixfm/core/player"
	"mixfm/db"
	"mixfm/logger"
	"mixfm/repository"
	"mixfm/storage"
)

// Start wires every component and runs the HTTP server until SIGINT or
// SIGTERM, then drains in-flight requests.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})
	auth.SetSecret(cfg.JWTSecret)

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	affinityRepo := repository.NewMySQLAffinityRepository()
	queueRepo := repository.NewMySQLQueueRepository()
	unavailableRepo := repository.NewMySQLUnavailableRepository()

	eng := engine.NewEngine(cfg, trackRepo, affinityRepo, queueRepo)
	eng.SetCache(cache.NewRedisQueueCache(db.RedisClient))

	fb := feedback.NewService(affinityRepo, trackRepo)

	statusStore := library.NewStatusStore(db.RedisClient)
	syncer := library.NewSyncer(library.NoopProvider(), trackRepo, affinityRepo, unavailableRepo, statusStore)

	var artwork *storage.ArtworkStore
	if cfg.MinioEndpoint != "" {
		store, err := storage.NewArtworkStore(cfg)
		if err != nil {
			logger.Warn("Artwork storage unavailable, covers disabled", logger.ErrorField(err))
		} else {
			artwork = store
			syncer.SetArtworkMirror(store)
		}
	}

	hub := player.NewHub()
	go hub.Run()
	defer hub.Stop()

	if stop, err := cfg.WatchEnv(".env"); err != nil {
		logger.Warn("Config watch disabled", logger.ErrorField(err))
	} else {
		defer stop()
	}

	apiHandler := NewAPIHandler(cfg, userRepo, eng, fb, syncer, hub, artwork)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Auth
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/user/profile", apiHandler.AuthMiddleware(apiHandler.ProfileHandler)).Methods(http.MethodGet)

	// Queue
	router.HandleFunc("/api/queue", apiHandler.AuthMiddleware(apiHandler.QueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.AuthMiddleware(apiHandler.ClearQueueHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/queue/next", apiHandler.AuthMiddleware(apiHandler.NextHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/skip", apiHandler.AuthMiddleware(apiHandler.SkipHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/regenerate", apiHandler.AuthMiddleware(apiHandler.RegenerateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlist/generate", apiHandler.AuthMiddleware(apiHandler.GenerateHandler)).Methods(http.MethodGet)

	// Feedback
	router.HandleFunc("/api/feedback", apiHandler.AuthMiddleware(apiHandler.FeedbackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/feedback/stats", apiHandler.AuthMiddleware(apiHandler.FeedbackStatsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/feedback/{trackId}", apiHandler.AuthMiddleware(apiHandler.GetFeedbackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/feedback/{trackId}", apiHandler.AuthMiddleware(apiHandler.RemoveFeedbackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playback/event", apiHandler.AuthMiddleware(apiHandler.PlaybackEventHandler)).Methods(http.MethodPost)

	// Library
	router.HandleFunc("/api/library/songs", apiHandler.AuthMiddleware(apiHandler.LibrarySongsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/library/liked", apiHandler.AuthMiddleware(apiHandler.LikedTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/library/disliked", apiHandler.AuthMiddleware(apiHandler.DislikedTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/library/stats", apiHandler.AuthMiddleware(apiHandler.LibraryStatsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/library/sync", apiHandler.AuthMiddleware(apiHandler.SyncLibraryHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/library/sync/status", apiHandler.AuthMiddleware(apiHandler.SyncStatusHandler)).Methods(http.MethodGet)

	// Artwork and push
	router.HandleFunc("/covers/{name}", apiHandler.CoverHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/player", apiHandler.PlayerWSHandler)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", logger.ErrorField(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
