package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"pulsechat/internal/chat"
	"pulsechat/internal/config"
	"pulsechat/internal/db"
	"pulsechat/internal/hub"
	"pulsechat/internal/middleware"
	"pulsechat/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, nil)
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)

	// Platform layer: the process either starts with everything it needs or
	// fails fast here. No degraded fallbacks.
	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// User feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// Realtime core
	chatRepo := chat.NewRepository(database.Conn)
	core := hub.New(logger, chatRepo, chatRepo, userRepo, hub.Options{
		MaxContentLength: cfg.MaxContentLength,
		RateMaxMessages:  cfg.RateLimit.MaxMessages,
		RateWindow:       cfg.RateLimit.Window,
		TypingExpiry:     cfg.TypingExpiry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := hub.NewReconciler(core, userRepo, logger,
		cfg.ReconcileInterval, cfg.OfflineThreshold, cfg.MetricsInterval)
	go reconciler.Run(ctx)

	chatHandler := chat.NewHandler(chatRepo, core)
	authMiddleware := middleware.NewAuthMiddleware(userService)
	authLimiter := middleware.NewRedisAttemptLimiter(redisClient,
		cfg.AuthLimit.MaxAttempts, cfg.AuthLimit.Window)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// Public
	r.Post("/register", middleware.AuthLimit(authLimiter, logger, userHandler.Register))
	r.Post("/login", middleware.AuthLimit(authLimiter, logger, userHandler.Login))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","connected_users":%d}`, core.Presence().Count())
	})

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/users/online", userHandler.OnlineUsers)
		r.Get("/api/users/{id}", userHandler.GetUser)

		r.Get("/ws", core.ServeWS)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Post("/api/conversations/{id}/participants", chatHandler.AddParticipant)
		r.Post("/api/conversations/{id}/leave", chatHandler.LeaveConversation)
		r.Get("/api/messages", chatHandler.GetChatHistory)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
