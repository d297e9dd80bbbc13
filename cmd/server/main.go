package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"fundify-chat/internal/auth"
	"fundify-chat/internal/chat"
	"fundify-chat/internal/config"
	"fundify-chat/internal/logger"
	myMiddleware "fundify-chat/internal/middleware"
	"fundify-chat/internal/profile"
	"fundify-chat/internal/response"
	"fundify-chat/internal/storage"
)

func main() {
	// 1. Config & Flags
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logger.L()
		l.Fatal().Err(err).Msg("❌ Invalid configuration")
	}
	log := logger.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the store (Platform Layer)
	storeCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	store, err := storage.Open(storeCtx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("❌ Failed to open store")
	}
	defer store.Close()

	// 3. Broadcast bus: Redis when several instances share rooms
	var bus chat.Bus
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Address).Msg("❌ Failed to connect to Redis")
		}
		log.Info().Str("channel", cfg.Redis.Channel).Msg("✅ Connected to Redis")
		bus = chat.NewRedisBus(redisClient, cfg.Redis.Channel, log)
	} else {
		bus = chat.NewLocalBus(cfg.WS.SendBuffer)
	}
	defer bus.Close()

	g, gctx := errgroup.WithContext(ctx)

	// 4. Chat feature
	hub := chat.NewHub(log)
	chatService := chat.NewService(store, store, bus, hub, log)
	directory := chat.NewDirectory(store, chat.WithStrictAddresses(cfg.Chat.StrictAddresses))
	chatHandler := chat.NewHandler(gctx, directory, chatService, hub, cfg.Server.AllowedOrigins, chat.ClientConfig{
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		PingPeriod:     cfg.WS.PingPeriod(),
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, log)

	// 5. Profile feature
	profileHandler := profile.NewHandler(profile.NewService(store))

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public Routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, r, map[string]string{"status": "ok"})
	})

	// Chat & profile routes, behind JWT when a secret is configured
	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled() {
			tokens := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
			r.Use(myMiddleware.NewAuthMiddleware(tokens).Handle)
			log.Info().Msg("🔐 Wallet token auth enabled")
		}
		chatHandler.RegisterRoutes(r)
		profileHandler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the Hub Engines
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.Consume(gctx, bus)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.Store.Driver).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("🛑 Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("❌ Server stopped with error")
		return
	}
	log.Info().Msg("👋 Server stopped")
}
