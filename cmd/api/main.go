package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/config"
	"github.com/noah-isme/gema-messenger/internal/database"
	"github.com/noah-isme/gema-messenger/internal/handler"
	"github.com/noah-isme/gema-messenger/internal/linkpreview"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/policy"
	"github.com/noah-isme/gema-messenger/internal/realtime"
	"github.com/noah-isme/gema-messenger/internal/repository"
	"github.com/noah-isme/gema-messenger/internal/router"
	"github.com/noah-isme/gema-messenger/internal/sanitize"
	"github.com/noah-isme/gema-messenger/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer func() { _ = natsConn.Drain() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var relays []realtime.Relay
	var presenceStore realtime.PresenceStore
	if redisClient != nil {
		presenceStore = realtime.NewRedisPresenceStore(redisClient, cfg.ChannelBase)
	}
	// One relay carries events between nodes; NATS takes over from Redis pub/sub when configured.
	switch {
	case natsConn != nil:
		relays = append(relays, realtime.NewNATSRelay(natsConn, cfg.ChannelBase, logger))
	case redisClient != nil:
		relays = append(relays, realtime.NewRedisRelay(redisClient, cfg.ChannelBase, logger))
	}

	clk := clock.Real()
	bus := realtime.NewBus(logger, relays...)
	bus.Start(ctx)
	presence := realtime.NewPresenceTracker(bus, clk, presenceStore, logger)
	typing := realtime.NewTypingCoordinator(bus, clk, cfg.TypingTTL)

	validate := validator.New(validator.WithRequiredStructEnabled())

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	pollRepo := repository.NewPollRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)
	engine := repository.NewToggleEngine(db, cfg.PinLimit, clk.Now)
	authorizer := policy.NewAuthorizer(cfg.EditWindow)

	previewer := linkpreview.NewFetcher(linkpreview.Options{
		Timeout:   cfg.LinkPreviewTimeout,
		Cache:     redisClient,
		CacheBase: cfg.ChannelBase,
	}, logger)

	messagingService := service.NewMessagingService(
		conversationRepo, messageRepo, bus, authorizer,
		sanitize.NewAttachmentValidator(cfg.AttachmentMaxSizeMB), validate, clk, logger,
		service.WithLinkPreviewer(previewer),
	)
	interactionService := service.NewInteractionService(conversationRepo, messageRepo, interactionRepo, engine, bus, authorizer, clk, logger)
	pollService := service.NewPollService(conversationRepo, pollRepo, engine, bus, validate, clk, logger)
	scheduledService := service.NewScheduledService(conversationRepo, scheduledRepo, validate, clk, logger)
	realtimeService := service.NewRealtimeService(bus, presence, typing, conversationRepo, messagingService, interactionService, pollService, validate, logger)

	if _, err := messagingService.EnsureGeneral(ctx); err != nil {
		log.Fatalf("failed to provision general conversation: %v", err)
	}

	dispatcher := service.NewScheduledDispatcher(scheduledRepo, messagingService, clk, cfg.ScheduleInterval, logger)
	dispatcher.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowedOrigins: cfg.AllowedOrigins})
	router.Register(app, cfg, router.Dependencies{
		DB:                  db,
		Redis:               redisClient,
		ConversationHandler: handler.NewConversationHandler(messagingService, interactionService, pollService, logger),
		MessageHandler:      handler.NewMessageHandler(messagingService, interactionService, logger),
		PollHandler:         handler.NewPollHandler(pollService, logger),
		ScheduledHandler:    handler.NewScheduledHandler(scheduledService, dispatcher, logger),
		RealtimeHandler:     handler.NewRealtimeHandler(realtimeService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("messenger listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
