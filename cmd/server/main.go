package main

import (
	"context"
	"os"
	"time"

	"whatsapp-bridge/internal/ai"
	"whatsapp-bridge/internal/api"
	"whatsapp-bridge/internal/config"
	"whatsapp-bridge/internal/crm"
	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/ingest"
	"whatsapp-bridge/internal/media"
	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/notify"
	"whatsapp-bridge/internal/outbound"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/session"
	"whatsapp-bridge/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadConfig()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := log.Logger

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	dialer, err := protocol.NewDialer()
	if err != nil {
		log.Fatal().Err(err).Msg("no protocol driver available")
	}

	hub := ws.NewHub()
	go hub.Run()

	mediaStore, err := media.NewStore(cfg.MediaDir, "/media")
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.MediaDir).Msg("media store init failed")
	}

	creds := session.NewCredentialStore(db, logger)
	manager := session.NewManager(db, dialer, creds, hub, nil, logger)

	outboundSvc := outbound.NewService(db, manager, hub, cfg.DefaultCountryCode, logger)
	crmBridge := crm.NewBridge(db, logger)

	var aiHook ingest.AIHook
	if cfg.AIEndpoint != "" {
		gen := ai.NewHTTPGenerator(cfg.AIEndpoint, cfg.AIToken)
		aiHook = ai.NewBridge(db, gen, outboundSvc, hub, logger)
	} else {
		logger.Info().Msg("AI endpoint not configured, auto replies disabled")
	}

	pipeline := ingest.NewPipeline(db, crmBridge, mediaStore, hub, aiHook, cfg.DefaultCountryCode, logger)
	manager.SetInbound(pipeline)

	notifySvc := notify.NewService(db, outboundSvc, manager, hub, cfg.DefaultCountryCode, logger)
	queue := notify.NewQueueProcessor(notifySvc, cfg.QueueBatchSize, cfg.QueueItemInterval, cfg.QueueRetryDelay, logger)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 30s", func() {
		if err := queue.ProcessQueue(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("queue cycle failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("scheduling queue processor failed")
	}
	if _, err := scheduler.AddFunc("@every 1h", func() {
		if err := pipeline.ExpireStatuses(); err != nil {
			logger.Warn().Err(err).Msg("status expiry failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("scheduling status expiry failed")
	}
	scheduler.Start()

	if err := manager.RestoreAll(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("session restore incomplete")
	}

	router := api.NewRouter(api.RouterDeps{
		Sessions:      api.NewSessionHandler(db, manager),
		Chats:         api.NewChatHandler(db, manager, pipeline),
		Messages:      api.NewMessageHandler(outboundSvc),
		Notifications: api.NewNotificationHandler(db, notifySvc),
		Hub:           hub,
		MediaDir:      mediaStore.Dir(),
		Metrics:       metrics.Handler(),
	})

	logger.Info().Str("port", cfg.Port).Msg("bridge listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
