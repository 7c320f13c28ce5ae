package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"starmatch_server/config"
	"starmatch_server/controllers"
	"starmatch_server/logger"
	"starmatch_server/models"
	"starmatch_server/routes"
	"starmatch_server/services"
	"starmatch_server/socket"
)

// settingsCacheTTL bounds how stale the swipe settings document may be.
const settingsCacheTTL = time.Minute

func main() {
	if err := run(); err != nil {
		zlog.Error().Err(err).Msg("starmatch server exited with error")
		os.Exit(1)
	}
}

// engine bundles everything the HTTP layer needs plus what must be closed on exit.
type engine struct {
	swipes        *services.SwipeService
	relationships *services.RelationshipService
	ranking       *services.RankingService
	hub           *socket.Hub
	queue         *services.WorkQueue
	closers       []func()
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logger.New("starmatch-server", cfg.LogLevel)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(eng.closers) - 1; i >= 0; i-- {
			eng.closers[i]()
		}
	}()

	go eng.hub.Serve()

	// Initialize the router
	r := mux.NewRouter()
	r.Use(controllers.RecoveryMiddleware)
	r.Handle("/socket.io/", eng.hub)
	routes.RegisterRoutes(r)

	api := r.NewRoute().Subrouter()
	api.Use(controllers.TimeoutMiddleware(cfg.RequestTimeout + cfg.NotifyAwaitTimeout))
	routes.RegisterSwipeRoutes(api, controllers.NewSwipeController(eng.swipes, cfg.NotifyAwaitTimeout))
	routes.RegisterRelationshipRoutes(api, controllers.NewRelationshipController(eng.relationships))
	routes.RegisterRankingRoutes(api, controllers.NewRankingController(eng.ranking))

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	server := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		if err := eng.queue.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("notification queue did not drain")
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

func buildEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*engine, error) {
	eng := &engine{}

	var (
		store     services.FlagStore
		directory services.UserDirectory
		settings  services.SettingsProvider
		sink      services.ErrorLogSink = services.ZerologSink{Log: log}
	)

	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; state is lost on restart")
		store = services.NewInMemoryFlagStore()
		directory = services.NewInMemoryDirectory()
		settings = services.StaticSettings{Value: models.DefaultSettings()}
	default:
		log.Info().Str("region", cfg.AWSRegion).Msg("Initializing DynamoDB client...")
		awsCfg, err := services.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		dynamo := &services.DynamoService{Client: dynamodb.NewFromConfig(awsCfg), Log: log}
		store = services.NewDynamoFlagStore(dynamo, cfg.FlagsTable)
		directory = services.NewDynamoDirectory(dynamo, cfg.MembersTable)
		settings = services.NewDynamoSettingsProvider(dynamo, cfg.SettingsTable, settingsCacheTTL)

		if cfg.ErrorLogBucket != "" {
			sink = services.MultiSink{sink, services.NewS3ErrorSink(s3.NewFromConfig(awsCfg), cfg.ErrorLogBucket)}
		}
	}

	var locker services.KeyLocker
	switch cfg.LockDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		eng.closers = append(eng.closers, func() { _ = rdb.Close() })
		locker = services.NewRedisLocker(rdb, cfg.LockTTL, log)
	default:
		locker = services.NewLocalLocker()
	}

	eng.hub = socket.NewHub(log)
	eng.closers = append(eng.closers, func() { _ = eng.hub.Close() })
	events := services.MultiPublisher{eng.hub}
	if cfg.NatsURL != "" {
		nc, err := services.ConnectNats(cfg.NatsURL, "starmatch-server", log)
		if err != nil {
			return nil, err
		}
		eng.closers = append(eng.closers, func() { _ = nc.Drain() })
		events = append(events, services.NewNatsPublisher(nc, cfg.NatsSubjectPrefix))
	}

	if cfg.FCMProjectID == "" {
		log.Warn().Msg("FCM project not configured; push deliveries will fail")
	}
	eng.queue = services.NewWorkQueue(cfg.NotifyWorkers, cfg.NotifyQueueSize, log)
	eng.queue.Start()

	notifier := &services.NotificationService{
		Store:     store,
		Directory: directory,
		Settings:  settings,
		Push:      services.NewFCMProvider(cfg.FCMBaseURL, cfg.FCMProjectID, cfg.FCMAccessToken, cfg.FCMTimeout),
		Sink:      sink,
		Queue:     eng.queue,
		Log:       log.With().Str("component", "notifications").Logger(),
		Timeout:   cfg.FCMTimeout,
	}

	eng.swipes = &services.SwipeService{
		Store:     store,
		Directory: directory,
		Settings:  settings,
		Locker:    locker,
		Notifier:  notifier,
		Events:    events,
		Log:       log.With().Str("component", "swipes").Logger(),
	}
	eng.relationships = &services.RelationshipService{
		Store:     store,
		Directory: directory,
		Locker:    locker,
		Notifier:  notifier,
		Events:    events,
		Log:       log.With().Str("component", "relationships").Logger(),
	}
	eng.ranking = &services.RankingService{
		Store:    store,
		Settings: settings,
		Log:      log.With().Str("component", "ranking").Logger(),
	}
	return eng, nil
}
