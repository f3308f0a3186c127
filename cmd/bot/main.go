package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-bot/internal/api/http"
	"github.com/spec-kit/helpdesk-bot/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-bot/internal/auth"
	"github.com/spec-kit/helpdesk-bot/internal/blocks"
	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/membership"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/persistence"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	"github.com/spec-kit/helpdesk-bot/internal/router"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/internal/slackbot"
	"github.com/spec-kit/helpdesk-bot/internal/worker"
)

func main() {
	var issueToken string
	flagSet := pflag.NewFlagSet("helpdesk-bot", pflag.ContinueOnError)
	flagSet.StringVar(&issueToken, "issue-token", "", "print an operator API token for the given id and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("invalid flags: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	if issueToken != "" {
		token, expires, err := tokens.GenerateToken(issueToken, auth.SubjectOperator)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Printf("%s\n# expires %s\n", token, expires.Format(time.RFC3339))
		return
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	location, err := cfg.Schedule.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}
	debug := cfg.Logger.Level == "debug"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	var redis *persistence.Redis
	if cfg.Redis.Enabled() {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
	}

	store, closeStore, err := openStore(ctx, cfg, redis, logger)
	if err != nil {
		logger.Fatal("failed to open snapshot store", zap.Error(err))
	}
	defer closeStore()

	tickets := registry.New()
	board := leaderboard.New()
	ser := serializer.New(cfg.Schedule.SerializerShards, cfg.Schedule.SerializerQueueDepth, logger)
	roster := membership.NewCache()
	dispatcher := events.NewInMemoryDispatcher(logger)
	slackClient := slackbot.NewClient(cfg.Slack, debug, logger)
	links := blocks.Links{WorkspaceDomain: cfg.Slack.WorkspaceDomain}

	persister := persistence.NewPersister(persistence.PersisterDependencies{
		Store:       store,
		Serializer:  ser,
		Registry:    tickets,
		Leaderboard: board,
		Logger:      logger,
	})
	loadOpts := persistence.LoadOptions{}
	if cfg.Schedule.RollingFromLog {
		since := leaderboard.StartOfDay(time.Now().In(location))
		loadOpts.RollingFrom = &since
	}
	if _, err := persister.Load(ctx, loadOpts); err != nil {
		logger.Fatal("failed to load snapshot", zap.Error(err))
	}

	notifications := service.NewNotificationService(dispatcher, persister, metrics, logger)
	notifications.RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		Registry:    tickets,
		Leaderboard: board,
		Messenger:   slackClient,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Config: service.TicketConfig{
			HelpChannel:    cfg.Slack.HelpChannel,
			TicketsChannel: cfg.Slack.TicketsChannel,
			FAQURL:         cfg.Slack.FAQURL,
			Links:          links,
			CallTimeout:    cfg.Slack.CallTimeout(),
		},
	})
	homeService := service.NewHomeService(service.HomeDependencies{
		Registry:      tickets,
		Leaderboard:   board,
		Messenger:     slackClient,
		RosterChannel: cfg.Slack.StaffRosterChannel(),
		Links:         links,
		CallTimeout:   cfg.Slack.CallTimeout(),
		Location:      location,
		Logger:        logger,
	})

	var dedup router.Deduplicator = router.NewMemoryDeduplicator(cfg.Schedule.DedupTTL())
	if redis != nil {
		dedup = router.NewRedisDeduplicator(redis.Client, cfg.App.Name+":dedup:", cfg.Schedule.DedupTTL())
	}

	eventRouter := router.New(router.Dependencies{
		Config: router.Config{
			HelpChannel:    cfg.Slack.HelpChannel,
			TicketsChannel: cfg.Slack.TicketsChannel,
		},
		Dedup:      dedup,
		Gate:       auth.NewGate(roster, slackClient, cfg.Slack.CallTimeout(), logger),
		Serializer: ser,
		Registry:   tickets,
		Lifecycle:  ticketService,
		Home:       homeService,
		Metrics:    metrics,
		Logger:     logger,
	})

	jobCtx, stopJobs := context.WithCancel(ctx)
	pool := worker.NewPool(logger)
	pool.Go(jobCtx, worker.MembershipRefreshJob(roster, slackClient, cfg.Slack.StaffRosterChannel(),
		cfg.Schedule.MembershipRefreshInterval(), cfg.Slack.CallTimeout(), logger))
	pool.Go(jobCtx, worker.SnapshotJob(persister, cfg.Schedule.SaveInterval()))
	broadcaster := worker.NewBroadcaster(ser, board, slackClient, dispatcher, cfg.Slack.TicketsChannel, cfg.Slack.CallTimeout(), logger)
	pool.Go(jobCtx, broadcaster.Job(cfg.Schedule.LeaderboardInterval()))

	persistDone := make(chan struct{})
	persistCtx, stopPersister := context.WithCancel(ctx)
	go func() {
		defer close(persistDone)
		persister.Run(persistCtx)
	}()

	listenerCtx, stopListener := context.WithCancel(ctx)
	listenerDone := make(chan struct{})
	if cfg.Slack.AppToken != "" {
		listener := slackbot.NewListener(slackClient.API(), eventRouter, debug, logger)
		go func() {
			defer close(listenerDone)
			if err := listener.Run(listenerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("socket mode listener stopped", zap.Error(err))
			}
		}()
	} else {
		close(listenerDone)
		logger.Info("no app token; receiving events over http only")
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var slackHandler *handlers.SlackHandler
	if cfg.Slack.SigningSecret != "" {
		slackHandler = handlers.NewSlackHandler(cfg.Slack.SigningSecret, eventRouter, logger)
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"store": store,
		}),
		Slack: slackHandler,
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Registry:    tickets,
			Leaderboard: board,
			Saver:       persister,
			Metrics:     metrics,
			Location:    location,
		}),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	// intake stops before the serializer drains; the persister saves last
	_ = app.ShutdownWithTimeout(10 * time.Second)
	stopListener()
	<-listenerDone
	stopJobs()
	pool.Wait()
	ser.Close()
	stopPersister()
	<-persistDone
}

func openStore(ctx context.Context, cfg *config.Config, redis *persistence.Redis, logger *zap.Logger) (persistence.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		if redis == nil {
			return nil, nil, errors.New("redis store selected but REDIS_ADDR is empty")
		}
		return persistence.NewRedisStore(redis, cfg.Store.SnapshotKey), func() {}, nil

	case config.StoreBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return persistence.NewPostgresStore(pg), pg.Close, nil

	default:
		logger.Info("using file snapshot store", zap.String("path", cfg.Store.DataFilePath))
		return persistence.NewFileStore(cfg.Store.DataFilePath), func() {}, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
