package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"washly/config"
	workers "washly/cron"
	"washly/database"
	bookingRepo "washly/database/repository/booking"
	"washly/handlers"
	"washly/middleware"
	"washly/routes"
	"washly/services/booking"
	"washly/services/calendar"
	"washly/services/catalog"
	"washly/services/events"
	"washly/services/notification"
	"washly/services/payment"
	"washly/services/tasks"
	"washly/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// openStore connects the configured booking store and registers it for health checks.
func openStore(cfg config.Config, targets *utils.HealthTargets) (bookingRepo.BookingRepository, func(), error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, err := database.InitDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := bookingRepo.NewMongoBookingRepo(client, cfg.DatabaseName)
		if err := repo.EnsureIndexes(); err != nil {
			return nil, nil, err
		}
		targets.Mongo = client
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	case "postgres":
		db, err := database.InitPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := bookingRepo.NewGormBookingRepo(db)
		if err := repo.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("migrate bookings: %w", err)
		}
		targets.Postgres = db
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repo, closeDB, nil
	default:
		return bookingRepo.NewMemoryBookingRepo(), func() {}, nil
	}
}

// collaborators picks real adapters when credentials are configured and
// simulated ones otherwise.
type collaborators struct {
	payments  payment.Gateway
	parser    payment.EventParser
	sms       notification.Sender
	validator notification.SignatureValidator
	calendar  calendar.Service
	events    events.Publisher
}

func buildCollaborators(ctx context.Context, cfg config.Config, logger *zap.Logger) (collaborators, error) {
	var c collaborators

	if cfg.StripeKey != "" {
		sg := payment.NewStripeGateway(cfg.StripeKey, cfg.StripeWebhookSecret, logger)
		c.payments, c.parser = sg, sg
	} else {
		logger.Warn("STRIPE_KEY not set, using the simulated payment gateway")
		sim := payment.NewSimulatedGateway(logger)
		c.payments, c.parser = sim, sim
	}

	if cfg.TwilioAccountSID != "" {
		ts := notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber,
			cfg.PublicBaseURL+"/api/webhooks/sms/status", logger)
		c.sms, c.validator = ts, ts
	} else {
		logger.Warn("TWILIO_ACCOUNT_SID not set, SMS are only logged")
		ls := notification.NewLogSender(logger)
		c.sms, c.validator = ls, ls
	}

	if cfg.GoogleCredentialsFile != "" {
		gc, err := calendar.NewGoogleCalendar(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCalendarID, logger)
		if err != nil {
			return c, err
		}
		c.calendar = gc
	} else {
		logger.Warn("GOOGLE_CREDENTIALS_FILE not set, calendar events are only logged")
		c.calendar = calendar.NewLogCalendar(logger)
	}

	c.events = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, booking events are only logged", zap.Error(err))
		} else {
			c.events = pub
		}
	}
	return c, nil
}

func main() {
	issueToken := flag.String("admin-token", "", "print an operator token for the given subject and exit")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()

	if *issueToken != "" {
		tok, err := utils.GenerateToken([]byte(cfg.JWTSecret), *issueToken, utils.RoleAdmin, 30*24*time.Hour)
		if err != nil {
			logger.Sugar().Fatalf("main: failed to issue admin token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets := utils.HealthTargets{}
	repo, closeStore, err := openStore(cfg, &targets)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	cat, err := catalog.FromViper(viper.GetViper())
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}
	settings, err := booking.SettingsFromConfig(cfg)
	if err != nil {
		logger.Sugar().Fatalf("main: invalid business settings: %v", err)
	}

	var deduper utils.Deduper
	if cache, err := utils.InitCache(cfg); err != nil {
		logger.Warn("Redis cache unavailable, webhook dedupe is per process", zap.Error(err))
		deduper = utils.NewMemoryDeduper(utils.WebhookDedupeTTL)
	} else {
		deduper = utils.NewRedisDeduper(cache, utils.WebhookDedupeTTL)
		targets.Redis = append(targets.Redis, cache)
		defer cache.Close()
	}

	collab, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}
	defer collab.events.Close()

	var (
		dispatcher tasks.Dispatcher
		inline     *tasks.InlineDispatcher
		taskClient *asynq.Client
	)
	if cfg.TaskQueue == "inline" {
		inline = tasks.NewInlineDispatcher(logger)
		dispatcher = inline
	} else {
		taskClient = asynq.NewClient(workers.RedisOpt(cfg))
		defer taskClient.Close()
		inspector := asynq.NewInspector(workers.RedisOpt(cfg))
		defer inspector.Close()
		dispatcher = tasks.NewAsynqDispatcher(taskClient, inspector, "default")
	}

	svc, err := booking.NewBookingService(booking.Deps{
		Repo:     repo,
		Catalog:  cat,
		Tasks:    dispatcher,
		Payments: collab.payments,
		Calendar: collab.calendar,
		SMS:      collab.sms,
		Events:   collab.events,
		Deduper:  deduper,
		Logger:   logger,
	}, settings)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}

	mux := tasks.NewServeMux(svc)
	if inline != nil {
		inline.Bind(mux)
		defer inline.Wait()
	} else {
		taskServer := workers.NewTaskServer(cfg, logger)
		workers.StartTaskServer(taskServer, mux, logger)
		defer taskServer.Shutdown()
	}

	scheduler, err := workers.StartSweeps(ctx, cfg, svc, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}
	defer scheduler.Stop()

	utils.StartHealthMonitor(ctx, targets, 30*time.Second)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))

	routes.RegisterRoutes(router, &handlers.HandlerBundle{
		Catalog:           handlers.NewCatalogHandler(svc),
		Bookings:          handlers.NewBookingHandler(svc),
		Webhooks:          handlers.NewWebhookHandler(svc, collab.parser, collab.validator, cfg.PublicBaseURL),
		Admin:             handlers.NewAdminHandler(svc),
		JWTSecret:         []byte(cfg.JWTSecret),
		RequestsPerMinute: cfg.MaxRequestsPerMin,
	})

	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s (store=%s, tasks=%s)...", srv.Addr, cfg.StoreDriver, cfg.TaskQueue)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	logger.Sugar().Info("main: server stopped gracefully")
}
