package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/config"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/database"
	httpapi "github.com/marcioholm/NorthWay-2.0-sub000/internal/http"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/logger"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "northway-core")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)

	box, err := service.NewSecretBox(cfg.SecretKey)
	if err != nil {
		log.Fatal("invalid SECRET_KEY", zap.Error(err))
	}

	media, err := service.NewMediaStore(&cfg.ObjectStore, log)
	if err != nil {
		log.Fatal("object store client failed", zap.Error(err))
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := media.EnsureBucket(ctx); err != nil {
			log.Warn("media bucket check failed", zap.Error(err))
		}
		cancel()
	}

	// Repositories
	tenantsRepo := repository.NewPostgresTenantsRepository(db)
	contactsRepo := repository.NewPostgresContactsRepository(db)
	leadsRepo := repository.NewPostgresLeadsRepository(db)
	clientsRepo := repository.NewPostgresClientsRepository(db)
	messagesRepo := repository.NewPostgresMessagesRepository(db)
	integrationsRepo := repository.NewPostgresIntegrationsRepository(db)
	billingEvtsRepo := repository.NewPostgresBillingEventsRepository(db)
	paymentsRepo := repository.NewPostgresPaymentsRepository(db)
	driveRepo := repository.NewPostgresDriveRepository(db)

	// Services
	events := service.NewEventPublisher(redisClient, log)
	caller := service.NewProviderCaller(integrationsRepo, log)
	contacts := service.NewContactService(contactsRepo, leadsRepo, clientsRepo, log)
	zapiClient := service.NewZapiClient(log)
	messaging := service.NewMessagingService(
		contacts, messagesRepo, leadsRepo, clientsRepo, integrationsRepo,
		zapiClient, caller, media, kv, events, cfg.Messaging.DefaultBaseURL, log)
	asaasClient := service.NewAsaasClient(cfg.Billing.BaseURL, log)
	billing := service.NewBillingService(
		tenantsRepo, paymentsRepo, billingEvtsRepo, integrationsRepo,
		asaasClient, caller, events, db, &cfg.Billing, log)
	driveClient := service.NewDriveClient(&cfg.DriveOAuth, log)
	drive := service.NewDriveService(
		integrationsRepo, tenantsRepo, leadsRepo, clientsRepo, driveRepo,
		driveClient, caller, box, events, log)
	syncSvc := service.NewSyncService(
		integrationsRepo, leadsRepo, clientsRepo, driveRepo, drive, driveClient, events, log)

	// HTTP surface
	router := httpapi.NewRouter(log)
	router.RegisterWebhookRoutes(httpapi.NewWebhookHandler(messaging, billing, log))
	router.RegisterMessagingRoutes(httpapi.NewMessagingHandler(messaging, log))
	router.RegisterBillingRoutes(httpapi.NewBillingHandler(billing, log))
	router.RegisterDriveRoutes(httpapi.NewDriveHandler(drive, syncSvc, log))
	router.RegisterIntegrationRoutes(httpapi.NewIntegrationHandler(integrationsRepo, messaging, billing, drive, log))
	router.RegisterOpsRoutes(httpapi.NewOpsHandler(billing, contacts, log))

	gate := httpapi.NewAccessGate(tenantsRepo, cfg.GateRecoveryPaths, log)
	srv := service.NewServer(cfg.HTTP.Addr, gate.Wrap(router), log)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("server stopped", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
