package cmd

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/admin"
	"github.com/jbalwikobra/storefront/internal/core/events"
	"github.com/jbalwikobra/storefront/internal/messaging"
	messagingPostgres "github.com/jbalwikobra/storefront/internal/messaging/postgres"
	"github.com/jbalwikobra/storefront/internal/metrics"
	"github.com/jbalwikobra/storefront/internal/notification"
	notificationPostgres "github.com/jbalwikobra/storefront/internal/notification/postgres"
	"github.com/jbalwikobra/storefront/internal/notification/queue"
	"github.com/jbalwikobra/storefront/internal/reconciler"
	reconcilerPostgres "github.com/jbalwikobra/storefront/internal/reconciler/postgres"
	"github.com/jbalwikobra/storefront/internal/transport"
	"github.com/jbalwikobra/storefront/internal/transport/rest"
	"github.com/jbalwikobra/storefront/internal/webhook"
	"github.com/jbalwikobra/storefront/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives gateway callbacks and serves the admin API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Router   *chi.Mux
	Logger   *slog.Logger
	Producer *queue.Producer
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if deps.Producer != nil {
			if err := deps.Producer.Close(); err != nil {
				deps.Logger.Error("queue producer close error", "error", err)
			}
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	if config.Observability.Metrics.Enabled {
		metrics.Register()
	}

	eventBus := events.NewEventBus(lg)

	// Reconciliation
	orderRepo := reconcilerPostgres.NewOrderRepository(gormDB)
	reconcilerService := reconciler.NewService(orderRepo, lg)

	// Dispatch
	deliveryRepo := notificationPostgres.NewDeliveryRepository(gormDB)
	notificationRepo := notificationPostgres.NewNotificationRepository(gormDB)
	groupRepo := messagingPostgres.NewGroupRepository(gormDB)
	sender := messaging.NewClient(config.Messaging.ProviderURL, config.Messaging.APIKey, config.Messaging.SendTimeout, lg)

	policy := notification.RetryPolicy{
		MaxAttempts: config.Dispatch.MaxAttempts,
		BaseBackoff: config.Dispatch.BaseBackoff,
		MaxBackoff:  config.Dispatch.MaxBackoff,
	}
	dispatcher := notification.NewDispatcher(deliveryRepo, notificationRepo, sender, groupRepo, policy, lg)

	var producer *queue.Producer
	var enqueuer notification.Enqueuer
	if config.Queue.Enabled {
		producer = queue.NewProducer(config.Queue.Brokers, config.Queue.Topic, lg)
		enqueuer = producer
	}

	composer := notification.NewComposer(lg)
	eventHandler := notification.NewEventHandler(composer, dispatcher, enqueuer, lg)
	eventHandler.RegisterEventHandlers(eventBus)

	// Transport
	baseHandler := transport.NewBaseHandler(lg)
	webhookHandler := webhook.NewHandler(baseHandler, reconcilerService, eventBus, config.Messaging.CallbackToken, config.Dispatch.NotFoundRecheckDelay, lg)

	store := notification.NewStoreService(notificationRepo, lg)
	adminHandler := admin.NewHandler(baseHandler, store, deliveryRepo, dispatcher, lg)

	var publicKey *rsa.PublicKey
	if config.Security.JWTPublicKey != "" {
		publicKey, err = config.Security.GetPublicKey()
		if err != nil {
			return nil, fmt.Errorf("failed to parse admin public key: %w", err)
		}
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, webhookHandler, adminHandler, rest.RouterConfig{
		AdminPublicKey: publicKey,
		MetricsEnabled: config.Observability.Metrics.Enabled,
		MetricsPath:    config.Observability.Metrics.Path,
	}, lg)

	return &Dependencies{
		Config:   config,
		DB:       db,
		GormDB:   gormDB,
		Router:   router,
		Logger:   lg,
		Producer: producer,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers the ORM on top of the existing pgx connection pool so
// both query paths share one pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormPostgres.New(gormPostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
}
