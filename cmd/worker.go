package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/messaging"
	messagingPostgres "github.com/jbalwikobra/storefront/internal/messaging/postgres"
	"github.com/jbalwikobra/storefront/internal/notification"
	notificationPostgres "github.com/jbalwikobra/storefront/internal/notification/postgres"
	"github.com/jbalwikobra/storefront/internal/notification/queue"
	"github.com/jbalwikobra/storefront/pkg/logger"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers: queued dispatch consumption and delivery-log redelivery.`,
}

// Dispatch queue worker command
var dispatchWorkerCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Start the queued dispatch worker",
	Long:  `Consume dispatch requests from the queue and deliver them to their channels`,
	Run: func(cmd *cobra.Command, args []string) {
		startDispatchWorker()
	},
}

// Redelivery worker command
var redeliverWorkerCmd = &cobra.Command{
	Use:   "redeliver",
	Short: "Start the redelivery worker",
	Long:  `Poll the delivery log for stalled entries and resume their delivery`,
	Run: func(cmd *cobra.Command, args []string) {
		startRedeliveryWorker()
	},
}

func init() {
	workerCmd.AddCommand(dispatchWorkerCmd)
	workerCmd.AddCommand(redeliverWorkerCmd)
}

type workerDeps struct {
	config     *internal.Config
	dispatcher *notification.Dispatcher
	deliveries notification.DeliveryRepository
}

func initWorkerDeps() (*workerDeps, error) {
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

	return &workerDeps{
		config:     config,
		dispatcher: dispatcher,
		deliveries: deliveryRepo,
	}, nil
}

func startDispatchWorker() {
	deps, err := initWorkerDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize worker: %v\n", err)
		os.Exit(1)
	}
	lg := logger.L()

	if !deps.config.Queue.Enabled {
		fmt.Fprintln(os.Stderr, "queue is disabled; the dispatch worker needs queue.enabled=true")
		os.Exit(1)
	}

	worker := queue.NewWorker(
		deps.config.Queue.Brokers,
		deps.config.Queue.Topic,
		deps.config.Queue.GroupID,
		deps.dispatcher,
		lg,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil {
		lg.Error("dispatch worker exited with error", "error", err)
	}
	if err := worker.Close(); err != nil {
		lg.Error("dispatch worker close error", "error", err)
	}
}

func startRedeliveryWorker() {
	deps, err := initWorkerDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize worker: %v\n", err)
		os.Exit(1)
	}
	lg := logger.L()

	worker := notification.NewRedeliveryWorker(
		deps.dispatcher,
		deps.deliveries,
		deps.config.Dispatch.RedeliverInterval,
		deps.config.Dispatch.RedeliverBatchSize,
		lg,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil {
		lg.Error("redelivery worker exited with error", "error", err)
	}
}
