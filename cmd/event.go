package cmd

import (
	"context"
	"time"

	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/core/events"
	"github.com/jbalwikobra/storefront/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish test events, monitor event bus, inspect handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a test order transition event",
	Long:  `Publish a synthetic order transition event to the event bus for testing and debugging`,
	Run: func(cmd *cobra.Command, args []string) {
		publishTestTransition()
	},
}

var (
	eventExternalID string
	eventAmount     int64
)

func publishTestTransition() {
	lg := logger.L()

	eventBus := events.NewEventBus(lg)

	eventBus.Subscribe(events.EventTypeOrderTransitionApplied, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	testEvent := events.NewOrderTransitionAppliedEvent(
		1,
		eventExternalID,
		order.StatusPending,
		order.StatusPaid,
		order.TypePurchase,
		eventAmount,
		"Budi",
		"ML Diamond 1000",
	)

	lg.Info("publishing test transition event",
		"event_id", testEvent.EventID(),
		"external_id", eventExternalID)

	ctx := context.Background()
	if err := eventBus.PublishSync(ctx, testEvent); err != nil {
		lg.Error("failed to publish event", "error", err)
		return
	}

	time.Sleep(100 * time.Millisecond)
	lg.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventExternalID, "external-id", "inv-test-0001", "External order id carried by the event")
	publishEventCmd.Flags().Int64Var(&eventAmount, "amount", 150000, "Order amount in IDR")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
