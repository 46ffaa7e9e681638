package notification_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	datamodel "github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/core/events"
	"github.com/jbalwikobra/storefront/internal/notification"
)

// Mock enqueuer
type mockEnqueuer struct {
	mu       sync.Mutex
	requests []notification.DispatchRequest
	err      error
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, req notification.DispatchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockEnqueuer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

var _ = Describe("EventHandler", func() {
	var (
		handler    *notification.EventHandler
		dispatcher *notification.Dispatcher
		repo       *mockDeliveryRepo
		feed       *mockFeed
		sender     *mockSender
		ctx        context.Context
	)

	paidEvent := func() *events.OrderTransitionAppliedEvent {
		return events.NewOrderTransitionAppliedEvent(
			42,
			"inv-42",
			order.StatusPending,
			order.StatusPaid,
			order.TypePurchase,
			150000,
			"Budi",
			"ML Diamond 1000",
		)
	}

	newHandler := func(enqueuer notification.Enqueuer) *notification.EventHandler {
		composer := notification.NewComposer(testLogger())
		return notification.NewEventHandler(composer, dispatcher, enqueuer, testLogger())
	}

	BeforeEach(func() {
		repo = newMockDeliveryRepo()
		feed = &mockFeed{}
		sender = &mockSender{}
		policy := notification.RetryPolicy{
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		}
		dispatcher = notification.NewDispatcher(repo, feed, sender, &mockGroups{}, policy, testLogger())
		handler = newHandler(nil)
		ctx = context.Background()
	})

	Context("when an order transitions to paid", func() {
		It("composes and dispatches the paid notification inline", func() {
			err := handler.HandleOrderTransitionApplied(ctx, paidEvent())

			Expect(err).ToNot(HaveOccurred())
			Expect(sender.callCount()).To(Equal(1))
			Expect(sender.texts[0]).To(Equal("Pesanan Dibayar\nPembayaran diterima! Budi telah membayar Rp150.000 untuk ML Diamond 1000."))
			Expect(feed.count()).To(Equal(1))
			Expect(feed.created[0].Category).To(Equal(datamodel.CategoryPaidOrder))
			Expect(*feed.created[0].OrderID).To(Equal(int64(42)))
		})
	})

	Context("when the transition is not a paid one", func() {
		It("dispatches nothing", func() {
			event := events.NewOrderTransitionAppliedEvent(
				42, "inv-42", order.StatusPaid, order.StatusCompleted,
				order.TypePurchase, 150000, "Budi", "ML Diamond 1000",
			)

			err := handler.HandleOrderTransitionApplied(ctx, event)

			Expect(err).ToNot(HaveOccurred())
			Expect(sender.callCount()).To(Equal(0))
			Expect(feed.count()).To(Equal(0))
		})
	})

	Context("when a queue is configured", func() {
		It("enqueues instead of dispatching inline", func() {
			enqueuer := &mockEnqueuer{}
			handler = newHandler(enqueuer)

			err := handler.HandleOrderTransitionApplied(ctx, paidEvent())

			Expect(err).ToNot(HaveOccurred())
			Expect(enqueuer.count()).To(Equal(1))
			Expect(enqueuer.requests[0].Category).To(Equal(datamodel.CategoryPaidOrder))
			Expect(enqueuer.requests[0].TargetStatus).To(Equal(order.StatusPaid))
			Expect(sender.callCount()).To(Equal(0))
		})

		It("falls back to inline dispatch when the enqueue fails", func() {
			enqueuer := &mockEnqueuer{err: errors.New("broker unavailable")}
			handler = newHandler(enqueuer)

			err := handler.HandleOrderTransitionApplied(ctx, paidEvent())

			Expect(err).ToNot(HaveOccurred())
			Expect(sender.callCount()).To(Equal(1))
			Expect(feed.count()).To(Equal(1))
		})
	})

	Context("when the event bus delivers it through a subscription", func() {
		It("handles the registered event type", func() {
			bus := events.NewEventBus(testLogger())
			handler.RegisterEventHandlers(bus)

			Expect(bus.PublishSync(ctx, paidEvent())).To(Succeed())
			Expect(sender.callCount()).To(Equal(1))
		})
	})
})
