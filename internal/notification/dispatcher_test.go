package notification_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/delivery"
	datamodel "github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/messaging"
	"github.com/jbalwikobra/storefront/internal/notification"
)

// Mock delivery repository backed by a map, mirroring the unique
// (dedup_key, channel) constraint.
type mockDeliveryRepo struct {
	mu      sync.Mutex
	entries map[string]*delivery.DeliveryLog
	nextID  int64
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{
		entries: make(map[string]*delivery.DeliveryLog),
	}
}

func (m *mockDeliveryRepo) key(dedupKey, channel string) string {
	return dedupKey + "|" + channel
}

func (m *mockDeliveryRepo) Claim(ctx context.Context, entry *delivery.DeliveryLog) (bool, *delivery.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(entry.DedupKey, entry.Channel)
	if existing, ok := m.entries[k]; ok {
		copied := *existing
		return false, &copied, nil
	}
	m.nextID++
	entry.ID = m.nextID
	entry.CreatedAt = time.Now().UTC()
	stored := *entry
	m.entries[k] = &stored
	return true, nil, nil
}

func (m *mockDeliveryRepo) byID(id int64) *delivery.DeliveryLog {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *mockDeliveryRepo) MarkDelivered(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.byID(id); e != nil {
		e.Status = delivery.StatusDelivered
	}
	return nil
}

func (m *mockDeliveryRepo) RecordFailure(ctx context.Context, id int64, attemptCount int, lastError string, nextRetryAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.byID(id); e != nil {
		e.AttemptCount = attemptCount
		e.LastError = &lastError
		e.NextRetryAt = nextRetryAt
	}
	return nil
}

func (m *mockDeliveryRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.byID(id); e != nil {
		e.Status = delivery.StatusFailed
		e.LastError = &lastError
	}
	return nil
}

func (m *mockDeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*delivery.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*delivery.DeliveryLog
	for _, e := range m.entries {
		if e.Status == delivery.StatusPending && e.NextRetryAt != nil && !e.NextRetryAt.After(now) {
			copied := *e
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (m *mockDeliveryRepo) ListFailed(ctx context.Context, limit int) ([]*delivery.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []*delivery.DeliveryLog
	for _, e := range m.entries {
		if e.Status == delivery.StatusFailed {
			copied := *e
			failed = append(failed, &copied)
		}
	}
	return failed, nil
}

func (m *mockDeliveryRepo) Rearm(ctx context.Context, id int64) (*delivery.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.byID(id)
	if e == nil {
		return nil, apperrors.ErrDeliveryNotFound
	}
	e.Status = delivery.StatusPending
	e.AttemptCount = 0
	e.NextRetryAt = nil
	e.LastError = nil
	copied := *e
	return &copied, nil
}

func (m *mockDeliveryRepo) get(dedupKey, channel string) *delivery.DeliveryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[m.key(dedupKey, channel)]; ok {
		copied := *e
		return &copied
	}
	return nil
}

// Mock admin feed writer
type mockFeed struct {
	mu       sync.Mutex
	created  []*datamodel.AdminNotification
	failures int
}

func (m *mockFeed) Create(ctx context.Context, n *datamodel.AdminNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return apperrors.NewStorageError("insert failed", nil)
	}
	m.created = append(m.created, n)
	return nil
}

func (m *mockFeed) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

// Mock sender with a scripted error sequence
type mockSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	texts []string
}

func (m *mockSender) Send(ctx context.Context, destinationID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	m.texts = append(m.texts, text)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return "", m.errs[idx]
	}
	return "msg-1", nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Mock group resolver
type mockGroups struct {
	err error
}

func (m *mockGroups) DestinationFor(ctx context.Context, orderType, category string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "group-1", nil
}

var _ = Describe("Dispatcher", func() {
	var (
		dispatcher *notification.Dispatcher
		repo       *mockDeliveryRepo
		feed       *mockFeed
		sender     *mockSender
		groups     *mockGroups
		ctx        context.Context
	)

	policy := notification.RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}

	paidRequest := notification.DispatchRequest{
		Category:     datamodel.CategoryPaidOrder,
		Title:        "Pesanan Dibayar",
		Body:         "Pembayaran diterima! Budi telah membayar Rp150.000 untuk ML Diamond 1000.",
		OrderID:      42,
		OrderType:    order.TypePurchase,
		TargetStatus: order.StatusPaid,
	}

	BeforeEach(func() {
		repo = newMockDeliveryRepo()
		feed = &mockFeed{}
		sender = &mockSender{}
		groups = &mockGroups{}
		dispatcher = notification.NewDispatcher(repo, feed, sender, groups, policy, testLogger())
		ctx = context.Background()
	})

	Describe("DedupKey", func() {
		It("is stable for identical inputs", func() {
			Expect(notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)).
				To(Equal(notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)))
		})

		It("differs across orders, statuses and channels", func() {
			base := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
			Expect(notification.DedupKey(43, order.StatusPaid, delivery.ChannelGroupMessage)).ToNot(Equal(base))
			Expect(notification.DedupKey(42, order.StatusCompleted, delivery.ChannelGroupMessage)).ToNot(Equal(base))
			Expect(notification.DedupKey(42, order.StatusPaid, delivery.ChannelAdminFeed)).ToNot(Equal(base))
		})
	})

	Describe("Dispatch", func() {
		Context("for a paid order", func() {
			It("delivers to both channels", func() {
				err := dispatcher.Dispatch(ctx, paidRequest)

				Expect(err).ToNot(HaveOccurred())
				Expect(sender.callCount()).To(Equal(1))
				Expect(feed.count()).To(Equal(1))

				groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
				feedKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelAdminFeed)
				Expect(repo.get(groupKey, delivery.ChannelGroupMessage).Status).To(Equal(delivery.StatusDelivered))
				Expect(repo.get(feedKey, delivery.ChannelAdminFeed).Status).To(Equal(delivery.StatusDelivered))
			})

			It("sends the rendered title and body", func() {
				Expect(dispatcher.Dispatch(ctx, paidRequest)).To(Succeed())

				Expect(sender.texts[0]).To(Equal("Pesanan Dibayar\nPembayaran diterima! Budi telah membayar Rp150.000 untuk ML Diamond 1000."))
			})
		})

		Context("for a user signup", func() {
			It("only writes the admin feed", func() {
				req := notification.DispatchRequest{
					Category:     datamodel.CategoryUserSignup,
					Title:        "Pengguna Baru",
					Body:         "Pengguna baru mendaftar: Budi.",
					OrderID:      1,
					TargetStatus: "signup",
				}

				Expect(dispatcher.Dispatch(ctx, req)).To(Succeed())

				Expect(sender.callCount()).To(Equal(0))
				Expect(feed.count()).To(Equal(1))
			})
		})

		Context("when the same request is dispatched twice", func() {
			It("delivers each channel exactly once", func() {
				Expect(dispatcher.Dispatch(ctx, paidRequest)).To(Succeed())
				Expect(dispatcher.Dispatch(ctx, paidRequest)).To(Succeed())

				Expect(sender.callCount()).To(Equal(1))
				Expect(feed.count()).To(Equal(1))
			})
		})

		Context("when the group message fails permanently", func() {
			It("still delivers the admin feed", func() {
				sender.errs = []error{&messaging.PermanentError{StatusCode: 400, Body: "bad destination"}}

				err := dispatcher.Dispatch(ctx, paidRequest)

				Expect(err).To(HaveOccurred())
				Expect(feed.count()).To(Equal(1))

				groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
				Expect(repo.get(groupKey, delivery.ChannelGroupMessage).Status).To(Equal(delivery.StatusFailed))
				Expect(sender.callCount()).To(Equal(1))
			})
		})

		Context("when the group message fails transiently", func() {
			It("retries until it succeeds", func() {
				sender.errs = []error{
					&messaging.TransientError{Err: context.DeadlineExceeded},
					&messaging.TransientError{Err: context.DeadlineExceeded},
					nil,
				}

				err := dispatcher.Dispatch(ctx, paidRequest)

				Expect(err).ToNot(HaveOccurred())
				Expect(sender.callCount()).To(Equal(3))

				groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
				Expect(repo.get(groupKey, delivery.ChannelGroupMessage).Status).To(Equal(delivery.StatusDelivered))
			})

			It("marks the delivery failed after the attempt budget", func() {
				sender.errs = []error{
					&messaging.TransientError{Err: context.DeadlineExceeded},
					&messaging.TransientError{Err: context.DeadlineExceeded},
					&messaging.TransientError{Err: context.DeadlineExceeded},
				}

				err := dispatcher.Dispatch(ctx, paidRequest)

				Expect(err).To(HaveOccurred())
				Expect(sender.callCount()).To(Equal(policy.MaxAttempts))

				groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
				entry := repo.get(groupKey, delivery.ChannelGroupMessage)
				Expect(entry.Status).To(Equal(delivery.StatusFailed))
				Expect(entry.LastError).ToNot(BeNil())
			})
		})

		Context("when no group is configured", func() {
			It("fails the group channel terminally without retries", func() {
				groups.err = apperrors.ErrGroupNotConfigured

				err := dispatcher.Dispatch(ctx, paidRequest)

				Expect(err).To(HaveOccurred())
				Expect(sender.callCount()).To(Equal(0))

				groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
				Expect(repo.get(groupKey, delivery.ChannelGroupMessage).Status).To(Equal(delivery.StatusFailed))
			})
		})
	})

	Describe("ProcessEntry", func() {
		It("resumes a stalled entry using the stored payload", func() {
			// An entry claimed by a process that died: one attempt spent,
			// payload persisted, still pending.
			groupKey := notification.DedupKey(7, order.StatusPaid, delivery.ChannelGroupMessage)
			stalled := &delivery.DeliveryLog{
				DedupKey:     groupKey,
				Channel:      delivery.ChannelGroupMessage,
				Status:       delivery.StatusPending,
				OrderID:      7,
				TargetStatus: order.StatusPaid,
				Category:     datamodel.CategoryPaidOrder,
				Payload:      `{"category":"paid_order","title":"Pesanan Dibayar","body":"body","order_id":7,"order_type":"purchase","target_status":"paid"}`,
				AttemptCount: 1,
			}
			claimed, _, err := repo.Claim(ctx, stalled)
			Expect(err).ToNot(HaveOccurred())
			Expect(claimed).To(BeTrue())

			Expect(dispatcher.ProcessEntry(ctx, stalled)).To(Succeed())

			Expect(sender.callCount()).To(Equal(1))
			Expect(sender.texts[0]).To(Equal("Pesanan Dibayar\nbody"))
			Expect(repo.get(groupKey, delivery.ChannelGroupMessage).Status).To(Equal(delivery.StatusDelivered))
		})

		It("skips entries that are already delivered", func() {
			Expect(dispatcher.Dispatch(ctx, paidRequest)).To(Succeed())
			callsAfterDispatch := sender.callCount()

			groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
			entry := repo.get(groupKey, delivery.ChannelGroupMessage)

			Expect(dispatcher.ProcessEntry(ctx, entry)).To(Succeed())
			Expect(sender.callCount()).To(Equal(callsAfterDispatch))
		})

		It("runs a re-armed failed entry through the attempt path again", func() {
			sender.errs = []error{
				&messaging.TransientError{Err: context.DeadlineExceeded},
				&messaging.TransientError{Err: context.DeadlineExceeded},
				&messaging.TransientError{Err: context.DeadlineExceeded},
			}
			_ = dispatcher.Dispatch(ctx, paidRequest)

			groupKey := notification.DedupKey(42, order.StatusPaid, delivery.ChannelGroupMessage)
			failed := repo.get(groupKey, delivery.ChannelGroupMessage)
			Expect(failed.Status).To(Equal(delivery.StatusFailed))

			rearmed, err := repo.Rearm(ctx, failed.ID)
			Expect(err).ToNot(HaveOccurred())

			Expect(dispatcher.ProcessEntry(ctx, rearmed)).To(Succeed())
			Expect(repo.get(groupKey, delivery.ChannelGroupMessage).Status).To(Equal(delivery.StatusDelivered))
		})
	})
})
