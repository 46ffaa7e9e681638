package notification_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/jbalwikobra/storefront/internal"
	datamodel "github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	"github.com/jbalwikobra/storefront/internal/notification"
)

// Mock admin notification repository
type mockNotificationRepo struct {
	mu        sync.Mutex
	items     map[int64]*datamodel.AdminNotification
	nextID    int64
	listError error
	markCalls int
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{
		items: make(map[int64]*datamodel.AdminNotification),
	}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *datamodel.AdminNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	stored := *n
	m.items[n.ID] = &stored
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*datamodel.AdminNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, apperrors.ErrNotificationNotFound
	}
	copied := *n
	return &copied, nil
}

func (m *mockNotificationRepo) List(ctx context.Context, filter notification.ListFilter) ([]*datamodel.AdminNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, m.listError
	}
	var out []*datamodel.AdminNotification
	for _, n := range m.items {
		if filter.Category != "" && n.Category != filter.Category {
			continue
		}
		if filter.Unread && n.IsRead {
			continue
		}
		if filter.Cursor > 0 && n.ID >= filter.Cursor {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++
	if n, ok := m.items[id]; ok {
		n.IsRead = true
	}
	return nil
}

func (m *mockNotificationRepo) UnreadCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.items {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

var _ = Describe("StoreService", func() {
	var (
		store *notification.StoreService
		repo  *mockNotificationRepo
		ctx   context.Context
	)

	seed := func(category string, isRead bool) *datamodel.AdminNotification {
		n := &datamodel.AdminNotification{
			Category: category,
			Title:    "Pesanan Dibayar",
			Message:  "body",
			IsRead:   isRead,
		}
		Expect(repo.Create(ctx, n)).To(Succeed())
		return n
	}

	BeforeEach(func() {
		repo = newMockNotificationRepo()
		store = notification.NewStoreService(repo, testLogger())
		ctx = context.Background()
	})

	Describe("List", func() {
		It("returns the feed newest-first", func() {
			seed(datamodel.CategoryPaidOrder, false)
			seed(datamodel.CategoryNewOrder, false)
			third := seed(datamodel.CategoryPaidOrder, true)

			items, err := store.List(ctx, notification.ListFilter{})

			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(3))
			Expect(items[0].ID).To(Equal(third.ID))
		})

		It("filters by category and unread", func() {
			seed(datamodel.CategoryPaidOrder, false)
			seed(datamodel.CategoryPaidOrder, true)
			seed(datamodel.CategoryNewOrder, false)

			items, err := store.List(ctx, notification.ListFilter{
				Category: datamodel.CategoryPaidOrder,
				Unread:   true,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].Category).To(Equal(datamodel.CategoryPaidOrder))
			Expect(items[0].IsRead).To(BeFalse())
		})

		It("rejects an invalid category", func() {
			_, err := store.List(ctx, notification.ListFilter{Category: "mystery"})

			Expect(err).ToNot(BeNil())
		})

		It("pages with the id cursor", func() {
			for i := 0; i < 5; i++ {
				seed(datamodel.CategoryPaidOrder, false)
			}

			firstPage, err := store.List(ctx, notification.ListFilter{Limit: 2})
			Expect(err).ToNot(HaveOccurred())
			Expect(firstPage).To(HaveLen(2))

			secondPage, err := store.List(ctx, notification.ListFilter{
				Limit:  2,
				Cursor: firstPage[len(firstPage)-1].ID,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(secondPage).To(HaveLen(2))
			Expect(secondPage[0].ID).To(BeNumerically("<", firstPage[1].ID))
		})

		It("applies the default limit when none is given", func() {
			for i := 0; i < 25; i++ {
				seed(datamodel.CategoryPaidOrder, false)
			}

			items, err := store.List(ctx, notification.ListFilter{})

			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(20))
		})

		It("wraps storage failures", func() {
			repo.listError = errors.New("connection refused")

			_, err := store.List(ctx, notification.ListFilter{})

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeStorageFailure))
		})
	})

	Describe("MarkRead", func() {
		It("marks an unread notification", func() {
			n := seed(datamodel.CategoryPaidOrder, false)

			Expect(store.MarkRead(ctx, n.ID)).To(Succeed())

			stored, err := repo.GetByID(ctx, n.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.IsRead).To(BeTrue())
		})

		It("succeeds without a write for an already-read notification", func() {
			n := seed(datamodel.CategoryPaidOrder, true)

			Expect(store.MarkRead(ctx, n.ID)).To(Succeed())
			Expect(repo.markCalls).To(Equal(0))
		})

		It("returns not-found for an unknown id", func() {
			err := store.MarkRead(ctx, 999)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeNotFound))
		})
	})

	Describe("UnreadCount", func() {
		It("counts only unread notifications", func() {
			seed(datamodel.CategoryPaidOrder, false)
			seed(datamodel.CategoryNewOrder, false)
			seed(datamodel.CategoryPaidOrder, true)

			count, err := store.UnreadCount(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(int64(2)))
		})
	})
})
