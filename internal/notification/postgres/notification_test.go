package postgres

import (
	"context"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	notificationsvc "github.com/jbalwikobra/storefront/internal/notification"
)

var _ = ginkgo.Describe("NotificationRepository", func() {
	var (
		repo notificationsvc.AdminNotificationRepository
		ctx  context.Context
	)

	seed := func(category string, isRead bool) *notification.AdminNotification {
		orderID := int64(42)
		n := &notification.AdminNotification{
			Category: category,
			Title:    "Pesanan Dibayar",
			Message:  "Pembayaran diterima!",
			OrderID:  &orderID,
			IsRead:   isRead,
		}
		gomega.Expect(repo.Create(ctx, n)).To(gomega.Succeed())
		return n
	}

	ginkgo.BeforeEach(func() {
		repo = NewNotificationRepository(openTestDB())
		ctx = context.Background()
	})

	ginkgo.Describe("Create and GetByID", func() {
		ginkgo.It("round-trips a notification", func() {
			created := seed(notification.CategoryPaidOrder, false)
			gomega.Expect(created.ID).To(gomega.BeNumerically(">", 0))

			found, err := repo.GetByID(ctx, created.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(found.Title).To(gomega.Equal("Pesanan Dibayar"))
			gomega.Expect(*found.OrderID).To(gomega.Equal(int64(42)))
			gomega.Expect(found.IsRead).To(gomega.BeFalse())
		})

		ginkgo.It("returns the not-found sentinel for an unknown id", func() {
			_, err := repo.GetByID(ctx, 999)

			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(apperrors.ErrorTypeNotFound))
		})
	})

	ginkgo.Describe("List", func() {
		ginkgo.It("pages newest-first with the id cursor", func() {
			var ids []int64
			for i := 0; i < 5; i++ {
				ids = append(ids, seed(notification.CategoryPaidOrder, false).ID)
			}

			firstPage, err := repo.List(ctx, notificationsvc.ListFilter{Limit: 2})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(firstPage).To(gomega.HaveLen(2))
			gomega.Expect(firstPage[0].ID).To(gomega.Equal(ids[4]))
			gomega.Expect(firstPage[1].ID).To(gomega.Equal(ids[3]))

			secondPage, err := repo.List(ctx, notificationsvc.ListFilter{
				Limit:  2,
				Cursor: firstPage[1].ID,
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(secondPage).To(gomega.HaveLen(2))
			gomega.Expect(secondPage[0].ID).To(gomega.Equal(ids[2]))
		})

		ginkgo.It("filters by category and unread", func() {
			seed(notification.CategoryPaidOrder, true)
			unread := seed(notification.CategoryPaidOrder, false)
			seed(notification.CategoryNewOrder, false)

			items, err := repo.List(ctx, notificationsvc.ListFilter{
				Category: notification.CategoryPaidOrder,
				Unread:   true,
				Limit:    10,
			})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(items).To(gomega.HaveLen(1))
			gomega.Expect(items[0].ID).To(gomega.Equal(unread.ID))
		})
	})

	ginkgo.Describe("MarkRead and UnreadCount", func() {
		ginkgo.It("flips the flag and shrinks the unread count", func() {
			n := seed(notification.CategoryPaidOrder, false)
			seed(notification.CategoryNewOrder, false)

			count, err := repo.UnreadCount(ctx)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(2)))

			gomega.Expect(repo.MarkRead(ctx, n.ID)).To(gomega.Succeed())

			count, err = repo.UnreadCount(ctx)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(1)))

			stored, err := repo.GetByID(ctx, n.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.IsRead).To(gomega.BeTrue())
		})
	})
})
