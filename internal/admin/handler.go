package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	errors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/delivery"
	"github.com/jbalwikobra/storefront/internal/notification"
	"github.com/jbalwikobra/storefront/internal/transport"
)

const failedDeliveriesLimit = 50

type Handler struct {
	*transport.BaseHandler
	store      *notification.StoreService
	deliveries notification.DeliveryRepository
	dispatcher *notification.Dispatcher
	logger     *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, store *notification.StoreService, deliveries notification.DeliveryRepository, dispatcher *notification.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		store:       store,
		deliveries:  deliveries,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// HandleListNotifications returns the feed newest-first. Query params:
// category, unread=true, cursor (last seen id), limit.
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := notification.ListFilter{
		Category: r.URL.Query().Get("category"),
		Unread:   r.URL.Query().Get("unread") == "true",
	}
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 0 {
			h.HandleError(w, errors.NewValidationError("cursor must be a non-negative integer", errors.ErrCodeValidationFailed))
			return
		}
		filter.Cursor = cursor
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.HandleError(w, errors.NewValidationError("limit must be a positive integer", errors.ErrCodeValidationFailed))
			return
		}
		filter.Limit = limit
	}

	items, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := NotificationListResponse{
		Notifications: make([]NotificationResponse, 0, len(items)),
	}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, toNotificationResponse(n))
	}
	if len(items) > 0 {
		resp.NextCursor = items[len(items)-1].ID
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.UnreadCount(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathID(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	if err := h.store.MarkRead(r.Context(), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListFailedDeliveries surfaces terminally failed deliveries so an
// operator can inspect and resend them.
func (h *Handler) HandleListFailedDeliveries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deliveries.ListFailed(r.Context(), failedDeliveriesLimit)
	if err != nil {
		h.logger.Error("failed to list failed deliveries", "error", err)
		h.HandleServiceError(w, errors.NewStorageError("failed to list deliveries", err))
		return
	}

	resp := DeliveryListResponse{
		Deliveries: make([]DeliveryResponse, 0, len(entries)),
	}
	for _, d := range entries {
		resp.Deliveries = append(resp.Deliveries, toDeliveryResponse(d))
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// HandleResendDelivery re-arms a terminally failed delivery and runs it
// through the normal attempt path. The retries happen in the background;
// the request returns as soon as the entry is re-armed.
func (h *Handler) HandleResendDelivery(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathID(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	entry, err := h.deliveries.Rearm(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.logger.Info("delivery re-armed for manual resend",
		"delivery_id", entry.ID,
		"channel", entry.Channel,
		"order_id", entry.OrderID)

	go func(e *delivery.DeliveryLog) {
		if err := h.dispatcher.ProcessEntry(context.Background(), e); err != nil {
			h.logger.Error("manual resend failed",
				"error", err,
				"delivery_id", e.ID)
		}
	}(entry)

	h.WriteJSON(w, http.StatusAccepted, ResendResponse{
		Status:     "accepted",
		DeliveryID: entry.ID,
	})
}

func pathID(r *http.Request, param string) (int64, *errors.AppError) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.NewValidationError("invalid id", errors.ErrCodeValidationFailed)
	}
	return id, nil
}
