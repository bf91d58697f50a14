// events.go — SSE (Server-Sent Events) endpoint realtime-уведомлений
// о приёме файлов. Каждый подключённый клиент обслуживается своей
// горутиной. События не переигрываются: после разрыва соединения
// клиент перечитывает состояние через листинг файлов.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/visaflow/visaflow/internal/api/errors"
	"github.com/visaflow/visaflow/internal/api/middleware"
	"github.com/visaflow/visaflow/internal/authz"
	"github.com/visaflow/visaflow/internal/broker"
	"github.com/visaflow/visaflow/internal/domain/model"
)

// EventsHandler — обработчик SSE endpoint канала заявки.
type EventsHandler struct {
	hub       *broker.Hub
	auth      *authz.ChannelAuthorizer
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler создаёт обработчик SSE.
// heartbeat — интервал keep-alive комментариев (VF_SSE_HEARTBEAT).
func NewEventsHandler(hub *broker.Hub, auth *authz.ChannelAuthorizer, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		hub:       hub,
		auth:      auth,
		heartbeat: heartbeat,
		logger:    logger.With(slog.String("component", "events_handler")),
	}
}

// Subscribe обрабатывает GET /api/v1/visa-applications/{id}/events.
// Авторизация канала выполняется на каждую подписку, независимо от
// загрузок: клиент может подключиться до, во время и после любой из них.
// Формат: event: ingestion\ndata: {json}\n\n.
func (h *EventsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathID(r, "id")
	if !ok {
		apierrors.ValidationError(w, "Некорректный идентификатор заявки")
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	channel := model.ApplicationChannel(appID)

	if err := h.auth.Authorize(r.Context(), userID, channel); err != nil {
		if errors.Is(err, authz.ErrForbidden) || errors.Is(err, authz.ErrUnknownChannel) {
			apierrors.Forbidden(w, "Подписка на канал запрещена")
			return
		}
		h.logger.Error("Ошибка авторизации канала", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось авторизовать подписку")
		return
	}

	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// ResponseController находит оригинальный http.Flusher через Unwrap()
	// обёрток logging/metrics middleware.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	sub := h.hub.Subscribe(channel)
	defer sub.Close()

	h.logger.Debug("SSE клиент подключён",
		slog.Int64("user_id", userID),
		slog.String("channel", channel),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ctx := r.Context()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён",
				slog.Int64("user_id", userID),
				slog.String("channel", channel),
			)
			return
		case msg, open := <-sub.C:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			// keep-alive комментарий, чтобы прокси не закрывали соединение
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
