// Пакет broker — in-process hub realtime-уведомлений.
// Семантика best-effort, at-most-once: Publish не блокируется, не персистит
// payload и молча отбрасывает сообщение, если на канал никто не подписан
// или буфер подписчика переполнен. Истории и replay нет — клиент после
// разрыва соединения обязан перечитать авторитетное состояние через API.
package broker

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики hub-а.
var (
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vf_broker_events_published_total",
		Help: "Общее количество опубликованных realtime-событий",
	}, []string{"event"})

	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vf_broker_events_dropped_total",
		Help: "Общее количество событий, отброшенных из-за переполнения буфера подписчика",
	})

	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vf_broker_subscribers",
		Help: "Текущее количество активных realtime-подписчиков",
	})
)

// Message — одно realtime-сообщение: имя события и сериализованный payload.
type Message struct {
	Event   string
	Payload []byte
}

// Subscription — подписка одного клиента на канал.
// Канал C закрывается при Close(); Close безопасно вызывать повторно.
type Subscription struct {
	// C — канал входящих сообщений подписки
	C <-chan Message

	hub     *Hub
	channel string
	ch      chan Message
	once    sync.Once
}

// Close отписывает клиента и закрывает канал C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.ch)
	})
}

// Hub — in-process брокер каналов уведомлений.
// Конструируется явно и передаётся зависимостям; глобального состояния нет.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub создаёт hub. buffer — ёмкость буфера каждого подписчика:
// при переполнении события для этого подписчика отбрасываются.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With(slog.String("component", "broker")),
	}
}

// Subscribe подписывает клиента на канал.
// Авторизация подписки — ответственность вызывающего кода (authz.Channel).
func (h *Hub) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		hub:     h,
		channel: channel,
		ch:      make(chan Message, h.buffer),
	}
	sub.C = sub.ch

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Subscription]struct{})
	}
	h.subs[channel][sub] = struct{}{}
	h.mu.Unlock()

	subscribersGauge.Inc()
	h.logger.Debug("Подписчик подключён", slog.String("channel", channel))
	return sub
}

// unsubscribe удаляет подписку из hub-а.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.channel]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.channel)
		}
	}
	h.mu.Unlock()

	subscribersGauge.Dec()
	h.logger.Debug("Подписчик отключён", slog.String("channel", sub.channel))
}

// Publish доставляет событие всем текущим подписчикам канала.
// Никогда не блокируется: подписчики с заполненным буфером пропускают
// событие. Отсутствие подписчиков — не ошибка.
func (h *Hub) Publish(channel, event string, payload []byte) {
	msg := Message{Event: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()

	eventsPublishedTotal.WithLabelValues(event).Inc()

	for sub := range h.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
			eventsDroppedTotal.Inc()
			h.logger.Warn("Событие отброшено: буфер подписчика переполнен",
				slog.String("channel", channel),
				slog.String("event", event),
			)
		}
	}
}

// SubscriberCount возвращает количество подписчиков канала (для тестов и диагностики).
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
