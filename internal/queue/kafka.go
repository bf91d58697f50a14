// kafka.go — реализация очереди дескрипторов поверх Apache Kafka.
// Producer пишет JSON-дескрипторы в топик загрузок; воркеры читают через
// consumer group, что даёт доставку каждого дескриптора одному воркеру.
// Kafka даёт at-least-once: при потере acknowledgment дескриптор может
// быть доставлен повторно, ingest обязан это переживать (уникальный path).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/visaflow/visaflow/internal/domain/model"
)

// KafkaQueue — очередь дескрипторов поверх Kafka.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *slog.Logger

	// readMu сериализует ReadMessage: kafka.Reader не рассчитан на
	// конкурентные вызовы из нескольких горутин
	readMu sync.Mutex
	closed atomic.Bool
}

// KafkaConfig — параметры подключения к Kafka.
type KafkaConfig struct {
	// Brokers — адреса брокеров
	Brokers []string
	// Topic — топик очереди загрузок
	Topic string
	// GroupID — consumer group воркеров ingest
	GroupID string
}

// NewKafkaQueue создаёт очередь поверх Kafka.
func NewKafkaQueue(cfg KafkaConfig, logger *slog.Logger) *KafkaQueue {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})

	return &KafkaQueue{
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "kafka_queue")),
	}
}

// Enqueue сериализует дескриптор в JSON и пишет в топик.
// Ключ сообщения — ID заявки: дескрипторы одной заявки попадают в одну
// партицию и сохраняют порядок.
func (q *KafkaQueue) Enqueue(ctx context.Context, d *model.Descriptor) error {
	if q.closed.Load() {
		return ErrClosed
	}

	value, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("ошибка сериализации дескриптора: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(d.VisaApplicationID, 10)),
		Value: value,
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("ошибка записи в Kafka: %w", err)
	}

	q.logger.Debug("Дескриптор поставлен в очередь",
		slog.Int64("application_id", d.VisaApplicationID),
		slog.String("temporary_path", d.TemporaryPath),
	)
	return nil
}

// Dequeue читает следующее сообщение из consumer group и десериализует
// дескриптор. Блокируется до сообщения или отмены контекста.
// Сообщения с некорректным JSON логируются и пропускаются.
func (q *KafkaQueue) Dequeue(ctx context.Context) (*model.Descriptor, error) {
	q.readMu.Lock()
	defer q.readMu.Unlock()

	for {
		if q.closed.Load() {
			return nil, ErrClosed
		}

		msg, err := q.reader.ReadMessage(ctx)
		if err != nil {
			if q.closed.Load() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("ошибка чтения из Kafka: %w", err)
		}

		d := &model.Descriptor{}
		if err := json.Unmarshal(msg.Value, d); err != nil {
			q.logger.Error("Некорректный дескриптор в очереди, сообщение пропущено",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}
		return d, nil
	}
}

// Close закрывает producer и consumer. Заблокированные Dequeue
// завершаются с ErrClosed.
func (q *KafkaQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}

	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
