// Пакет queue — очередь дескрипторов загрузки.
// Intake кладёт Descriptor в очередь и немедленно возвращает управление;
// воркеры ingest разбирают очередь независимо от HTTP-запросов.
//
// Две реализации: Kafka (межпроцессная, consumer group, at-least-once)
// и Memory (внутрипроцессная, для single-process развёртываний и тестов).
package queue

import (
	"context"
	"errors"

	"github.com/visaflow/visaflow/internal/domain/model"
)

// Ошибки очереди.
var (
	// ErrClosed — очередь закрыта.
	ErrClosed = errors.New("очередь закрыта")
	// ErrFull — буфер очереди переполнен (только memory).
	ErrFull = errors.New("очередь переполнена")
)

// Queue — возможность очереди, потребляемая intake и воркерами ingest.
type Queue interface {
	// Enqueue помещает дескриптор в очередь.
	Enqueue(ctx context.Context, d *model.Descriptor) error
	// Dequeue блокируется до появления дескриптора или отмены контекста.
	Dequeue(ctx context.Context) (*model.Descriptor, error)
	// Close освобождает ресурсы очереди.
	Close() error
}
