// memory.go — внутрипроцессная очередь дескрипторов на буферизованном канале.
// Используется в single-process развёртываниях (VF_QUEUE_MODE=memory)
// и в тестах. Семантика at-most-once: дескриптор, забранный воркером,
// повторно не доставляется.
package queue

import (
	"context"
	"sync"

	"github.com/visaflow/visaflow/internal/domain/model"
)

// MemoryQueue — очередь дескрипторов на канале.
type MemoryQueue struct {
	ch chan *model.Descriptor

	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue создаёт очередь с буфером указанной ёмкости.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		ch: make(chan *model.Descriptor, size),
	}
}

// Enqueue помещает дескриптор в буфер. Не блокируется: при заполненном
// буфере сразу возвращает ErrFull, чтобы intake мог ответить клиенту.
func (q *MemoryQueue) Enqueue(ctx context.Context, d *model.Descriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- d:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue блокируется до появления дескриптора, отмены контекста
// или закрытия очереди.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*model.Descriptor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return d, nil
	}
}

// Close закрывает очередь. Дескрипторы, оставшиеся в буфере,
// дочитываются воркерами до конца.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

// Компиляционные проверки реализации интерфейса.
var (
	_ Queue = (*MemoryQueue)(nil)
	_ Queue = (*KafkaQueue)(nil)
)
