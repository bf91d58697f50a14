// ingest.go — воркеры приёма: превращают один Descriptor либо в запись
// файла + событие stored, либо в событие failed. Других внешне видимых
// эффектов нет. Повторной обработки нет: терминальная ошибка финальна,
// лечится только повторной загрузкой через intake.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/visaflow/visaflow/internal/broker"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/queue"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// Prometheus метрики воркеров ingest.
var (
	// ingestProcessedTotal — обработанные дескрипторы по результату
	// (stored либо код причины).
	ingestProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vf_ingest_processed_total",
		Help: "Общее количество обработанных дескрипторов",
	}, []string{"result"})

	// ingestDurationSeconds — длительность обработки одного дескриптора.
	ingestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vf_ingest_duration_seconds",
		Help:    "Длительность обработки дескриптора в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// IngestService — пул воркеров, читающих дескрипторы из очереди.
type IngestService struct {
	apps    repository.ApplicationRepository
	cats    repository.CategoryRepository
	files   repository.FileRepository
	store   *diskstore.Manager
	q       queue.Queue
	hub     *broker.Hub
	workers int
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewIngestService создаёт пул воркеров ingest.
func NewIngestService(
	apps repository.ApplicationRepository,
	cats repository.CategoryRepository,
	files repository.FileRepository,
	store *diskstore.Manager,
	q queue.Queue,
	hub *broker.Hub,
	workers int,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		apps:    apps,
		cats:    cats,
		files:   files,
		store:   store,
		q:       q,
		hub:     hub,
		workers: workers,
		logger:  logger.With(slog.String("component", "ingest_service")),
	}
}

// Start запускает воркеры. Вызывается один раз при старте приложения.
func (s *IngestService) Start(ctx context.Context) {
	workCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.run(workCtx, i)
	}

	s.logger.Info("Воркеры ingest запущены", slog.Int("workers", s.workers))
}

// Stop останавливает воркеры и дожидается завершения текущих задач.
func (s *IngestService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Воркеры ingest остановлены")
}

// run — цикл одного воркера: Dequeue → Process до остановки.
func (s *IngestService) run(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With(slog.Int("worker", id))

	for {
		desc, err := s.q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("Ошибка чтения из очереди", slog.String("error", err.Error()))
			continue
		}
		s.Process(ctx, desc)
	}
}

// Process обрабатывает один Descriptor.
//
// Шаги, каждый при ошибке публикует failed-событие и прерывает обработку:
//  1. Разрешение заявки и категории. Нет заявки → application_missing.
//  2. Проверка наличия временного файла → temporary_file_missing.
//  3. Открытие потока чтения → read_stream_failed.
//  4. Вычисление конечного пути visa-applications/{id}/files/{basename}.
//  5. Потоковая запись в постоянное хранилище → write_stream_failed.
//  6. Создание записи файла в БД.
//  7. Удаление временной копии.
//  8. Публикация stored-события со снимком записи.
//
// При терминальной ошибке временный файл НЕ удаляется — остаётся для
// ручного восстановления. Все потоки закрываются на любом пути выхода.
func (s *IngestService) Process(ctx context.Context, desc *model.Descriptor) {
	start := time.Now()
	logger := s.logger.With(
		slog.Int64("application_id", desc.VisaApplicationID),
		slog.String("temp_path", desc.TemporaryPath),
	)

	// 1. Заявка и категория. Ошибка БД неотличима от отсутствия
	// для клиента: ретраев нет, событие должно быть опубликовано.
	app, err := s.apps.GetByID(ctx, desc.VisaApplicationID)
	if err != nil {
		logger.Warn("Заявка не разрешена", slog.String("error", err.Error()))
		s.fail(desc, model.ReasonApplicationMissing, start)
		return
	}
	cat, err := s.cats.GetByID(ctx, desc.FileCategoryID)
	if err != nil {
		logger.Warn("Категория не разрешена", slog.String("error", err.Error()))
		s.fail(desc, model.ReasonApplicationMissing, start)
		return
	}

	// Конечный путь детерминирован: имя файла в tmp уникально,
	// поэтому параллельные загрузки одной заявки не конфликтуют.
	storedName := path.Base(desc.TemporaryPath)
	finalPath := path.Join("visa-applications",
		strconv.FormatInt(desc.VisaApplicationID, 10),
		"files", storedName,
	)

	// 2. Временный файл на месте? Если нет, но запись с конечным путём
	// уже существует — это повторная доставка после успешной обработки:
	// публикуем stored-событие заново вместо ложного failed.
	if !s.store.Exists(desc.TemporaryStore, desc.TemporaryPath) {
		if existing, getErr := s.files.GetByPath(ctx, finalPath); getErr == nil {
			logger.Info("Повторная доставка дескриптора, файл уже принят",
				slog.Int64("file_id", existing.ID),
			)
			s.publish(desc.VisaApplicationID, model.StoredEvent(existing.Resource(app.Summary(), cat.Summary())))
			ingestProcessedTotal.WithLabelValues("stored").Inc()
			ingestDurationSeconds.Observe(time.Since(start).Seconds())
			return
		}
		logger.Warn("Временный файл отсутствует")
		s.fail(desc, model.ReasonTemporaryFileMissing, start)
		return
	}

	// 3. Поток чтения
	reader, err := s.store.OpenRead(desc.TemporaryStore, desc.TemporaryPath)
	if err != nil {
		logger.Error("Ошибка открытия временного файла", slog.String("error", err.Error()))
		s.fail(desc, model.ReasonReadStreamFailed, start)
		return
	}
	defer reader.Close()

	// 4–5. Потоковое копирование, без буферизации файла в памяти
	if _, err := s.store.WriteStream(diskstore.StoreDurable, finalPath, reader); err != nil {
		logger.Error("Ошибка записи в постоянное хранилище", slog.String("error", err.Error()))
		s.fail(desc, model.ReasonWriteStreamFailed, start)
		return
	}

	// 6. Запись в БД
	record := &model.VisaApplicantFile{
		VisaApplicationID: desc.VisaApplicationID,
		ApplicantID:       desc.ApplicantID,
		FileCategoryID:    desc.FileCategoryID,
		OriginalName:      desc.OriginalName,
		StoredName:        storedName,
		MimeType:          desc.MimeType,
		SizeBytes:         desc.SizeBytes,
		Path:              finalPath,
		Store:             diskstore.StoreDurable,
	}
	if err := s.files.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Повторная доставка дескриптора: запись уже создана
			// предыдущей обработкой. Перечитываем её и публикуем
			// stored-событие заново — клиент получит тот же снимок.
			existing, getErr := s.files.GetByPath(ctx, finalPath)
			if getErr != nil {
				logger.Error("Повторная доставка: запись не перечитана", slog.String("error", getErr.Error()))
				s.fail(desc, model.ReasonWriteStreamFailed, start)
				return
			}
			record = existing
			logger.Info("Повторная доставка дескриптора, запись уже существует",
				slog.Int64("file_id", record.ID),
			)
		} else {
			// Байты уже в durable, но записи нет — убираем копию,
			// чтобы не оставить файл-сироту, и публикуем ошибку.
			if delErr := s.store.Delete(diskstore.StoreDurable, finalPath); delErr != nil {
				logger.Error("Не удалось удалить копию после ошибки БД", slog.String("error", delErr.Error()))
			}
			logger.Error("Ошибка создания записи файла", slog.String("error", err.Error()))
			s.fail(desc, model.ReasonWriteStreamFailed, start)
			return
		}
	}

	// 7. Удаление временной копии. Ошибка не прерывает обработку:
	// файл подберёт janitor по TTL.
	if err := s.store.Delete(desc.TemporaryStore, desc.TemporaryPath); err != nil {
		logger.Warn("Не удалось удалить временный файл", slog.String("error", err.Error()))
	}

	// 8. Событие stored
	s.publish(desc.VisaApplicationID, model.StoredEvent(record.Resource(app.Summary(), cat.Summary())))

	ingestProcessedTotal.WithLabelValues("stored").Inc()
	ingestDurationSeconds.Observe(time.Since(start).Seconds())
	logger.Info("Файл принят",
		slog.Int64("file_id", record.ID),
		slog.String("path", finalPath),
		slog.Duration("duration", time.Since(start)),
	)
}

// fail публикует failed-событие и обновляет метрики.
func (s *IngestService) fail(desc *model.Descriptor, reason model.ReasonCode, start time.Time) {
	s.publish(desc.VisaApplicationID, model.FailedEvent(reason))
	ingestProcessedTotal.WithLabelValues(string(reason)).Inc()
	ingestDurationSeconds.Observe(time.Since(start).Seconds())
}

// publish сериализует терминальное событие и отдаёт его в hub.
// Публикация не блокирует воркер и не ждёт подтверждения доставки.
func (s *IngestService) publish(applicationID int64, event model.TerminalEvent) {
	payload, err := event.Payload()
	if err != nil {
		s.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return
	}
	s.hub.Publish(model.ApplicationChannel(applicationID), model.EventName, payload)
}
